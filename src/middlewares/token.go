package middlewares

import (
	"context"
	"raffles/src/types"

	"firebase.google.com/go/v4/auth"
)

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier accepts Firebase ID tokens. Admins carry the "admin" custom claim.
type FirebaseVerifier struct {
	client idTokenVerifier
}

func NewFirebaseVerifier(client idTokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (types.Caller, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return types.Caller{}, err
	}
	caller := types.Caller{UID: token.UID}
	if name, ok := token.Claims["name"].(string); ok {
		caller.Name = name
	}
	if email, ok := token.Claims["email"].(string); ok {
		caller.Email = email
	}
	if admin, ok := token.Claims["admin"].(bool); ok {
		caller.Admin = admin
	}
	return caller, nil
}
