package middlewares

import (
	"context"
	"errors"
	"fmt"
	"log"
	"raffles/src/types"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const callerKey = "caller"

// TokenVerifier turns a bearer token into the identity it was issued to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (types.Caller, error)
}

// JWTVerifier accepts HS256 tokens signed with the API secret.
type JWTVerifier struct {
	key []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{key: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (types.Caller, error) {
	claims := &types.Claims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return types.Caller{}, err
	}
	if !tkn.Valid || claims.Subject == "" {
		return types.Caller{}, errors.New("invalid token")
	}
	return types.Caller{
		UID:   claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Admin: claims.IsAdmin(),
	}, nil
}

func bearerToken(ctx *gin.Context) string {
	header := ctx.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate verifies the bearer token and stores the caller on the request context.
func Authenticate(v TokenVerifier) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx)
		if token == "" {
			Fail(ctx, types.Errorf(types.ErrUnauthenticated, "missing bearer token"))
			ctx.Abort()
			return
		}
		caller, err := v.Verify(ctx.Request.Context(), token)
		if err != nil {
			log.Printf("token error: %s\n", err.Error())
			Fail(ctx, types.Errorf(types.ErrUnauthenticated, "invalid token"))
			ctx.Abort()
			return
		}
		ctx.Set(callerKey, caller)
		ctx.Next()
	}
}

// RequireAdmin rejects callers without the admin role. It runs after Authenticate.
func RequireAdmin(ctx *gin.Context) {
	if !GetCaller(ctx).Admin {
		Fail(ctx, types.Errorf(types.ErrPermissionDenied, "admin role required"))
		ctx.Abort()
		return
	}
	ctx.Next()
}

func GetCaller(ctx *gin.Context) types.Caller {
	if v, ok := ctx.Get(callerKey); ok {
		if caller, ok := v.(types.Caller); ok {
			return caller
		}
	}
	return types.Caller{}
}

// NewToken signs an HS256 token for a caller; used by local tooling and tests.
func NewToken(secret string, caller types.Caller, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = caller.UID
	role := "user"
	if caller.Admin {
		role = "admin"
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, types.Claims{
		Name:             caller.Name,
		Email:            caller.Email,
		Role:             role,
		RegisteredClaims: claims,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
