package common

import (
	"context"
	"raffles/src/models"
	"raffles/src/types"
)

// SyncUser stores the caller's profile as seen in their identity token.
func (s *Service) SyncUser(ctx context.Context, caller types.Caller) (*models.User, error) {
	if caller.UID == "" {
		return nil, types.ErrUnauthenticated
	}
	u := &models.User{
		ID:      caller.UID,
		Name:    caller.Name,
		Email:   caller.Email,
		IsAdmin: caller.Admin,
	}
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, caller types.Caller) (*models.User, error) {
	if caller.UID == "" {
		return nil, types.ErrUnauthenticated
	}
	return s.store.GetUser(ctx, caller.UID)
}
