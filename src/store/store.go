package store

import (
	"context"
	"raffles/src/models"
	"raffles/src/types"
)

// Reader holds the point reads and filters every backend supports inside and outside a transaction.
type Reader interface {
	GetRaffle(ctx context.Context, id string) (*models.Raffle, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	// FindTickets returns matching tickets ordered by number.
	FindTickets(ctx context.Context, f models.TicketFilter) ([]models.Ticket, error)
}

// Tx is the unit of work handed to RunInTx. Backends that need reads before writes
// (Firestore) require callers to read everything they transition first.
type Tx interface {
	Reader
	CreateOrder(ctx context.Context, o *models.Order) error
	UpdateOrder(ctx context.Context, id string, u models.OrderUpdate) error
	// TransitionTickets moves every listed number from status `from` to u.Status.
	// It fails with types.ErrConflict when any ticket is no longer in `from`.
	TransitionTickets(ctx context.Context, raffleID string, numbers []int, from types.TicketStatus, u models.TicketUpdate) error
	UpdateRaffle(ctx context.Context, id string, u models.RaffleUpdate) error
	IncrementRaffle(ctx context.Context, id string, c models.RaffleCounters) error
}

type Store interface {
	Reader
	// RunInTx runs fn atomically. Backends may retry fn on contention, so fn must be free of side effects.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateRaffle(ctx context.Context, r *models.Raffle) error
	ListRaffles(ctx context.Context, status types.RaffleStatus) ([]models.Raffle, error)
	DeleteRaffle(ctx context.Context, id string) error

	// InsertTickets writes one chunk atomically; callers keep chunks within the backend batch limit.
	InsertTickets(ctx context.Context, tickets []models.Ticket) error
	DeleteTickets(ctx context.Context, raffleID string) (int, error)
	// DeleteTicketRange removes tickets numbered from..to inclusive.
	DeleteTicketRange(ctx context.Context, raffleID string, from, to int) (int, error)
	CountTickets(ctx context.Context, raffleID string) (map[types.TicketStatus]int, error)

	ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error)
	DeleteOrders(ctx context.Context, raffleID string) (int, error)

	UpsertUser(ctx context.Context, u *models.User) error

	Close() error
}
