package store

import (
	"context"
	"raffles/src/models"
	"raffles/src/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() Store { return NewMemoryStore() }})
}

func TestMemoryStoreFailInsertAfter(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.FailInsertAfter(1)

	require.NoError(t, m.InsertTickets(ctx, []models.Ticket{models.NewTicket("r1", 1)}))
	err := m.InsertTickets(ctx, []models.Ticket{models.NewTicket("r1", 2)})
	assert.Equal(t, types.CodeInternal, types.CodeOf(err))
	// the failure fires once
	require.NoError(t, m.InsertTickets(ctx, []models.Ticket{models.NewTicket("r1", 2)}))

	counts, err := m.CountTickets(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[types.TICKET_AVAILABLE])
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateOrder(ctx, &models.Order{ID: "o1", Numbers: []int{1, 2}, Status: types.ORDER_RESERVED})
	}))

	o, err := m.GetOrder(ctx, "o1")
	require.NoError(t, err)
	o.Numbers[0] = 99
	o.Status = types.ORDER_PAID

	again, err := m.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, types.IntArray{1, 2}, again.Numbers)
	assert.Equal(t, types.ORDER_RESERVED, again.Status)
}

func TestMemoryStoreUndoesFailedTransaction(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateRaffle(ctx, &models.Raffle{ID: "r1", Status: types.RAFFLE_ACTIVE, TotalTickets: 3}))
	require.NoError(t, m.InsertTickets(ctx, []models.Ticket{
		models.NewTicket("r1", 1), models.NewTicket("r1", 2), models.NewTicket("r1", 3),
	}))
	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateOrder(ctx, &models.Order{ID: "kept", RaffleID: "r1", Status: types.ORDER_RESERVED})
	}))

	err := m.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		paid := types.ORDER_PAID
		if err := tx.UpdateOrder(ctx, "kept", models.OrderUpdate{Status: &paid}); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, &models.Order{ID: "dropped", RaffleID: "r1", Status: types.ORDER_RESERVED}); err != nil {
			return err
		}
		owner := models.TicketOwner{UserID: "u1", OrderID: "dropped"}
		if err := tx.TransitionTickets(ctx, "r1", []int{1, 2}, types.TICKET_AVAILABLE, models.TicketUpdate{Status: types.TICKET_RESERVED, Owner: &owner}); err != nil {
			return err
		}
		if err := tx.IncrementRaffle(ctx, "r1", models.RaffleCounters{Sold: 2, Participants: 1, Revenue: 5}); err != nil {
			return err
		}
		// ticket 2 is already reserved by this transaction
		return tx.TransitionTickets(ctx, "r1", []int{2, 3}, types.TICKET_AVAILABLE, models.TicketUpdate{Status: types.TICKET_RESERVED, Owner: &owner})
	})
	require.ErrorIs(t, err, types.ErrConflict)

	kept, err := m.GetOrder(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, types.ORDER_RESERVED, kept.Status)
	_, err = m.GetOrder(ctx, "dropped")
	assert.ErrorIs(t, err, types.ErrOrderNotFound)

	counts, err := m.CountTickets(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, counts[types.TICKET_AVAILABLE])
	tickets, err := m.FindTickets(ctx, models.TicketFilter{RaffleID: "r1"})
	require.NoError(t, err)
	for _, ticket := range tickets {
		assert.Nil(t, ticket.UserID)
	}

	r, err := m.GetRaffle(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, r.QuantitySold)
	assert.Zero(t, r.Participants)
	assert.Zero(t, r.Revenue)
}
