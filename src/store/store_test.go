package store

import (
	"context"
	"raffles/src/models"
	"raffles/src/types"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// StoreSuite runs the same behaviour checks against every backend.
type StoreSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *StoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *StoreSuite) seedRaffle(tickets int) *models.Raffle {
	r := &models.Raffle{
		ID:           uuid.NewString(),
		Title:        "Moto 0km",
		UnitPrice:    2.5,
		TotalTickets: tickets,
		DrawAt:       time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second),
		Status:       types.RAFFLE_ACTIVE,
	}
	s.Require().NoError(s.store.CreateRaffle(s.ctx, r))
	batch := make([]models.Ticket, 0, tickets)
	for n := 1; n <= tickets; n++ {
		batch = append(batch, models.NewTicket(r.ID, n))
	}
	s.Require().NoError(s.store.InsertTickets(s.ctx, batch))
	return r
}

func (s *StoreSuite) reserve(raffleID, userID string, numbers []int) *models.Order {
	o := &models.Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		RaffleID:   raffleID,
		Numbers:    numbers,
		Quantity:   len(numbers),
		TotalPrice: 2.5 * float64(len(numbers)),
		Status:     types.ORDER_RESERVED,
		ExpiresAt:  time.Now().Add(30 * time.Minute).UTC(),
	}
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.FindTickets(ctx, models.TicketFilter{RaffleID: raffleID, Numbers: numbers}); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		return tx.TransitionTickets(ctx, raffleID, numbers, types.TICKET_AVAILABLE, models.TicketUpdate{
			Status: types.TICKET_RESERVED,
			Owner:  &models.TicketOwner{UserID: userID, OrderID: o.ID, ReservedAt: time.Now().UTC()},
		})
	})
	s.Require().NoError(err)
	return o
}

func (s *StoreSuite) TestRaffleLifecycle() {
	r := s.seedRaffle(0)

	got, err := s.store.GetRaffle(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.Title, got.Title)
	s.Equal(types.RAFFLE_ACTIVE, got.Status)

	active, err := s.store.ListRaffles(s.ctx, types.RAFFLE_ACTIVE)
	s.Require().NoError(err)
	s.Contains(raffleIDs(active), r.ID)
	paused, err := s.store.ListRaffles(s.ctx, types.RAFFLE_PAUSED)
	s.Require().NoError(err)
	s.NotContains(raffleIDs(paused), r.ID)

	s.Require().NoError(s.store.DeleteRaffle(s.ctx, r.ID))
	_, err = s.store.GetRaffle(s.ctx, r.ID)
	s.ErrorIs(err, types.ErrRaffleNotFound)
	s.ErrorIs(s.store.DeleteRaffle(s.ctx, r.ID), types.ErrRaffleNotFound)
}

func (s *StoreSuite) TestFindTicketsOrderedByNumber() {
	r := s.seedRaffle(10)

	tickets, err := s.store.FindTickets(s.ctx, models.TicketFilter{RaffleID: r.ID, Status: types.TICKET_AVAILABLE, Limit: 3})
	s.Require().NoError(err)
	s.Require().Len(tickets, 3)
	for i, t := range tickets {
		s.Equal(i+1, t.Number)
		s.Equal(models.TicketID(r.ID, i+1), t.ID)
		s.Nil(t.UserID)
	}

	picked, err := s.store.FindTickets(s.ctx, models.TicketFilter{RaffleID: r.ID, Numbers: []int{7, 2, 42}})
	s.Require().NoError(err)
	s.Require().Len(picked, 2)
	s.Equal(2, picked[0].Number)
	s.Equal(7, picked[1].Number)

	counts, err := s.store.CountTickets(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(10, counts[types.TICKET_AVAILABLE])
}

func (s *StoreSuite) TestInsertTicketsTwice() {
	r := s.seedRaffle(3)

	err := s.store.InsertTickets(s.ctx, []models.Ticket{models.NewTicket(r.ID, 3), models.NewTicket(r.ID, 4)})
	s.ErrorIs(err, types.ErrTicketsExist)

	counts, err := s.store.CountTickets(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(3, counts[types.TICKET_AVAILABLE])
}

func (s *StoreSuite) TestDeleteTicketRange() {
	r := s.seedRaffle(10)
	other := s.seedRaffle(3)

	n, err := s.store.DeleteTicketRange(s.ctx, r.ID, 4, 8)
	s.Require().NoError(err)
	s.Equal(5, n)

	tickets, err := s.store.FindTickets(s.ctx, models.TicketFilter{RaffleID: r.ID})
	s.Require().NoError(err)
	numbers := make([]int, len(tickets))
	for i, t := range tickets {
		numbers[i] = t.Number
	}
	s.Equal([]int{1, 2, 3, 9, 10}, numbers)

	counts, err := s.store.CountTickets(s.ctx, other.ID)
	s.Require().NoError(err)
	s.Equal(3, counts[types.TICKET_AVAILABLE])
}

func (s *StoreSuite) TestTransitionConflictRollsBack() {
	r := s.seedRaffle(5)
	first := s.reserve(r.ID, "alice", []int{1, 2})

	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.FindTickets(ctx, models.TicketFilter{RaffleID: r.ID, Numbers: []int{2, 3}}); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, &models.Order{ID: "loser", UserID: "bob", RaffleID: r.ID, Status: types.ORDER_RESERVED}); err != nil {
			return err
		}
		return tx.TransitionTickets(ctx, r.ID, []int{2, 3}, types.TICKET_AVAILABLE, models.TicketUpdate{
			Status: types.TICKET_RESERVED,
			Owner:  &models.TicketOwner{UserID: "bob", OrderID: "loser", ReservedAt: time.Now().UTC()},
		})
	})
	s.ErrorIs(err, types.ErrConflict)
	s.Equal(types.CodeAborted, types.CodeOf(err))

	_, err = s.store.GetOrder(s.ctx, "loser")
	s.ErrorIs(err, types.ErrOrderNotFound)

	tickets, err := s.store.FindTickets(s.ctx, models.TicketFilter{RaffleID: r.ID, Numbers: []int{1, 2, 3}})
	s.Require().NoError(err)
	s.Require().Len(tickets, 3)
	s.Equal(types.TICKET_RESERVED, tickets[1].Status)
	s.Require().NotNil(tickets[1].OrderID)
	s.Equal(first.ID, *tickets[1].OrderID)
	s.Equal(types.TICKET_AVAILABLE, tickets[2].Status)
	s.Nil(tickets[2].UserID)
}

func (s *StoreSuite) TestSettleWritesAndIncrements() {
	r := s.seedRaffle(4)
	o := s.reserve(r.ID, "alice", []int{1, 2})
	paidAt := time.Now().UTC().Truncate(time.Second)

	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		if _, err := tx.FindTickets(ctx, models.TicketFilter{RaffleID: r.ID, Numbers: o.Numbers}); err != nil {
			return err
		}
		paid := types.ORDER_PAID
		if err := tx.UpdateOrder(ctx, o.ID, models.OrderUpdate{Status: &paid, PaidAt: &paidAt}); err != nil {
			return err
		}
		if err := tx.TransitionTickets(ctx, r.ID, o.Numbers, types.TICKET_RESERVED, models.TicketUpdate{Status: types.TICKET_SOLD, PurchasedAt: &paidAt}); err != nil {
			return err
		}
		return tx.IncrementRaffle(ctx, r.ID, models.RaffleCounters{Sold: 2, Participants: 1, Revenue: 5})
	})
	s.Require().NoError(err)

	got, err := s.store.GetOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(types.ORDER_PAID, got.Status)
	s.Require().NotNil(got.PaidAt)
	s.True(paidAt.Equal(*got.PaidAt))
	s.Equal([]int{1, 2}, []int(got.Numbers))

	raffle, err := s.store.GetRaffle(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(2, raffle.QuantitySold)
	s.Equal(1, raffle.Participants)
	s.InDelta(5.0, raffle.Revenue, 0.001)

	counts, err := s.store.CountTickets(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(2, counts[types.TICKET_SOLD])
	s.Equal(2, counts[types.TICKET_AVAILABLE])
}

func (s *StoreSuite) TestReleaseClearsOwner() {
	r := s.seedRaffle(2)
	o := s.reserve(r.ID, "alice", []int{1})

	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.FindTickets(ctx, models.TicketFilter{RaffleID: r.ID, OrderID: o.ID}); err != nil {
			return err
		}
		return tx.TransitionTickets(ctx, r.ID, []int{1}, types.TICKET_RESERVED, models.TicketUpdate{Status: types.TICKET_AVAILABLE, Release: true})
	})
	s.Require().NoError(err)

	tickets, err := s.store.FindTickets(s.ctx, models.TicketFilter{RaffleID: r.ID, Numbers: []int{1}})
	s.Require().NoError(err)
	s.Require().Len(tickets, 1)
	s.Equal(types.TICKET_AVAILABLE, tickets[0].Status)
	s.Nil(tickets[0].UserID)
	s.Nil(tickets[0].OrderID)
	s.Nil(tickets[0].ReservedAt)
}

func (s *StoreSuite) TestListOrders() {
	r := s.seedRaffle(6)
	a := s.reserve(r.ID, "alice", []int{1})
	s.reserve(r.ID, "bob", []int{2})

	mine, err := s.store.ListOrders(s.ctx, models.OrderFilter{RaffleID: r.ID, UserID: "alice"})
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(a.ID, mine[0].ID)

	future := time.Now().Add(time.Hour)
	due, err := s.store.ListOrders(s.ctx, models.OrderFilter{RaffleID: r.ID, Status: types.ORDER_RESERVED, ExpiresBefore: &future})
	s.Require().NoError(err)
	s.Len(due, 2)

	past := time.Now().Add(-time.Hour)
	due, err = s.store.ListOrders(s.ctx, models.OrderFilter{RaffleID: r.ID, Status: types.ORDER_RESERVED, ExpiresBefore: &past})
	s.Require().NoError(err)
	s.Empty(due)
}

func (s *StoreSuite) TestDeleteTicketsAndOrders() {
	r := s.seedRaffle(5)
	s.reserve(r.ID, "alice", []int{1, 2})

	n, err := s.store.DeleteOrders(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(1, n)
	n, err = s.store.DeleteTickets(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(5, n)

	counts, err := s.store.CountTickets(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Empty(counts)
}

func (s *StoreSuite) TestUpsertUser() {
	u := &models.User{ID: "alice", Name: "Alice", Email: "alice@example.com"}
	s.Require().NoError(s.store.UpsertUser(s.ctx, u))

	u2 := &models.User{ID: "alice", Name: "Alice Souza", Email: "alice@example.com", IsAdmin: true}
	s.Require().NoError(s.store.UpsertUser(s.ctx, u2))

	got, err := s.store.GetUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal("Alice Souza", got.Name)
	s.True(got.IsAdmin)

	_, err = s.store.GetUser(s.ctx, "nobody")
	s.ErrorIs(err, types.ErrUserNotFound)
}

func raffleIDs(raffles []models.Raffle) []string {
	ids := make([]string, len(raffles))
	for i, r := range raffles {
		ids[i] = r.ID
	}
	return ids
}
