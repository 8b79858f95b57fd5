package common

import (
	"context"
	"fmt"
	"log"
	"raffles/src/models"
	"raffles/src/store"
	"raffles/src/types"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// CreateRaffle stores an active raffle and spawns its tickets. The raffle is removed again
// when the tickets cannot be created.
func (s *Service) CreateRaffle(ctx context.Context, caller types.Caller, body types.CreateRaffleRequestBody) (*models.Raffle, error) {
	drawAt, err := types.ParseDate(body.DrawAt)
	if err != nil {
		return nil, types.Errorf(types.ErrInvalidArgument, "draw_at: %s", err.Error())
	}
	if !drawAt.After(s.clock.Now()) {
		return nil, types.Errorf(types.ErrInvalidArgument, "draw_at must be in the future")
	}
	if body.UnitPrice <= 0 {
		return nil, types.Errorf(types.ErrInvalidArgument, "unit_price must be positive")
	}
	if body.TotalTickets < 1 || body.TotalTickets > s.maxTickets {
		return nil, types.Errorf(types.ErrInvalidArgument, "qtd_total must be between 1 and %d", s.maxTickets)
	}

	raffle := &models.Raffle{
		ID:          uuid.NewString(),
		Title:       body.Title,
		Slug:        slug.Make(body.Title),
		Description: body.Description,
		UnitPrice:   body.UnitPrice,
		DrawAt:      drawAt.UTC(),
		Status:      types.RAFFLE_ACTIVE,
		Images:      body.Images,
		PrizeTiles:  body.PrizeTiles,
		CreatedBy:   caller.UID,
	}
	if err := s.store.CreateRaffle(ctx, raffle); err != nil {
		log.Printf("Error creating raffle: %s\n", err.Error())
		return nil, err
	}
	if err := s.CreateTickets(ctx, raffle.ID, body.TotalTickets); err != nil {
		if delErr := s.store.DeleteRaffle(ctx, raffle.ID); delErr != nil {
			log.Printf("Error removing raffle %s after ticket failure: %s\n", raffle.ID, delErr.Error())
		}
		return nil, err
	}
	raffle.TotalTickets = body.TotalTickets
	return raffle, nil
}

// CreateTickets writes tickets 1..count as available, chunked by the batch limit.
// The raffle's ticket total is claimed first, so a raffle gets its tickets from exactly one call.
// A failed chunk removes only the tickets this call wrote and releases the claim.
func (s *Service) CreateTickets(ctx context.Context, raffleID string, count int) error {
	if count < 1 || count > s.maxTickets {
		return types.Errorf(types.ErrInvalidArgument, "count must be between 1 and %d", s.maxTickets)
	}
	if raffleID == "" {
		return types.ErrRaffleNotFound
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.GetRaffle(ctx, raffleID)
		if err != nil {
			return err
		}
		if r.TotalTickets != 0 {
			return types.Errorf(types.ErrTicketsExist, "raffle %s has %d tickets", raffleID, r.TotalTickets)
		}
		return tx.UpdateRaffle(ctx, raffleID, models.RaffleUpdate{TotalTickets: &count})
	})
	if err != nil {
		return err
	}

	written := 0
	for start := 1; start <= count; start += s.batchLimit {
		end := min(start+s.batchLimit-1, count)
		chunk := make([]models.Ticket, 0, end-start+1)
		for n := start; n <= end; n++ {
			chunk = append(chunk, models.NewTicket(raffleID, n))
		}
		if err := s.store.InsertTickets(ctx, chunk); err != nil {
			log.Printf("Error creating tickets %d-%d of raffle %s: %s\n", start, end, raffleID, err.Error())
			s.rollbackTickets(ctx, raffleID, written)
			return err
		}
		written = end
	}
	log.Printf("Created %d tickets for raffle %s\n", count, raffleID)
	return nil
}

// rollbackTickets deletes tickets 1..written and resets the raffle's ticket total.
// The total stays claimed when the delete fails, so nobody writes over the leftovers.
func (s *Service) rollbackTickets(ctx context.Context, raffleID string, written int) {
	if written > 0 {
		n, err := s.store.DeleteTicketRange(ctx, raffleID, 1, written)
		if err != nil {
			log.Printf("Error rolling back tickets of raffle %s: %s\n", raffleID, err.Error())
			return
		}
		log.Printf("Rolled back %d tickets of raffle %s\n", n, raffleID)
	}
	zero := 0
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateRaffle(ctx, raffleID, models.RaffleUpdate{TotalTickets: &zero})
	})
	if err != nil {
		log.Printf("Error releasing ticket total of raffle %s: %s\n", raffleID, err.Error())
	}
}

func (s *Service) GetRaffle(ctx context.Context, id string) (*models.Raffle, error) {
	if id == "" {
		return nil, types.ErrRaffleNotFound
	}
	return s.store.GetRaffle(ctx, id)
}

func (s *Service) ListRaffles(ctx context.Context, status types.RaffleStatus) ([]models.Raffle, error) {
	if status != "" && !status.Valid() {
		return nil, types.Errorf(types.ErrInvalidArgument, "unknown raffle status %q", status)
	}
	return s.store.ListRaffles(ctx, status)
}

func (s *Service) ListTickets(ctx context.Context, raffleID string, status types.TicketStatus) ([]models.Ticket, error) {
	if _, err := s.GetRaffle(ctx, raffleID); err != nil {
		return nil, err
	}
	return s.store.FindTickets(ctx, models.TicketFilter{RaffleID: raffleID, Status: status})
}

// SetRaffleStatus pauses or resumes a raffle. Finalized raffles stay finalized.
func (s *Service) SetRaffleStatus(ctx context.Context, raffleID string, status types.RaffleStatus) (*models.Raffle, error) {
	if status != types.RAFFLE_ACTIVE && status != types.RAFFLE_PAUSED {
		return nil, types.Errorf(types.ErrInvalidArgument, "status must be %s or %s", types.RAFFLE_ACTIVE, types.RAFFLE_PAUSED)
	}
	var raffle *models.Raffle
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.GetRaffle(ctx, raffleID)
		if err != nil {
			return err
		}
		if r.Status == types.RAFFLE_FINALIZED {
			return types.ErrRaffleFinalized
		}
		if err := tx.UpdateRaffle(ctx, raffleID, models.RaffleUpdate{Status: &status}); err != nil {
			return err
		}
		r.Status = status
		raffle = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raffle, nil
}

// DeleteRaffle removes the raffle and cleans up its tickets and orders in the background.
func (s *Service) DeleteRaffle(ctx context.Context, raffleID string) error {
	if raffleID == "" {
		return types.ErrRaffleNotFound
	}
	if err := s.store.DeleteRaffle(ctx, raffleID); err != nil {
		return err
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.CleanupRaffle(context.Background(), raffleID)
	}()
	return nil
}

// CleanupRaffle deletes the tickets and orders left behind by a deleted raffle. Errors are only logged.
func (s *Service) CleanupRaffle(ctx context.Context, raffleID string) {
	tickets, err := s.store.DeleteTickets(ctx, raffleID)
	if err != nil {
		log.Printf("Error deleting tickets of raffle %s: %s\n", raffleID, err.Error())
	}
	orders, err := s.store.DeleteOrders(ctx, raffleID)
	if err != nil {
		log.Printf("Error deleting orders of raffle %s: %s\n", raffleID, err.Error())
	}
	log.Printf("Cleaned up raffle %s: %d tickets, %d orders\n", raffleID, tickets, orders)
}

// Stats counts tickets per state. Sum() equals Total for a consistent raffle.
func (s *Service) Stats(ctx context.Context, raffleID string) (*types.TicketStats, error) {
	raffle, err := s.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountTickets(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	stats := &types.TicketStats{
		RaffleID:  raffleID,
		Total:     raffle.TotalTickets,
		Available: counts[types.TICKET_AVAILABLE],
		Reserved:  counts[types.TICKET_RESERVED],
		Sold:      counts[types.TICKET_SOLD],
		Winner:    counts[types.TICKET_WINNER],
	}
	if stats.Sum() != stats.Total {
		log.Printf("Ticket counts of raffle %s do not add up: %d != %d\n", raffleID, stats.Sum(), stats.Total)
	}
	return stats, nil
}

func describeCount(n int) string {
	if n == 1 {
		return "1 ticket"
	}
	return fmt.Sprintf("%d tickets", n)
}
