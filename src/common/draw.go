package common

import (
	"context"
	"errors"
	"log"
	"raffles/src/models"
	"raffles/src/store"
	"raffles/src/types"
)

// Draw picks the winner among sold tickets, uniformly unless number is given, and finalizes the raffle.
func (s *Service) Draw(ctx context.Context, raffleID string, number *int) (*types.DrawResult, error) {
	if raffleID == "" {
		return nil, types.ErrRaffleNotFound
	}
	var result *types.DrawResult
	err := s.runClaim(ctx, func(ctx context.Context, tx store.Tx) error {
		raffle, err := tx.GetRaffle(ctx, raffleID)
		if err != nil {
			return err
		}
		if raffle.Status == types.RAFFLE_FINALIZED {
			return types.ErrRaffleFinalized
		}
		sold, err := tx.FindTickets(ctx, models.TicketFilter{RaffleID: raffleID, Status: types.TICKET_SOLD})
		if err != nil {
			return err
		}
		eligible := make([]models.Ticket, 0, len(sold))
		for _, t := range sold {
			if t.UserID != nil && t.Status == types.TICKET_SOLD {
				eligible = append(eligible, t)
			}
		}
		if len(eligible) == 0 {
			return types.ErrNoEligibleTickets
		}

		var winner *models.Ticket
		if number != nil {
			for i := range eligible {
				if eligible[i].Number == *number {
					winner = &eligible[i]
					break
				}
			}
			if winner == nil {
				return types.Errorf(types.ErrNumberNotSold, "number %d", *number)
			}
		} else {
			winner = &eligible[s.rand(len(eligible))]
		}

		user, err := tx.GetUser(ctx, *winner.UserID)
		if err != nil {
			if errors.Is(err, types.ErrUserNotFound) {
				return types.Errorf(types.ErrWinnerNotFound, "user %s", *winner.UserID)
			}
			return err
		}

		now := s.clock.Now()
		finalized := types.RAFFLE_FINALIZED
		winningNumber := winner.Number
		err = tx.UpdateRaffle(ctx, raffleID, models.RaffleUpdate{
			Status:        &finalized,
			WinningNumber: &winningNumber,
			WinnerID:      &user.ID,
			WinnerName:    &user.Name,
			DrawnAt:       &now,
		})
		if err != nil {
			return err
		}
		err = tx.TransitionTickets(ctx, raffleID, []int{winningNumber}, types.TICKET_SOLD, models.TicketUpdate{Status: types.TICKET_WINNER})
		if err != nil {
			return err
		}
		result = &types.DrawResult{
			RaffleID:      raffleID,
			WinningNumber: winningNumber,
			WinnerID:      user.ID,
			WinnerName:    user.Name,
			DrawnAt:       now,
		}
		if prize, ok := raffle.PrizeFor(winningNumber); ok {
			result.BonusPrize = prize
		}
		return nil
	})
	if err != nil {
		log.Printf("Error drawing raffle %s: %s\n", raffleID, err.Error())
		return nil, err
	}
	log.Printf("Raffle %s drawn: number %d won by %s\n", raffleID, result.WinningNumber, result.WinnerID)
	s.publish(ctx, types.DomainEvent{
		Type:     types.EVENT_RAFFLE_DRAWN,
		RaffleID: raffleID,
		UserID:   result.WinnerID,
		Numbers:  []int{result.WinningNumber},
	})
	return result, nil
}
