package common

import (
	"context"
	"log"
	"raffles/src/models"
	"raffles/src/store"
	"raffles/src/types"

	"github.com/google/uuid"
)

// Reserve claims the lowest available numbers of an active raffle for the caller.
// Selection and claim share one transaction; a claim that lost a race is retried with a fresh selection.
func (s *Service) Reserve(ctx context.Context, caller types.Caller, raffleID string, quantity int) (*models.Order, error) {
	if caller.UID == "" {
		return nil, types.ErrUnauthenticated
	}
	if raffleID == "" {
		return nil, types.Errorf(types.ErrInvalidArgument, "raffle id is required")
	}
	if quantity < 1 || quantity > s.MaxQuantity() {
		return nil, types.Errorf(types.ErrInvalidArgument, "quantity must be between 1 and %d", s.MaxQuantity())
	}

	var order *models.Order
	err := s.runClaim(ctx, func(ctx context.Context, tx store.Tx) error {
		raffle, err := tx.GetRaffle(ctx, raffleID)
		if err != nil {
			return err
		}
		if raffle.Status != types.RAFFLE_ACTIVE {
			return types.Errorf(types.ErrRaffleNotActive, "raffle %s is %s", raffleID, raffle.Status)
		}
		tickets, err := tx.FindTickets(ctx, models.TicketFilter{
			RaffleID: raffleID,
			Status:   types.TICKET_AVAILABLE,
			Limit:    quantity,
		})
		if err != nil {
			return err
		}
		if len(tickets) < quantity {
			return types.Errorf(types.ErrInsufficientInventory, "requested %d, %d available", quantity, len(tickets))
		}

		numbers := make([]int, len(tickets))
		for i, t := range tickets {
			numbers[i] = t.Number
		}
		now := s.clock.Now()
		o := &models.Order{
			ID:         uuid.NewString(),
			UserID:     caller.UID,
			RaffleID:   raffleID,
			Numbers:    numbers,
			Quantity:   quantity,
			TotalPrice: roundCents(raffle.UnitPrice * float64(quantity)),
			Status:     types.ORDER_RESERVED,
			ExpiresAt:  now.Add(s.reservationTTL),
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		err = tx.TransitionTickets(ctx, raffleID, numbers, types.TICKET_AVAILABLE, models.TicketUpdate{
			Status: types.TICKET_RESERVED,
			Owner:  &models.TicketOwner{UserID: caller.UID, OrderID: o.ID, ReservedAt: now},
		})
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		log.Printf("Error reserving %d tickets of raffle %s: %s\n", quantity, raffleID, err.Error())
		return nil, err
	}

	expiresAt := order.ExpiresAt
	s.publish(ctx, types.DomainEvent{
		Type:      types.EVENT_ORDER_RESERVED,
		RaffleID:  raffleID,
		OrderID:   order.ID,
		UserID:    caller.UID,
		Email:     caller.Email,
		Numbers:   order.Numbers,
		Amount:    order.TotalPrice,
		ExpiresAt: &expiresAt,
	})
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, caller types.Caller, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, types.ErrOrderNotFound
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(o.UserID) {
		return nil, types.ErrPermissionDenied
	}
	return o, nil
}

// ListOrders returns the caller's orders, optionally limited to one raffle.
func (s *Service) ListOrders(ctx context.Context, caller types.Caller, raffleID string) ([]models.Order, error) {
	if caller.UID == "" {
		return nil, types.ErrUnauthenticated
	}
	return s.store.ListOrders(ctx, models.OrderFilter{UserID: caller.UID, RaffleID: raffleID})
}

// Cancel releases a reserved order's tickets. Orders in any other state are returned unchanged.
func (s *Service) Cancel(ctx context.Context, caller types.Caller, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, types.ErrOrderNotFound
	}
	var (
		order    *models.Order
		released bool
	)
	err := s.runClaim(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !caller.CanAccess(o.UserID) {
			return types.ErrPermissionDenied
		}
		order = o
		released = false
		if o.Status != types.ORDER_RESERVED {
			return nil
		}
		if err := s.release(ctx, tx, o, types.ORDER_CANCELLED); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		log.Printf("Error cancelling order %s: %s\n", orderID, err.Error())
		return nil, err
	}
	if released {
		s.publish(ctx, types.DomainEvent{
			Type:     types.EVENT_ORDER_CANCELLED,
			RaffleID: order.RaffleID,
			OrderID:  order.ID,
			UserID:   order.UserID,
			Numbers:  order.Numbers,
		})
	}
	return order, nil
}

// Expire releases a reserved order whose reservation window has passed.
// It reports whether the order was expired by this call.
func (s *Service) Expire(ctx context.Context, orderID string) (bool, error) {
	var (
		order   *models.Order
		expired bool
	)
	err := s.runClaim(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		expired = false
		if !o.Expired(s.clock.Now()) {
			return nil
		}
		if err := s.release(ctx, tx, o, types.ORDER_EXPIRED); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		log.Printf("Order %s expired, released %d tickets of raffle %s\n", order.ID, len(order.Numbers), order.RaffleID)
		s.publish(ctx, types.DomainEvent{
			Type:     types.EVENT_ORDER_EXPIRED,
			RaffleID: order.RaffleID,
			OrderID:  order.ID,
			UserID:   order.UserID,
			Numbers:  order.Numbers,
		})
	}
	return expired, nil
}

// release closes o with status and returns the tickets it still holds to the available pool.
func (s *Service) release(ctx context.Context, tx store.Tx, o *models.Order, status types.OrderStatus) error {
	tickets, err := tx.FindTickets(ctx, models.TicketFilter{RaffleID: o.RaffleID, Numbers: o.Numbers})
	if err != nil {
		return err
	}
	held := make([]int, 0, len(tickets))
	for _, t := range tickets {
		if t.Status == types.TICKET_RESERVED && t.OrderID != nil && *t.OrderID == o.ID {
			held = append(held, t.Number)
		}
	}
	now := s.clock.Now()
	if err := tx.UpdateOrder(ctx, o.ID, models.OrderUpdate{Status: &status, CancelledAt: &now}); err != nil {
		return err
	}
	err = tx.TransitionTickets(ctx, o.RaffleID, held, types.TICKET_RESERVED, models.TicketUpdate{
		Status:  types.TICKET_AVAILABLE,
		Release: true,
	})
	if err != nil {
		return err
	}
	o.Status = status
	o.CancelledAt = &now
	return nil
}

// Sweep expires every reserved order whose reservation window passed. A failing order is logged and skipped.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()
	total := 0
	for {
		due, err := s.store.ListOrders(ctx, models.OrderFilter{
			Status:        types.ORDER_RESERVED,
			ExpiresBefore: &now,
			Limit:         sweepPageSize,
		})
		if err != nil {
			log.Printf("Error listing expired reservations: %s\n", err.Error())
			return total, err
		}
		expired := 0
		for _, o := range due {
			ok, err := s.Expire(ctx, o.ID)
			if err != nil {
				log.Printf("Error expiring order %s: %s\n", o.ID, err.Error())
				continue
			}
			if ok {
				expired++
			}
		}
		total += expired
		// a page where nothing could be expired would come back unchanged
		if len(due) < sweepPageSize || expired == 0 {
			break
		}
	}
	if total > 0 {
		log.Printf("Sweep expired %d reservations\n", total)
	}
	return total, nil
}
