package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"raffles/src/models"
	"raffles/src/store"
	"raffles/src/types"
)

// CreatePixPayment issues a PIX charge for a reserved order and stores the gateway reference on it.
// An order that already has a payment gets it back unchanged.
func (s *Service) CreatePixPayment(ctx context.Context, caller types.Caller, orderID string) (*models.Order, error) {
	o, err := s.GetOrder(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != types.ORDER_RESERVED {
		return nil, types.Errorf(types.ErrOrderNotReserved, "order %s is %s", o.ID, o.Status)
	}
	if o.PaymentID != nil {
		return o, nil
	}
	if s.provider == nil {
		return nil, types.Errorf(types.ErrPaymentGateway, "no payment provider configured")
	}
	user, err := s.store.GetUser(ctx, o.UserID)
	if err != nil {
		return nil, err
	}
	raffle, err := s.store.GetRaffle(ctx, o.RaffleID)
	if err != nil {
		return nil, err
	}

	payment, err := s.provider.CreatePixPayment(ctx, types.PixPaymentRequest{
		Amount:            o.TotalPrice,
		Description:       fmt.Sprintf("%s (%s)", raffle.Title, describeCount(o.Quantity)),
		PayerEmail:        user.Email,
		PayerName:         user.Name,
		ExternalReference: o.ID,
		NotificationURL:   s.notificationURL,
		ExpiresAt:         o.ExpiresAt,
	})
	if err != nil {
		log.Printf("Error creating %s payment for order %s: %s\n", s.provider.Name(), o.ID, err.Error())
		return nil, gatewayError(err)
	}

	provider := s.provider.Name()
	update := models.OrderUpdate{
		PaymentProvider:  &provider,
		PaymentID:        &payment.ID,
		PaymentQRCode:    &payment.QRCode,
		PaymentTicketURL: &payment.TicketURL,
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateOrder(ctx, o.ID, update)
	})
	if err != nil {
		log.Printf("Error saving payment %s on order %s: %s\n", payment.ID, o.ID, err.Error())
		return nil, err
	}
	update.Apply(o)
	return o, nil
}

func gatewayError(err error) error {
	if errors.Is(err, types.ErrPaymentGateway) {
		return err
	}
	return types.Errorf(types.ErrPaymentGateway, "%s", err.Error())
}

// ProcessPayment looks a payment up at the gateway and settles its order when approved.
// The notification body is never trusted for the status. A nil order means the payment was not approved.
func (s *Service) ProcessPayment(ctx context.Context, paymentID string) (*models.Order, error) {
	if s.provider == nil {
		return nil, types.Errorf(types.ErrPaymentGateway, "no payment provider configured")
	}
	payment, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		log.Printf("Error fetching payment %s: %s\n", paymentID, err.Error())
		return nil, gatewayError(err)
	}
	if payment.Status != types.PAYMENT_APPROVED {
		log.Printf("Payment %s is %s, ignoring\n", paymentID, payment.Status)
		return nil, nil
	}
	return s.Settle(ctx, payment.ExternalReference)
}

// Settle marks an order paid, sells its tickets and bumps the raffle counters in one transaction.
// Settling a paid order is a no-op. A payment for a released order re-claims its numbers only
// when every one of them is still available.
func (s *Service) Settle(ctx context.Context, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, types.ErrOrderNotFound
	}
	var (
		order   *models.Order
		settled bool
	)
	err := s.runClaim(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		settled = false
		if o.Status == types.ORDER_PAID {
			return nil
		}

		now := s.clock.Now()
		sold := models.TicketUpdate{Status: types.TICKET_SOLD, PurchasedAt: &now}
		from := types.TICKET_RESERVED
		var numbers []int
		if o.Status.Closed() {
			tickets, err := tx.FindTickets(ctx, models.TicketFilter{RaffleID: o.RaffleID, Numbers: o.Numbers})
			if err != nil {
				return err
			}
			if len(tickets) != len(o.Numbers) {
				return types.Errorf(types.ErrOrderReleased, "order %s lost %d tickets", o.ID, len(o.Numbers)-len(tickets))
			}
			for _, t := range tickets {
				if t.Status != types.TICKET_AVAILABLE {
					return types.Errorf(types.ErrOrderReleased, "ticket %d of order %s is %s", t.Number, o.ID, t.Status)
				}
			}
			log.Printf("Late payment for %s order %s, re-claiming its numbers\n", o.Status, o.ID)
			numbers = o.Numbers
			from = types.TICKET_AVAILABLE
			sold.Owner = &models.TicketOwner{UserID: o.UserID, OrderID: o.ID, ReservedAt: now}
		} else {
			tickets, err := tx.FindTickets(ctx, models.TicketFilter{RaffleID: o.RaffleID, OrderID: o.ID})
			if err != nil {
				return err
			}
			numbers = make([]int, 0, len(tickets))
			for _, t := range tickets {
				if t.Status == types.TICKET_RESERVED {
					numbers = append(numbers, t.Number)
				}
			}
		}

		paid := types.ORDER_PAID
		if err := tx.UpdateOrder(ctx, o.ID, models.OrderUpdate{Status: &paid, PaidAt: &now}); err != nil {
			return err
		}
		if err := tx.TransitionTickets(ctx, o.RaffleID, numbers, from, sold); err != nil {
			return err
		}
		err = tx.IncrementRaffle(ctx, o.RaffleID, models.RaffleCounters{
			Sold:         o.Quantity,
			Participants: 1,
			Revenue:      o.TotalPrice,
		})
		if err != nil {
			return err
		}
		o.Status = paid
		o.PaidAt = &now
		settled = true
		return nil
	})
	if err != nil {
		log.Printf("Error settling order %s: %s\n", orderID, err.Error())
		return nil, err
	}
	if settled {
		log.Printf("Order %s settled: %d tickets of raffle %s sold\n", order.ID, order.Quantity, order.RaffleID)
		s.publish(ctx, s.paidEvent(ctx, order))
	}
	return order, nil
}

// paidEvent enriches the event with the buyer's email and the raffle title when they can be read.
func (s *Service) paidEvent(ctx context.Context, o *models.Order) types.DomainEvent {
	e := types.DomainEvent{
		Type:     types.EVENT_ORDER_PAID,
		RaffleID: o.RaffleID,
		OrderID:  o.ID,
		UserID:   o.UserID,
		Numbers:  o.Numbers,
		Amount:   o.TotalPrice,
	}
	if user, err := s.store.GetUser(ctx, o.UserID); err == nil {
		e.Email = user.Email
	}
	if raffle, err := s.store.GetRaffle(ctx, o.RaffleID); err == nil {
		e.Title = raffle.Title
	}
	return e
}
