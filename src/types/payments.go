package types

import "time"

type PaymentStatus string

const (
	PAYMENT_PENDING   PaymentStatus = "pending"
	PAYMENT_APPROVED  PaymentStatus = "approved"
	PAYMENT_REJECTED  PaymentStatus = "rejected"
	PAYMENT_CANCELLED PaymentStatus = "cancelled"
)

// PixPaymentRequest is what the payment gateway needs to issue a PIX charge for an order.
type PixPaymentRequest struct {
	Amount            float64
	Description       string
	PayerEmail        string
	PayerName         string
	ExternalReference string
	NotificationURL   string
	ExpiresAt         time.Time
}

type PixPayment struct {
	ID        string
	Status    PaymentStatus
	QRCode    string
	TicketURL string
}

// PaymentDetails is the gateway's authoritative view of a payment, fetched by id.
type PaymentDetails struct {
	ID                string
	Status            PaymentStatus
	ExternalReference string
	Amount            float64
}

type EventType string

const (
	EVENT_ORDER_RESERVED  EventType = "order.reserved"
	EVENT_ORDER_PAID      EventType = "order.paid"
	EVENT_ORDER_CANCELLED EventType = "order.cancelled"
	EVENT_ORDER_EXPIRED   EventType = "order.expired"
	EVENT_RAFFLE_DRAWN    EventType = "raffle.drawn"
)

// DomainEvent is emitted after a state transition commits.
type DomainEvent struct {
	Type       EventType  `json:"type"`
	RaffleID   string     `json:"raffle_id"`
	OrderID    string     `json:"order_id,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	Email      string     `json:"email,omitempty"`
	Title      string     `json:"title,omitempty"`
	Numbers    []int      `json:"numbers,omitempty"`
	Amount     float64    `json:"amount,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
