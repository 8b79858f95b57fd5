package models

import (
	"raffles/src/types"
	"time"
)

type Order struct {
	ID               string            `gorm:"primarykey;size:64" firestore:"-" json:"id"`
	UserID           string            `gorm:"size:128;index" firestore:"user_id" json:"user_id"`
	RaffleID         string            `gorm:"size:64;index" firestore:"raffle_id" json:"raffle_id"`
	Numbers          types.IntArray    `gorm:"type:text" firestore:"numbers" json:"numbers"`
	Quantity         int               `firestore:"quantity" json:"quantity"`
	TotalPrice       float64           `firestore:"total_price" json:"total_price"`
	Status           types.OrderStatus `gorm:"size:16;index:idx_order_status_expiry,priority:1" firestore:"status" json:"status"`
	ExpiresAt        time.Time         `gorm:"index:idx_order_status_expiry,priority:2" firestore:"expires_at" json:"expires_at"`
	PaidAt           *time.Time        `firestore:"paid_at" json:"paid_at,omitempty"`
	CancelledAt      *time.Time        `firestore:"cancelled_at" json:"cancelled_at,omitempty"`
	PaymentProvider  *string           `firestore:"payment_provider" json:"payment_provider,omitempty"`
	PaymentID        *string           `gorm:"index" firestore:"payment_id" json:"payment_id,omitempty"`
	PaymentQRCode    *string           `firestore:"payment_qr_code" json:"payment_qr_code,omitempty"`
	PaymentTicketURL *string           `firestore:"payment_ticket_url" json:"payment_ticket_url,omitempty"`

	types.Timestamps
}

// Expired reports whether a reserved order outlived its reservation window.
func (o *Order) Expired(now time.Time) bool {
	return o.Status == types.ORDER_RESERVED && o.ExpiresAt.Before(now)
}

type OrderUpdate struct {
	Status           *types.OrderStatus
	PaidAt           *time.Time
	CancelledAt      *time.Time
	PaymentProvider  *string
	PaymentID        *string
	PaymentQRCode    *string
	PaymentTicketURL *string
}

// Apply mutates o according to the update.
func (u OrderUpdate) Apply(o *Order) {
	if u.Status != nil {
		o.Status = *u.Status
	}
	if u.PaidAt != nil {
		o.PaidAt = u.PaidAt
	}
	if u.CancelledAt != nil {
		o.CancelledAt = u.CancelledAt
	}
	if u.PaymentProvider != nil {
		o.PaymentProvider = u.PaymentProvider
	}
	if u.PaymentID != nil {
		o.PaymentID = u.PaymentID
	}
	if u.PaymentQRCode != nil {
		o.PaymentQRCode = u.PaymentQRCode
	}
	if u.PaymentTicketURL != nil {
		o.PaymentTicketURL = u.PaymentTicketURL
	}
}

type OrderFilter struct {
	UserID        string
	RaffleID      string
	Status        types.OrderStatus
	ExpiresBefore *time.Time
	Limit         int
}
