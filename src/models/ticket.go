package models

import (
	"fmt"
	"raffles/src/types"
	"time"
)

type Ticket struct {
	ID          string             `gorm:"primarykey;size:96" firestore:"-" json:"id"`
	RaffleID    string             `gorm:"size:64;uniqueIndex:idx_ticket_raffle_number;index:idx_ticket_raffle_status,priority:1" firestore:"raffle_id" json:"raffle_id"`
	Number      int                `gorm:"uniqueIndex:idx_ticket_raffle_number" firestore:"number" json:"number"`
	Status      types.TicketStatus `gorm:"size:16;index:idx_ticket_raffle_status,priority:2" firestore:"status" json:"status"`
	UserID      *string            `gorm:"size:128" firestore:"user_id" json:"user_id,omitempty"`
	OrderID     *string            `gorm:"size:64;index" firestore:"order_id" json:"order_id,omitempty"`
	ReservedAt  *time.Time         `firestore:"reserved_at" json:"reserved_at,omitempty"`
	PurchasedAt *time.Time         `firestore:"purchased_at" json:"purchased_at,omitempty"`
}

// TicketID is the deterministic document id of a raffle's ticket number.
func TicketID(raffleID string, number int) string {
	return fmt.Sprintf("%s_%d", raffleID, number)
}

func NewTicket(raffleID string, number int) Ticket {
	return Ticket{
		ID:       TicketID(raffleID, number),
		RaffleID: raffleID,
		Number:   number,
		Status:   types.TICKET_AVAILABLE,
	}
}

// TicketFilter selects tickets of a single raffle. Zero fields are ignored.
type TicketFilter struct {
	RaffleID string
	Status   types.TicketStatus
	OrderID  string
	Numbers  []int
	Limit    int
}

// TicketOwner is the claim written onto a ticket when it is reserved.
type TicketOwner struct {
	UserID     string
	OrderID    string
	ReservedAt time.Time
}

// TicketUpdate describes a state transition. Owner sets the claim, Release clears it.
type TicketUpdate struct {
	Status      types.TicketStatus
	Owner       *TicketOwner
	Release     bool
	PurchasedAt *time.Time
}

// Apply mutates t according to the update.
func (u TicketUpdate) Apply(t *Ticket) {
	t.Status = u.Status
	if u.Owner != nil {
		userID, orderID, at := u.Owner.UserID, u.Owner.OrderID, u.Owner.ReservedAt
		t.UserID = &userID
		t.OrderID = &orderID
		t.ReservedAt = &at
	}
	if u.Release {
		t.UserID = nil
		t.OrderID = nil
		t.ReservedAt = nil
		t.PurchasedAt = nil
	}
	if u.PurchasedAt != nil {
		at := *u.PurchasedAt
		t.PurchasedAt = &at
	}
}
