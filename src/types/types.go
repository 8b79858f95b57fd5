package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Timestamps struct {
	CreatedAt time.Time `gorm:"autoCreateTime" firestore:"created_at" json:"created_at,omitempty"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" firestore:"updated_at" json:"updated_at,omitempty"`
}

type IntArray []int
type StringArray []string

// scanBytes accepts both []byte and string column values; sqlite returns TEXT as string.
func scanBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case nil:
		return nil, nil
	}
	return nil, errors.New("type assertion to []byte failed")
}

func (a IntArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *IntArray) Scan(value any) error {
	b, err := scanBytes(value)
	if err != nil || b == nil {
		return err
	}
	return json.Unmarshal(b, a)
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *StringArray) Scan(value any) error {
	b, err := scanBytes(value)
	if err != nil || b == nil {
		return err
	}
	return json.Unmarshal(b, a)
}

type RaffleStatus string

const (
	RAFFLE_ACTIVE    RaffleStatus = "active"
	RAFFLE_PAUSED    RaffleStatus = "paused"
	RAFFLE_FINALIZED RaffleStatus = "finalized"
)

func (s RaffleStatus) Valid() bool {
	switch s {
	case RAFFLE_ACTIVE, RAFFLE_PAUSED, RAFFLE_FINALIZED:
		return true
	}
	return false
}

type TicketStatus string

const (
	TICKET_AVAILABLE TicketStatus = "available"
	TICKET_RESERVED  TicketStatus = "reserved"
	TICKET_SOLD      TicketStatus = "sold"
	TICKET_WINNER    TicketStatus = "winner"
)

// TicketStatuses lists every ticket state, in state machine order.
var TicketStatuses = []TicketStatus{TICKET_AVAILABLE, TICKET_RESERVED, TICKET_SOLD, TICKET_WINNER}

// Owned reports whether a ticket in this state must carry an owning user.
func (s TicketStatus) Owned() bool {
	return s == TICKET_RESERVED || s == TICKET_SOLD || s == TICKET_WINNER
}

type OrderStatus string

const (
	ORDER_RESERVED  OrderStatus = "reserved"
	ORDER_PAID      OrderStatus = "paid"
	ORDER_CANCELLED OrderStatus = "cancelled"
	ORDER_EXPIRED   OrderStatus = "expired"
)

// Closed reports whether the order released its tickets.
func (s OrderStatus) Closed() bool {
	return s == ORDER_CANCELLED || s == ORDER_EXPIRED
}

type Environment string

const (
	Local      Environment = "local"
	Test       Environment = "test"
	Production Environment = "production"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	UID   string
	Name  string
	Email string
	Admin bool
}

// CanAccess reports whether the caller owns the resource or is an administrator.
func (c Caller) CanAccess(ownerID string) bool {
	return c.Admin || (c.UID != "" && c.UID == ownerID)
}

type PrizeTile struct {
	Number int    `firestore:"number" json:"number" binding:"required,gt=0"`
	Prize  string `firestore:"prize" json:"prize" binding:"required"`
}

type PrizeTiles []PrizeTile

func (a PrizeTiles) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *PrizeTiles) Scan(value any) error {
	b, err := scanBytes(value)
	if err != nil || b == nil {
		return err
	}
	return json.Unmarshal(b, a)
}

type CreateRaffleRequestBody struct {
	Title        string      `json:"title" binding:"required"`
	Description  string      `json:"description,omitempty"`
	UnitPrice    float64     `json:"unit_price" binding:"required,gt=0"`
	TotalTickets int         `json:"qtd_total" binding:"required,gt=0"`
	DrawAt       string      `json:"draw_at" binding:"required,futuredate"`
	Images       []string    `json:"images,omitempty" binding:"omitempty,dive,url"`
	PrizeTiles   []PrizeTile `json:"prize_tiles,omitempty" binding:"omitempty,dive"`
}

type CreateTicketsRequestBody struct {
	Count int `json:"count" binding:"required,gt=0"`
}

type UpdateRaffleStatusRequestBody struct {
	Status RaffleStatus `json:"status" binding:"required,oneof=active paused"`
}

type ReserveRequestBody struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

type DrawRequestBody struct {
	Number *int `json:"number,omitempty" binding:"omitempty,gt=0"`
}

type SimpleRequestParams struct {
	ID string `uri:"id" binding:"required"`
}

type TicketsQueryFilters struct {
	Status TicketStatus `form:"status" binding:"omitempty,oneof=available reserved sold winner"`
}

type RafflesQueryFilters struct {
	Status RaffleStatus `form:"status" binding:"omitempty,oneof=active paused finalized"`
}

type DrawResult struct {
	RaffleID      string    `json:"raffle_id"`
	WinningNumber int       `json:"winning_number"`
	WinnerID      string    `json:"winner_id"`
	WinnerName    string    `json:"winner_name"`
	BonusPrize    string    `json:"bonus_prize,omitempty"`
	DrawnAt       time.Time `json:"drawn_at"`
}

type TicketStats struct {
	RaffleID  string `json:"raffle_id"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	Sold      int    `json:"sold"`
	Winner    int    `json:"winner"`
}

// Sum is the number of tickets across every state; it equals Total for a consistent raffle.
func (s TicketStats) Sum() int {
	return s.Available + s.Reserved + s.Sold + s.Winner
}

// DateLayout is the legacy request date format; RFC 3339 is accepted as well.
const DateLayout = "2006-01-02 15:04:05 -07:00"

func ParseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse(DateLayout, value)
}
