package models

import (
	"raffles/src/types"
	"time"
)

type Raffle struct {
	ID            string             `gorm:"primarykey;size:64" firestore:"-" json:"id"`
	Title         string             `firestore:"title" json:"title"`
	Slug          string             `gorm:"index" firestore:"slug" json:"slug,omitempty"`
	Description   string             `firestore:"description" json:"description,omitempty"`
	UnitPrice     float64            `firestore:"unit_price" json:"unit_price"`
	TotalTickets  int                `firestore:"qtd_total" json:"qtd_total"`
	DrawAt        time.Time          `firestore:"draw_at" json:"draw_at"`
	Status        types.RaffleStatus `gorm:"index;default:'active'" firestore:"status" json:"status"`
	Images        types.StringArray  `gorm:"type:text" firestore:"images" json:"images,omitempty"`
	PrizeTiles    types.PrizeTiles   `gorm:"type:text" firestore:"prize_tiles" json:"prize_tiles,omitempty"`
	QuantitySold  int                `firestore:"qtd_vendida" json:"qtd_vendida"`
	Participants  int                `firestore:"participantes" json:"participantes"`
	Revenue       float64            `firestore:"revenue" json:"revenue"`
	WinningNumber *int               `firestore:"winning_number" json:"winning_number,omitempty"`
	WinnerID      *string            `firestore:"winner_id" json:"winner_id,omitempty"`
	WinnerName    *string            `firestore:"winner_name" json:"winner_name,omitempty"`
	DrawnAt       *time.Time         `firestore:"drawn_at" json:"drawn_at,omitempty"`
	CreatedBy     string             `firestore:"created_by" json:"created_by,omitempty"`

	types.Timestamps
}

// PrizeFor returns the bonus prize mapped to a ticket number, if any.
func (r *Raffle) PrizeFor(number int) (string, bool) {
	for _, tile := range r.PrizeTiles {
		if tile.Number == number {
			return tile.Prize, true
		}
	}
	return "", false
}

type RaffleUpdate struct {
	Status        *types.RaffleStatus
	TotalTickets  *int
	WinningNumber *int
	WinnerID      *string
	WinnerName    *string
	DrawnAt       *time.Time
}

// RaffleCounters are increments applied atomically to a raffle's aggregates.
type RaffleCounters struct {
	Sold         int
	Participants int
	Revenue      float64
}
