package models

import (
	"raffles/src/types"
)

type User struct {
	ID      string `gorm:"primarykey;size:128" firestore:"-" json:"id"`
	Name    string `firestore:"name" json:"name,omitempty"`
	Email   string `firestore:"email" json:"email,omitempty"`
	IsAdmin bool   `firestore:"is_admin" json:"is_admin"`

	types.Timestamps
}
