package models

import "time"

// LookupJob represents one submitted lookup tracked from submission to its
// terminal outcome (one row per provider-assigned search id).
type LookupJob struct {
	SearchID  string     `json:"searchId" db:"search_id"`
	ChatID    string     `json:"chatId" db:"chat_id"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	LastCheck *time.Time `json:"lastCheck,omitempty" db:"last_check"`
	Attempt   int        `json:"attempt" db:"attempt"`
	Status    string     `json:"status" db:"status"`
	Done      bool       `json:"done" db:"done"`
}
