package models

import "time"

// Integration holds the credentials and settings for one upstream POS
// account. Runs always belong to exactly one integration.
type Integration struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Source      string    `json:"source"`
	AccessToken string    `json:"-"`
	Environment string    `json:"environment"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
