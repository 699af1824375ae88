package domain

import "time"

// Tag is a named label attached to tickets.
type Tag struct {
	ID        string
	Name      string
	Color     string
	CreatedAt time.Time
}
