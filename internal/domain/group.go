package domain

import "time"

// Group is one connected messaging-platform community. It carries the
// credentials used to resolve user identities, verify webhook callbacks and
// deliver replies. Tickets and messages are scoped to exactly one group.
type Group struct {
	ID                string
	GroupID           int64
	Name              string
	AccessToken       string
	ConfirmationToken string
	SecretKey         string
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
