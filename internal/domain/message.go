package domain

import (
	"encoding/json"
	"time"
)

// MessageOrigin indicates which side of the conversation wrote a message.
type MessageOrigin string

const (
	OriginUser  MessageOrigin = "user"
	OriginStaff MessageOrigin = "staff"
)

// Message is one entry in a ticket's ledger. ExternalID is the platform's
// own message id when the message arrived over the webhook; staff replies
// have none. Attachments is the platform payload kept verbatim, order
// preserved.
type Message struct {
	ID            string
	TicketID      string
	ExternalID    *int64
	Text          string
	Attachments   json.RawMessage
	Origin        MessageOrigin
	Read          bool
	StaffAuthorID *string
	CreatedAt     time.Time
}
