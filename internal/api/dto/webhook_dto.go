package dto

import "encoding/json"

// CallbackEvent is the webhook envelope posted by the platform.
type CallbackEvent struct {
	Type    string          `json:"type"`
	GroupID int64           `json:"group_id"`
	Secret  string          `json:"secret"`
	Object  json.RawMessage `json:"object"`
}

// MessageNewObject is the object payload of a message_new event.
type MessageNewObject struct {
	Message IncomingMessage `json:"message"`
}

// IncomingMessage is the platform's message record inside message_new.
type IncomingMessage struct {
	ID          int64           `json:"id"`
	FromID      int64           `json:"from_id"`
	Text        string          `json:"text"`
	Attachments json.RawMessage `json:"attachments"`
	Date        int64           `json:"date"`
}
