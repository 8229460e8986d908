package message

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/workdesk/core"
)

// Message is a broadcast (no receiver) or a direct chat message.
type Message struct {
	ID         string    `json:"id" db:"id"`
	Content    string    `json:"content" db:"content"`
	SenderID   string    `json:"sender_id" db:"sender_id"`
	ReceiverID *string   `json:"receiver_id" db:"receiver_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"` // UTC

	// SenderEmail is the sender's display label, joined from users.
	SenderEmail string `json:"sender_email,omitempty" db:"sender_email"`
}

func (m Message) RecordID() string { return m.ID }

func (m Message) IsBroadcast() bool { return m.ReceiverID == nil }

type NewMessage struct {
	Content    string `json:"content" validate:"required,notblank,max=4000"`
	ReceiverID string `json:"receiver_id"` // empty for broadcast
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Content = core.CleanString(nm.Content)
	nm.ReceiverID = core.CleanString(nm.ReceiverID)
	return validate.Struct(nm)
}

// Ordering is the chat order: oldest first.
var Ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}

// Less orders messages by creation time.
func Less(a, b Message) bool { return a.CreatedAt.Before(b.CreatedAt) }
