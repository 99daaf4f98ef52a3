// Package message defines the message entity. Messages participate in the
// identity story only through their author reference: deleting a user must
// delete every message that user authored.
package message

import (
	"time"

	"github.com/c360/socialgate/errors"
)

// Message is an authored post.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// New constructs an unsaved message.
func New(id, text, authorID string) (*Message, error) {
	m := &Message{
		ID:        id,
		Text:      text,
		AuthorID:  authorID,
		CreatedAt: time.Now(),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks field-level rules.
func (m *Message) Validate() error {
	if m.Text == "" {
		return errors.WrapValidation(errors.ErrInvalidConfig, "message", "Validate",
			"Message text is required.")
	}
	if m.AuthorID == "" {
		return errors.WrapValidation(errors.ErrInvalidConfig, "message", "Validate",
			"Message author is required.")
	}
	return nil
}
