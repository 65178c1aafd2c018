package chat

import (
	"fmt"
	"strconv"
	"time"
)

// TTL values accepted at signup. A bare decimal hour count such as "48" is
// also accepted.
const (
	TTLDay   = "24h"
	TTLNever = "never"
)

// An Account is a user record keyed by its 6-digit PIN.
type Account struct {
	PIN      string
	Password string
	TTL      string
}

// A Message belongs to exactly one channel. ExpiresAt is nil when the sender
// keeps messages forever. Reactions maps a reacting user's PIN to the single
// emoji that user holds on the message. ReplyTo holds the id of the
// replied-to message, resolved at render time.
type Message struct {
	ID        string
	From      string
	To        string
	Text      string
	Timestamp time.Time
	ExpiresAt *time.Time
	Reactions map[string]string
	ReplyTo   string
}

// ParseTTL converts a configured lifetime into a duration. expires is false
// for "never". Unrecognized values are rejected.
func ParseTTL(ttl string) (d time.Duration, expires bool, err error) {
	switch ttl {
	case TTLNever:
		return 0, false, nil
	case TTLDay:
		return 24 * time.Hour, true, nil
	}
	hours, convErr := strconv.Atoi(ttl)
	if convErr != nil || hours <= 0 {
		return 0, false, fmt.Errorf("invalid message lifetime %q", ttl)
	}
	return time.Duration(hours) * time.Hour, true, nil
}

// accountDoc is the stored form of an Account under users/{pin}.
type accountDoc struct {
	Password string `json:"password"`
	TTL      string `json:"ttl"`
}

func (d accountDoc) Account(pin string) Account {
	return Account{PIN: pin, Password: d.Password, TTL: d.TTL}
}

// messageDoc is the stored form of a Message under
// messages/{channelId}/{messageId}. Timestamps are Unix milliseconds.
type messageDoc struct {
	From      string            `json:"from"`
	To        string            `json:"to"`
	Text      string            `json:"text"`
	Timestamp int64             `json:"timestamp"`
	ExpiresAt int64             `json:"expiresAt,omitempty"`
	Reactions map[string]string `json:"reactions,omitempty"`
	ReplyTo   string            `json:"replyTo,omitempty"`
}

func (d messageDoc) Message(id string) Message {
	msg := Message{
		ID:        id,
		From:      d.From,
		To:        d.To,
		Text:      d.Text,
		Timestamp: time.UnixMilli(d.Timestamp),
		Reactions: d.Reactions,
		ReplyTo:   d.ReplyTo,
	}
	if d.ExpiresAt != 0 {
		t := time.UnixMilli(d.ExpiresAt)
		msg.ExpiresAt = &t
	}
	if msg.Reactions == nil {
		msg.Reactions = map[string]string{}
	}
	return msg
}

func docFromMessage(msg Message) messageDoc {
	doc := messageDoc{
		From:      msg.From,
		To:        msg.To,
		Text:      msg.Text,
		Timestamp: msg.Timestamp.UnixMilli(),
		Reactions: msg.Reactions,
		ReplyTo:   msg.ReplyTo,
	}
	if msg.ExpiresAt != nil {
		doc.ExpiresAt = msg.ExpiresAt.UnixMilli()
	}
	return doc
}
