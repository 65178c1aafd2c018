package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/edgeee/pinchat/store"
)

const messagesPath = "messages"

// A MessageStore appends, lists, mutates and deletes messages within a
// channel. The backing store makes no ordering guarantee, so reads sort by
// timestamp.
type MessageStore struct {
	Store  store.Store
	Logger *slog.Logger
}

// NewMessageStore returns a MessageStore backed by st.
func NewMessageStore(st store.Store, logger *slog.Logger) *MessageStore {
	return &MessageStore{Store: st, Logger: logger}
}

// Append persists msg in the channel and returns the stored record with its
// generated id.
func (s *MessageStore) Append(ctx context.Context, channelID string, msg Message) (Message, error) {
	id, err := s.Store.Append(ctx, store.Join(messagesPath, channelID), docFromMessage(msg))
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	msg.ID = id
	if msg.Reactions == nil {
		msg.Reactions = map[string]string{}
	}
	return msg, nil
}

// List returns all messages in the channel in ascending timestamp order. A
// channel with no messages yields an empty slice.
func (s *MessageStore) List(ctx context.Context, channelID string) ([]Message, error) {
	snap, err := s.Store.ReadOnce(ctx, store.Join(messagesPath, channelID))
	if err != nil {
		return nil, fmt.Errorf("read channel: %w", err)
	}
	return decodeChannel(snap)
}

// SetReaction records the user's reaction on a message, overwriting any
// prior reaction from the same user. An empty emoji removes the user's
// reaction. Last write wins on concurrent updates.
func (s *MessageStore) SetReaction(ctx context.Context, channelID, messageID, userPIN, emoji string) error {
	path := store.Join(messagesPath, channelID, messageID)
	snap, err := s.Store.ReadOnce(ctx, path)
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	if snap == nil {
		return ErrNotFound
	}

	var doc messageDoc
	if err := store.Decode(snap, &doc); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	reactions := doc.Reactions
	if reactions == nil {
		reactions = map[string]string{}
	}
	if emoji == "" {
		delete(reactions, userPIN)
	} else {
		reactions[userPIN] = emoji
	}

	if err := s.Store.Update(ctx, path, map[string]any{"reactions": reactions}); err != nil {
		return fmt.Errorf("update reactions: %w", err)
	}
	return nil
}

// Subscribe registers a live callback for the channel. The callback receives
// the sorted message list, first with the current state and then after every
// change, until the returned function is called.
func (s *MessageStore) Subscribe(channelID string, onChange func([]Message)) (func(), error) {
	unsubscribe, err := s.Store.Subscribe(store.Join(messagesPath, channelID), func(snap any) {
		msgs, err := decodeChannel(snap)
		if err != nil {
			s.Logger.Error("Could not decode channel snapshot", "channel", channelID, "error", err.Error())
			return
		}
		onChange(msgs)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe channel: %w", err)
	}
	return unsubscribe, nil
}

// Remove deletes a message unconditionally. Removing an absent message is a
// no-op.
func (s *MessageStore) Remove(ctx context.Context, channelID, messageID string) error {
	if err := s.Store.Delete(ctx, store.Join(messagesPath, channelID, messageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func decodeChannel(snap any) ([]Message, error) {
	msgs := []Message{}
	if snap == nil {
		return msgs, nil
	}
	branch, ok := snap.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("channel snapshot is not a document tree")
	}
	for id, raw := range branch {
		var doc messageDoc
		if err := store.Decode(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", id, err)
		}
		msgs = append(msgs, doc.Message(id))
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}
