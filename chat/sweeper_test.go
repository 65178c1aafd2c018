package chat

import (
	"context"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"github.com/edgeee/pinchat/store/memory"
)

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	msgs := NewMessageStore(st, slogt.New(t))
	channel := ChannelID("111111", "222222")

	expired := testClock(-time.Minute)
	future := testClock(48 * time.Hour)

	if _, err := msgs.Append(ctx, channel, Message{
		From: "111111", To: "222222", Text: "gone", Timestamp: testClock(-25 * time.Hour), ExpiresAt: &expired,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := msgs.Append(ctx, channel, Message{
		From: "111111", To: "222222", Text: "fresh", Timestamp: testClock(0), ExpiresAt: &future,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := msgs.Append(ctx, channel, Message{
		From: "222222", To: "111111", Text: "forever", Timestamp: testClock(-1000 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	sweeper := NewSweeper(st, slogt.New(t))
	sweeper.Now = func() time.Time { return testClock(0) }

	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := msgs.List(ctx, channel)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Got %d messages after sweep, want 2: %v", len(got), got)
	}
	for _, msg := range got {
		if msg.Text == "gone" {
			t.Error("Expired message survived the sweep")
		}
	}
}

func TestSweeper_BoundaryAndNoExpiry(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	msgs := NewMessageStore(st, slogt.New(t))
	channel := ChannelID("111111", "222222")

	// expiresAt exactly now is eligible.
	atNow := testClock(0)
	if _, err := msgs.Append(ctx, channel, Message{
		From: "111111", To: "222222", Text: "boundary", Timestamp: testClock(-time.Hour), ExpiresAt: &atNow,
	}); err != nil {
		t.Fatal(err)
	}

	sweeper := NewSweeper(st, slogt.New(t))
	sweeper.Now = func() time.Time { return testClock(0) }
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := msgs.List(ctx, channel)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Message with expiresAt == now survived: %v", got)
	}

	// A message with no expiry is never removed, however old.
	if _, err := msgs.Append(ctx, channel, Message{
		From: "111111", To: "222222", Text: "forever", Timestamp: testClock(-10000 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	sweeper.Now = func() time.Time { return testClock(100000 * time.Hour) }
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatal(err)
	}
	got, err = msgs.List(ctx, channel)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("Got %d messages, want the unexpiring one to survive", len(got))
	}
}

// A sweeper assembled field by field, without going through NewSweeper,
// falls back to the real clock instead of dereferencing a nil Now.
func TestSweeper_DefaultClock(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	msgs := NewMessageStore(st, slogt.New(t))
	channel := ChannelID("111111", "222222")

	expired := time.Now().Add(-time.Minute)
	if _, err := msgs.Append(ctx, channel, Message{
		From: "111111", To: "222222", Text: "gone", Timestamp: expired.Add(-24 * time.Hour), ExpiresAt: &expired,
	}); err != nil {
		t.Fatal(err)
	}

	sweeper := &Sweeper{Store: st, Logger: slogt.New(t), Interval: DefaultSweepInterval}
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := msgs.List(ctx, channel)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Got %d messages after sweep, want 0", len(got))
	}
}

func TestSweeper_SweepsAllChannels(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	msgs := NewMessageStore(st, slogt.New(t))

	expired := testClock(-time.Second)
	for _, channel := range []string{ChannelID("111111", "222222"), ChannelID("333333", "444444")} {
		if _, err := msgs.Append(ctx, channel, Message{
			From: "111111", To: "222222", Text: "old", Timestamp: testClock(-time.Hour), ExpiresAt: &expired,
		}); err != nil {
			t.Fatal(err)
		}
	}

	sweeper := NewSweeper(st, slogt.New(t))
	sweeper.Now = func() time.Time { return testClock(0) }
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	snap, err := st.ReadOnce(ctx, "messages")
	if err != nil {
		t.Fatal(err)
	}
	if snap != nil {
		t.Errorf("Corpus after sweep = %v, want empty", snap)
	}
}
