// Package tracker implements the calorie/deficit tracker: daily in/out
// entries accumulate deficit points against a fixed monthly goal.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/edgeee/pinchat/store"
)

const entriesPath = "entries"

// MonthlyGoal is the fixed points target per calendar month.
const MonthlyGoal = 25000

// An Entry is one calorie record. Points equal the deficit
// (caloriesOut - caloriesIn) and may be negative on a surplus day.
type Entry struct {
	ID          string
	CaloriesIn  int
	CaloriesOut int
	Deficit     int
	Points      int
	Timestamp   time.Time
	Date        string
}

// A Summary aggregates a user's points for today and the current month.
type Summary struct {
	TodayPoints int
	MonthPoints int
	Progress    float64
}

// entryDoc is the stored form under entries/{pin}/{entryId}.
type entryDoc struct {
	CaloriesIn  int    `json:"caloriesIn"`
	CaloriesOut int    `json:"caloriesOut"`
	Deficit     int    `json:"deficit"`
	Points      int    `json:"points"`
	Timestamp   int64  `json:"timestamp"`
	Date        string `json:"date"`
}

func (d entryDoc) Entry(id string) Entry {
	return Entry{
		ID:          id,
		CaloriesIn:  d.CaloriesIn,
		CaloriesOut: d.CaloriesOut,
		Deficit:     d.Deficit,
		Points:      d.Points,
		Timestamp:   time.UnixMilli(d.Timestamp),
		Date:        d.Date,
	}
}

// A Service owns entry persistence for all users.
type Service struct {
	Store  store.Store
	Logger *slog.Logger

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewService returns a tracker service backed by st.
func NewService(st store.Store, logger *slog.Logger) *Service {
	return &Service{Store: st, Logger: logger, Now: time.Now}
}

// Add records a calorie entry. Both calorie counts must be positive.
func (s *Service) Add(ctx context.Context, pin string, caloriesIn, caloriesOut int) (Entry, error) {
	if caloriesIn <= 0 || caloriesOut <= 0 {
		return Entry{}, fmt.Errorf("calorie counts must be positive")
	}

	now := s.Now()
	deficit := caloriesOut - caloriesIn
	doc := entryDoc{
		CaloriesIn:  caloriesIn,
		CaloriesOut: caloriesOut,
		Deficit:     deficit,
		Points:      deficit,
		Timestamp:   now.UnixMilli(),
		Date:        now.Format(time.DateOnly),
	}
	id, err := s.Store.Append(ctx, store.Join(entriesPath, pin), doc)
	if err != nil {
		return Entry{}, fmt.Errorf("persist entry: %w", err)
	}
	return doc.Entry(id), nil
}

// Delete removes an entry. Deleting an absent entry is a no-op.
func (s *Service) Delete(ctx context.Context, pin, id string) error {
	if err := s.Store.Delete(ctx, store.Join(entriesPath, pin, id)); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// List returns the user's entries in descending timestamp order.
func (s *Service) List(ctx context.Context, pin string) ([]Entry, error) {
	snap, err := s.Store.ReadOnce(ctx, store.Join(entriesPath, pin))
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	return decodeEntries(snap)
}

// Subscribe registers a live callback for the user's entry list.
func (s *Service) Subscribe(pin string, onChange func([]Entry)) (func(), error) {
	unsubscribe, err := s.Store.Subscribe(store.Join(entriesPath, pin), func(snap any) {
		entries, err := decodeEntries(snap)
		if err != nil {
			s.Logger.Error("Could not decode entry snapshot", "pin", pin, "error", err.Error())
			return
		}
		onChange(entries)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe entries: %w", err)
	}
	return unsubscribe, nil
}

// Summarize aggregates today's and the current month's points and the
// progress percentage toward MonthlyGoal.
func (s *Service) Summarize(ctx context.Context, pin string) (Summary, error) {
	entries, err := s.List(ctx, pin)
	if err != nil {
		return Summary{}, err
	}

	now := s.Now()
	today := now.Format(time.DateOnly)
	month := now.Format("2006-01")

	var sum Summary
	for _, e := range entries {
		if e.Date == today {
			sum.TodayPoints += e.Points
		}
		if len(e.Date) >= len(month) && e.Date[:len(month)] == month {
			sum.MonthPoints += e.Points
		}
	}
	sum.Progress = float64(sum.MonthPoints) / float64(MonthlyGoal) * 100
	return sum, nil
}

func decodeEntries(snap any) ([]Entry, error) {
	entries := []Entry{}
	if snap == nil {
		return entries, nil
	}
	branch, ok := snap.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("entry snapshot is not a document tree")
	}
	for id, raw := range branch {
		var doc entryDoc
		if err := store.Decode(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", id, err)
		}
		entries = append(entries, doc.Entry(id))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}
