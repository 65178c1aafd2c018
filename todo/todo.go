// Package todo implements the per-user task list with recurrence metadata
// and a day-keyed completion history for calendar rendering.
package todo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/edgeee/pinchat/store"
)

const (
	todosPath   = "todos"
	historyPath = "todoHistory"
)

// Recurrence values a task can carry. RecurringDays is meaningful only for
// weekly tasks.
type Recurrence string

const (
	RecurNone   Recurrence = "none"
	RecurDaily  Recurrence = "daily"
	RecurWeekly Recurrence = "weekly"
)

// A Task is a to-do item owned by a single user.
type Task struct {
	ID            string
	Title         string
	Description   string
	Recurring     Recurrence
	RecurringDays []int
	Completed     bool
	CreatedAt     time.Time
}

// A Draft is the user-editable portion of a task.
type Draft struct {
	Title         string
	Description   string
	Recurring     Recurrence
	RecurringDays []int
}

// taskDoc is the stored form under todos/{pin}/{todoId}.
type taskDoc struct {
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Recurring     string `json:"recurring"`
	RecurringDays []int  `json:"recurringDays,omitempty"`
	Completed     bool   `json:"completed"`
	CreatedAt     int64  `json:"createdAt"`
}

func (d taskDoc) Task(id string) Task {
	return Task{
		ID:            id,
		Title:         d.Title,
		Description:   d.Description,
		Recurring:     Recurrence(d.Recurring),
		RecurringDays: d.RecurringDays,
		Completed:     d.Completed,
		CreatedAt:     time.UnixMilli(d.CreatedAt),
	}
}

// historyDoc is the stored form under todoHistory/{pin}/{date}/{todoId}.
type historyDoc struct {
	Title       string `json:"title"`
	CompletedAt int64  `json:"completedAt"`
}

// A Service owns task persistence for all users.
type Service struct {
	Store  store.Store
	Logger *slog.Logger

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewService returns a task service backed by st.
func NewService(st store.Store, logger *slog.Logger) *Service {
	return &Service{Store: st, Logger: logger, Now: time.Now}
}

// Add stores a new task. A blank title is rejected.
func (s *Service) Add(ctx context.Context, pin string, draft Draft) (Task, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return Task{}, fmt.Errorf("task title is required")
	}
	if err := validRecurrence(draft.Recurring); err != nil {
		return Task{}, err
	}

	doc := taskDoc{
		Title:         draft.Title,
		Description:   draft.Description,
		Recurring:     string(recurrenceOrNone(draft.Recurring)),
		RecurringDays: draft.RecurringDays,
		Completed:     false,
		CreatedAt:     s.Now().UnixMilli(),
	}
	id, err := s.Store.Append(ctx, store.Join(todosPath, pin), doc)
	if err != nil {
		return Task{}, fmt.Errorf("persist task: %w", err)
	}
	return doc.Task(id), nil
}

// Edit updates a task's title, description and recurrence. Completion state
// and creation time are untouched.
func (s *Service) Edit(ctx context.Context, pin, id string, draft Draft) error {
	if strings.TrimSpace(draft.Title) == "" {
		return fmt.Errorf("task title is required")
	}
	if err := validRecurrence(draft.Recurring); err != nil {
		return err
	}

	path := store.Join(todosPath, pin, id)
	snap, err := s.Store.ReadOnce(ctx, path)
	if err != nil {
		return fmt.Errorf("read task: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("task %s not found", id)
	}

	fields := map[string]any{
		"title":         draft.Title,
		"description":   draft.Description,
		"recurring":     string(recurrenceOrNone(draft.Recurring)),
		"recurringDays": draft.RecurringDays,
	}
	if err := s.Store.Update(ctx, path, fields); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// Delete removes a task. History records for past completions remain.
func (s *Service) Delete(ctx context.Context, pin, id string) error {
	if err := s.Store.Delete(ctx, store.Join(todosPath, pin, id)); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ToggleComplete flips a task's completion state. Completing writes a
// history record under today's date; un-completing leaves history alone.
func (s *Service) ToggleComplete(ctx context.Context, pin, id string) error {
	path := store.Join(todosPath, pin, id)
	snap, err := s.Store.ReadOnce(ctx, path)
	if err != nil {
		return fmt.Errorf("read task: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("task %s not found", id)
	}
	var doc taskDoc
	if err := store.Decode(snap, &doc); err != nil {
		return fmt.Errorf("decode task: %w", err)
	}

	completed := !doc.Completed
	if err := s.Store.Update(ctx, path, map[string]any{"completed": completed}); err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	if completed {
		now := s.Now()
		record := historyDoc{Title: doc.Title, CompletedAt: now.UnixMilli()}
		historyKey := store.Join(historyPath, pin, now.Format(time.DateOnly), id)
		if err := s.Store.Write(ctx, historyKey, record); err != nil {
			return fmt.Errorf("record completion: %w", err)
		}
	}
	return nil
}

// List returns the user's tasks ordered by creation time.
func (s *Service) List(ctx context.Context, pin string) ([]Task, error) {
	snap, err := s.Store.ReadOnce(ctx, store.Join(todosPath, pin))
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return decodeTasks(snap)
}

// Subscribe registers a live callback for the user's task list.
func (s *Service) Subscribe(pin string, onChange func([]Task)) (func(), error) {
	unsubscribe, err := s.Store.Subscribe(store.Join(todosPath, pin), func(snap any) {
		tasks, err := decodeTasks(snap)
		if err != nil {
			s.Logger.Error("Could not decode task snapshot", "pin", pin, "error", err.Error())
			return
		}
		onChange(tasks)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe tasks: %w", err)
	}
	return unsubscribe, nil
}

// MonthSummary returns completed-task counts per day of the given month,
// keyed by day number. Days with no completions are absent.
func (s *Service) MonthSummary(ctx context.Context, pin string, year int, month time.Month) (map[int]int, error) {
	snap, err := s.Store.ReadOnce(ctx, store.Join(historyPath, pin))
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	out := make(map[int]int)
	branch, ok := snap.(map[string]any)
	if !ok {
		return out, nil
	}
	for dateStr, records := range branch {
		date, err := time.Parse(time.DateOnly, dateStr)
		if err != nil {
			continue
		}
		if date.Year() != year || date.Month() != month {
			continue
		}
		day, ok := records.(map[string]any)
		if !ok {
			continue
		}
		out[date.Day()] = len(day)
	}
	return out, nil
}

func decodeTasks(snap any) ([]Task, error) {
	tasks := []Task{}
	if snap == nil {
		return tasks, nil
	}
	branch, ok := snap.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("task snapshot is not a document tree")
	}
	for id, raw := range branch {
		var doc taskDoc
		if err := store.Decode(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", id, err)
		}
		tasks = append(tasks, doc.Task(id))
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func recurrenceOrNone(r Recurrence) Recurrence {
	if r == "" {
		return RecurNone
	}
	return r
}

func validRecurrence(r Recurrence) error {
	switch recurrenceOrNone(r) {
	case RecurNone, RecurDaily, RecurWeekly:
		return nil
	}
	return fmt.Errorf("invalid recurrence %q", r)
}
