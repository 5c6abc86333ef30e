package domain

import (
	"fmt"
	"time"
)

// Status is the task lifecycle state.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// allowedTransitions: done cannot go straight back to todo.
var allowedTransitions = map[Status][]Status{
	StatusTodo:       {StatusInProgress, StatusDone},
	StatusInProgress: {StatusTodo, StatusDone},
	StatusDone:       {StatusInProgress},
}

// CanTransition reports whether from -> to is an allowed edge.
// A self-transition is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error naming the rejected edge, or nil.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("invalid status transition: %s -> %s", from, to)
}

// Task is the domain entity. Owner is fixed at creation; UpdatedAt is
// store-maintained and serves as the optimistic-concurrency token.
type Task struct {
	ID      int64
	OwnerID int64
	Title   string
	Status  Status

	// Soft delete: both nil or both set.
	DeletedAt *time.Time
	DeletedBy *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deleted reports whether the task is soft-deleted.
func (t Task) Deleted() bool { return t.DeletedAt != nil }
