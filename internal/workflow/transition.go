// Package workflow holds the rule deciding which task status changes are legal.
//
// Columns are ordered todo < in-progress < done and a task may only move to
// an adjacent column. Skipping in-progress in either direction is rejected.
package workflow

import (
	"errors"
	"fmt"

	"taskboard/internal/models"
)

// ErrInvalidTransition marks a rejected non-adjacent status change.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError describes a rejected move.
type TransitionError struct {
	From models.Status
	To   models.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move task directly from %s to %s; move to an adjacent status only",
		e.From.Label(), e.To.Label())
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func order(s models.Status) int {
	switch s {
	case models.StatusTodo:
		return 0
	case models.StatusInProgress:
		return 1
	case models.StatusDone:
		return 2
	}
	return -1
}

// IsValidTransition reports whether a task may move from one status to another.
func IsValidTransition(from, to models.Status) bool {
	f, t := order(from), order(to)
	if f < 0 || t < 0 || f == t {
		return false
	}
	d := t - f
	return d == 1 || d == -1
}

// CheckTransition returns nil for a legal move. Same-status requests return
// nil too with noop set, since there is nothing to do.
func CheckTransition(from, to models.Status) (noop bool, err error) {
	if !to.Valid() {
		return false, fmt.Errorf("%w: %q", models.ErrInvalidStatus, to)
	}
	if from == to {
		return true, nil
	}
	if !IsValidTransition(from, to) {
		return false, &TransitionError{From: from, To: to}
	}
	return false, nil
}

// Targets lists the statuses reachable from the given one in column order.
func Targets(from models.Status) []models.Status {
	out := make([]models.Status, 0, 2)
	for _, s := range models.Statuses {
		if IsValidTransition(from, s) {
			out = append(out, s)
		}
	}
	return out
}
