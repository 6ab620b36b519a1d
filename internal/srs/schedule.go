// Package srs schedules personal vocabulary items for spaced review.
package srs

import "time"

// DefaultIntervals is the default ladder of review intervals in days.
var DefaultIntervals = []int{1, 2, 4, 7, 14, 30, 60}

// DefaultWrongDelay is how long a missed item waits before its next review.
const DefaultWrongDelay = 12 * time.Hour

const day = 24 * time.Hour

// State holds the stored scheduling state for one vocabulary item.
// The ladder position is not stored; it is derived from the gap between
// LastReviewedAt and NextReviewAt.
type State struct {
	AddedAt        time.Time  `json:"added_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	NextReviewAt   time.Time  `json:"next_review_at"`
}

// NewState returns the state of an item added at addedAt. New items are due
// immediately.
func NewState(addedAt time.Time) State {
	return State{AddedAt: addedAt, NextReviewAt: addedAt}
}

// IsDue returns true if the item is due for review (at or past the review date).
func (s State) IsDue(now time.Time) bool {
	return !now.Before(s.NextReviewAt)
}
