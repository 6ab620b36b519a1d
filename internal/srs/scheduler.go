package srs

import "time"

// Scheduler folds review outcomes into new State values. It holds only
// read-only configuration and is safe for concurrent use.
type Scheduler struct {
	intervals  []int
	wrongDelay time.Duration
}

// NewScheduler creates a scheduler over an ascending ladder of day intervals.
// An empty ladder or non-positive delay falls back to the defaults.
func NewScheduler(intervalDays []int, wrongDelay time.Duration) *Scheduler {
	if len(intervalDays) == 0 {
		intervalDays = DefaultIntervals
	}
	if wrongDelay <= 0 {
		wrongDelay = DefaultWrongDelay
	}
	return &Scheduler{
		intervals:  append([]int(nil), intervalDays...),
		wrongDelay: wrongDelay,
	}
}

// Intervals returns a copy of the ladder in days.
func (s *Scheduler) Intervals() []int {
	return append([]int(nil), s.intervals...)
}

// Rung returns the ladder index the item currently sits on, or -1 when it has
// never been reviewed or was last answered wrong.
func (s *Scheduler) Rung(st State) int {
	if st.LastReviewedAt == nil {
		return -1
	}
	gap := st.NextReviewAt.Sub(*st.LastReviewedAt)
	rung := -1
	for i, d := range s.intervals {
		if gap < time.Duration(d)*day {
			break
		}
		rung = i
	}
	return rung
}

// Review returns the state after a review answered at now.
//
// A wrong answer drops the item off the ladder and schedules it after the
// wrong-answer delay. A correct answer climbs one rung; past the last rung
// the last interval repeats.
func (s *Scheduler) Review(st State, correct bool, now time.Time) State {
	reviewed := now
	next := State{AddedAt: st.AddedAt, LastReviewedAt: &reviewed}

	if !correct {
		next.NextReviewAt = now.Add(s.wrongDelay)
		return next
	}

	rung := min(s.Rung(st)+1, len(s.intervals)-1)
	next.NextReviewAt = now.Add(s.Interval(rung))
	return next
}

// Interval returns the interval for a rung, clamped to the ladder.
func (s *Scheduler) Interval(rung int) time.Duration {
	rung = max(0, min(rung, len(s.intervals)-1))
	return time.Duration(s.intervals[rung]) * day
}
