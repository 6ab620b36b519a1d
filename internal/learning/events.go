package learning

import (
	"context"
	"sync"
	"time"
)

// EventType names a progress event.
type EventType string

const (
	EventLessonSubmitted EventType = "lesson_submitted"
	EventSceneSubmitted  EventType = "scene_submitted"
)

// ProgressEvent is published after a submission commits. Replays publish
// nothing.
type ProgressEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	LearnerID    int64     `json:"learner_id"`
	TargetID     int64     `json:"target_id"`
	Score        int       `json:"score"`
	Total        int       `json:"total"`
	Passed       bool      `json:"passed"`
	Completed    bool      `json:"completed"`
	Achievements []string  `json:"achievements,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher delivers progress events. Delivery is best-effort; errors are
// logged and never fail the submission.
type Publisher interface {
	Publish(ctx context.Context, ev ProgressEvent) error
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ProgressEvent) error { return nil }

// MemoryPublisher records events in memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, ev ProgressEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *MemoryPublisher) Events() []ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProgressEvent{}, p.events...)
}
