// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types published by the reward engine after a commit.
const (
	EventRewardGranted EventType = "progress.reward_granted"
	EventRankUp        EventType = "progress.rank_up"
	EventStreakUpdated EventType = "progress.streak_updated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventID returns the unique identifier of the event.
	EventID() string

	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventID implements Event interface.
func (e BaseEvent) EventID() string {
	return e.ID
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// RewardGrantedEvent is emitted when a task completion earned a reward.
type RewardGrantedEvent struct {
	BaseEvent
	Module      Module  `json:"module"`
	CategoryID  int     `json:"category_id"`
	Slot        int     `json:"slot"`
	Performance float64 `json:"performance"`
	Currency    int     `json:"currency"`
	Experience  float64 `json:"experience"`
	Population  int     `json:"population"`
}

// Payload implements Event interface.
func (e RewardGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"module":      e.Module.String(),
		"category_id": e.CategoryID,
		"slot":        e.Slot,
		"performance": e.Performance,
		"currency":    e.Currency,
		"experience":  e.Experience,
		"population":  e.Population,
	}
}

// NewRewardGrantedEvent creates a new RewardGrantedEvent.
func NewRewardGrantedEvent(profileID string, module Module, categoryID, slot int, performance float64, currency int, experience float64, population int, at time.Time) RewardGrantedEvent {
	return RewardGrantedEvent{
		BaseEvent:   NewBaseEvent(EventRewardGranted, profileID, at),
		Module:      module,
		CategoryID:  categoryID,
		Slot:        slot,
		Performance: performance,
		Currency:    currency,
		Experience:  experience,
		Population:  population,
	}
}

// RankUpEvent is emitted when a reward pushes a profile across a rank band.
type RankUpEvent struct {
	BaseEvent
	OldRank int `json:"old_rank"`
	NewRank int `json:"new_rank"`
}

// Payload implements Event interface.
func (e RankUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_rank": e.OldRank,
		"new_rank": e.NewRank,
	}
}

// NewRankUpEvent creates a new RankUpEvent.
func NewRankUpEvent(profileID string, oldRank, newRank int, at time.Time) RankUpEvent {
	return RankUpEvent{
		BaseEvent: NewBaseEvent(EventRankUp, profileID, at),
		OldRank:   oldRank,
		NewRank:   newRank,
	}
}

// StreakUpdatedEvent is emitted when a module streak was advanced or restarted.
type StreakUpdatedEvent struct {
	BaseEvent
	Module        Module `json:"module"`
	CurrentStreak int    `json:"current_streak"`
	MaxStreak     int    `json:"max_streak"`
	Restarted     bool   `json:"restarted"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"module":         e.Module.String(),
		"current_streak": e.CurrentStreak,
		"max_streak":     e.MaxStreak,
		"restarted":      e.Restarted,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(profileID string, module Module, current, max int, restarted bool, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventStreakUpdated, profileID, at),
		Module:        module,
		CurrentStreak: current,
		MaxStreak:     max,
		Restarted:     restarted,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
