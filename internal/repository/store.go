// Package repository defines the local storage interface and its SQLite implementation.
package repository

import (
	"context"
	"errors"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

// ErrNoPending is returned when no pending submission is cached.
var ErrNoPending = errors.New("no pending submission")

// PendingStore caches the submission waiting to be streamed.
type PendingStore interface {
	// SavePending replaces any cached submission with p.
	SavePending(ctx context.Context, p *domain.PendingSubmission) error
	// LoadPending returns the cached submission or ErrNoPending.
	LoadPending(ctx context.Context) (*domain.PendingSubmission, error)
	// DeletePending removes the submission with id and reports whether it existed.
	DeletePending(ctx context.Context, id string) (bool, error)
}

// OutcomeStore archives how sessions completed.
type OutcomeStore interface {
	RecordOutcome(ctx context.Context, o *domain.Outcome) error
	ListOutcomes(ctx context.Context, limit int) ([]domain.Outcome, error)
}

// Store defines the interface for local persistence.
type Store interface {
	PendingStore
	OutcomeStore

	// Lifecycle
	Close() error
}
