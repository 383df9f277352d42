// Package store provides the storage interface and implementations for the
// agent core. The in-memory store backs tests and local development;
// PostgreSQL backs production.
package store

import (
	"context"
	"time"

	"github.com/totalaud/agentcore/pkg/models"
)

// Store is the primary storage interface for the agent core. Engine code
// depends on this interface, making it easy to swap between in-memory
// (tests) and PostgreSQL (production) implementations. No transactional
// guarantees exist across collections; each call is independent.
type Store interface {
	LoopStore
	LoopEventStore
	SuggestionStore
	ProfileStore
	EvolutionRecordStore
	FusionMessageStore
	MemoryStore
	SessionStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Loop Store ──────────────────────────────────────────────

type LoopStore interface {
	ListLoops(ctx context.Context, userID string) ([]models.AgentLoop, error)
	GetLoop(ctx context.Context, id string) (*models.AgentLoop, error)
	CreateLoop(ctx context.Context, loop *models.AgentLoop) error

	// UpdateLoop is a conditional write: it succeeds only when the stored
	// version equals loop.Version, then bumps the version. Returns
	// ErrConflict when another writer got there first. This is what keeps
	// two workers from both claiming the same due loop.
	UpdateLoop(ctx context.Context, loop *models.AgentLoop) error

	DeleteLoop(ctx context.Context, id string) error
}

// ── Loop Event Store ────────────────────────────────────────

// LoopEventStore is append-only: execution records are never updated.
type LoopEventStore interface {
	CreateLoopEvent(ctx context.Context, event *models.LoopEvent) error
	ListLoopEvents(ctx context.Context, loopID string, limit int) ([]models.LoopEvent, error)
	ListLoopEventsSince(ctx context.Context, since time.Time) ([]models.LoopEvent, error)
}

// ── Suggestion Store ────────────────────────────────────────

type SuggestionStore interface {
	CreateSuggestion(ctx context.Context, s *models.LoopSuggestion) error
	GetSuggestion(ctx context.Context, id string) (*models.LoopSuggestion, error)
	ListSuggestions(ctx context.Context, userID string, status models.SuggestionStatus) ([]models.LoopSuggestion, error)
	UpdateSuggestion(ctx context.Context, s *models.LoopSuggestion) error
}

// ── Profile Store ───────────────────────────────────────────

type ProfileStore interface {
	// GetProfile returns the profile for (user, persona, campaign), or
	// ErrNotFound if one has never been created.
	GetProfile(ctx context.Context, userID string, persona models.Persona, campaignID string) (*models.Profile, error)

	CreateProfile(ctx context.Context, profile *models.Profile) error

	// UpdateProfile is version-conditional like UpdateLoop.
	UpdateProfile(ctx context.Context, profile *models.Profile) error
}

// ── Evolution Record Store ──────────────────────────────────

// EvolutionRecordStore is the append-only audit log of applied drifts.
type EvolutionRecordStore interface {
	CreateEvolutionRecord(ctx context.Context, rec *models.EvolutionRecord) error
	ListEvolutionRecords(ctx context.Context, userID string, persona models.Persona, limit int) ([]models.EvolutionRecord, error)
}

// ── Fusion Message Store ────────────────────────────────────

type FusionMessageStore interface {
	CreateFusionMessage(ctx context.Context, msg *models.FusionMessage) error

	// ListFusionMessages returns the newest messages first.
	ListFusionMessages(ctx context.Context, sessionID string, limit int) ([]models.FusionMessage, error)
}

// ── Memory Store ────────────────────────────────────────────

type MemoryStore interface {
	CreateMemory(ctx context.Context, mem *models.Memory) error
	ListMemories(ctx context.Context, userID string, limit int) ([]models.Memory, error)
}

// ── Session Store ───────────────────────────────────────────

// SessionStore tracks fusion sessions. Sessions are owned by the hosting
// product; the core only looks them up and flips Active.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*models.FusionSession, error)
	FindActiveSession(ctx context.Context, campaignID string) (*models.FusionSession, error)
	CreateSession(ctx context.Context, session *models.FusionSession) error
	UpdateSession(ctx context.Context, session *models.FusionSession) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrConflict is returned when a version-conditional update loses the race.
type ErrConflict struct {
	Entity string
	Key    string
}

func (e *ErrConflict) Error() string {
	return e.Entity + " version conflict: " + e.Key
}
