// Package memory persists long-term memories: consensus outcomes,
// insights, milestones. Writing an important memory also feeds the
// evolution engine, so remembering something changes who remembers it.
package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/totalaud/agentcore/internal/bus"
	"github.com/totalaud/agentcore/internal/store"
	"github.com/totalaud/agentcore/pkg/models"
)

// EvolutionThreshold is the minimum importance at which a memory write
// triggers persona drift.
const EvolutionThreshold = 3

// EvolutionSink receives feedback events derived from memory writes.
type EvolutionSink interface {
	ProcessEvent(ctx context.Context, userID, campaignID string, event models.EvolutionEvent) error
}

// Writer persists memories and fans out their side effects.
type Writer struct {
	store store.MemoryStore
	bus   *bus.Bus
	sink  EvolutionSink
}

// NewWriter creates a memory writer. bus and sink may be nil.
func NewWriter(s store.MemoryStore, b *bus.Bus, sink EvolutionSink) *Writer {
	return &Writer{store: s, bus: b, sink: sink}
}

// Write persists a memory. Importance is clamped to [1,5]; importance at or
// above EvolutionThreshold triggers an evolution event for the memory's
// persona. Evolution failures are logged, never returned: the memory is
// already written.
func (w *Writer) Write(ctx context.Context, mem *models.Memory) (*models.Memory, error) {
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	if mem.Importance < 1 {
		mem.Importance = 1
	}
	if mem.Importance > 5 {
		mem.Importance = 5
	}

	if err := w.store.CreateMemory(ctx, mem); err != nil {
		return nil, fmt.Errorf("write memory: %w", err)
	}

	log.Info().
		Str("memory_id", mem.ID).
		Str("type", string(mem.MemoryType)).
		Int("importance", mem.Importance).
		Msg("🧠 Memory written")

	if w.bus != nil {
		w.bus.Emit(models.LiveEvent{
			Type:       models.EventMemoryCreated,
			Timestamp:  mem.CreatedAt,
			CampaignID: mem.CampaignID,
			EntityID:   mem.ID,
			Agent:      mem.Agent,
			Severity:   models.SeverityInfo,
			Meta: map[string]interface{}{
				"memory_type": string(mem.MemoryType),
				"importance":  mem.Importance,
			},
		})
	}

	if w.sink != nil && mem.Importance >= EvolutionThreshold && mem.Persona != "" {
		event := models.EvolutionEvent{
			Type:    models.TriggerMemory,
			Persona: mem.Persona,
			Meta: map[string]interface{}{
				"importance":  mem.Importance,
				"memory_type": string(mem.MemoryType),
				"title":       mem.Title,
			},
			SourceEntityID: mem.ID,
			Timestamp:      mem.CreatedAt,
		}
		if err := w.sink.ProcessEvent(ctx, mem.UserID, mem.CampaignID, event); err != nil {
			log.Error().Err(err).Str("memory_id", mem.ID).Msg("⚠️ Memory evolution trigger failed")
		}
	}

	return mem, nil
}
