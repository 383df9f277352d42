// In-memory Store implementation.
// Used for tests and local development when PostgreSQL is not available.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/totalaud/agentcore/pkg/models"
)

// InMemoryStore implements Store with in-memory maps.
type InMemoryStore struct {
	mu               sync.RWMutex
	loops            map[string]*models.AgentLoop      // key: id
	loopEvents       []*models.LoopEvent               // append-only log
	suggestions      map[string]*models.LoopSuggestion // key: id
	profiles         map[string]*models.Profile        // key: user:persona:campaign
	evolutionRecords []*models.EvolutionRecord         // append-only log
	fusionMessages   map[string][]*models.FusionMessage // key: session id, newest last
	memories         []*models.Memory                  // append-only log
	sessions         map[string]*models.FusionSession  // key: id
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		loops:          make(map[string]*models.AgentLoop),
		suggestions:    make(map[string]*models.LoopSuggestion),
		profiles:       make(map[string]*models.Profile),
		fusionMessages: make(map[string][]*models.FusionMessage),
		sessions:       make(map[string]*models.FusionSession),
	}
}

func profileKey(userID string, persona models.Persona, campaignID string) string {
	return userID + ":" + string(persona) + ":" + campaignID
}

// Ping always succeeds for the in-memory store.
func (m *InMemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *InMemoryStore) Close() error { return nil }

// ── Loops ───────────────────────────────────────────────────

func (m *InMemoryStore) ListLoops(_ context.Context, userID string) ([]models.AgentLoop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.AgentLoop
	for _, l := range m.loops {
		if userID == "" || l.UserID == userID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *InMemoryStore) GetLoop(_ context.Context, id string) (*models.AgentLoop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.loops[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "loop", Key: id}
	}
	cp := *l
	return &cp, nil
}

func (m *InMemoryStore) CreateLoop(_ context.Context, loop *models.AgentLoop) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	cp := *loop
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.Version == 0 {
		cp.Version = 1
	}
	m.loops[cp.ID] = &cp
	loop.Version = cp.Version
	loop.CreatedAt = cp.CreatedAt
	return nil
}

func (m *InMemoryStore) UpdateLoop(_ context.Context, loop *models.AgentLoop) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.loops[loop.ID]
	if !ok {
		return &ErrNotFound{Entity: "loop", Key: loop.ID}
	}
	if existing.Version != loop.Version {
		return &ErrConflict{Entity: "loop", Key: loop.ID}
	}

	cp := *loop
	cp.Version = existing.Version + 1
	cp.UpdatedAt = time.Now().UTC()
	m.loops[cp.ID] = &cp
	loop.Version = cp.Version
	loop.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *InMemoryStore) DeleteLoop(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loops[id]; !ok {
		return &ErrNotFound{Entity: "loop", Key: id}
	}
	delete(m.loops, id)
	return nil
}

// ── Loop Events ─────────────────────────────────────────────

func (m *InMemoryStore) CreateLoopEvent(_ context.Context, event *models.LoopEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *event
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.loopEvents = append(m.loopEvents, &cp)
	return nil
}

func (m *InMemoryStore) ListLoopEvents(_ context.Context, loopID string, limit int) ([]models.LoopEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.LoopEvent
	// Newest first
	for i := len(m.loopEvents) - 1; i >= 0; i-- {
		e := m.loopEvents[i]
		if loopID != "" && e.LoopID != loopID {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *InMemoryStore) ListLoopEventsSince(_ context.Context, since time.Time) ([]models.LoopEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.LoopEvent
	for _, e := range m.loopEvents {
		if e.CreatedAt.After(since) {
			out = append(out, *e)
		}
	}
	return out, nil
}

// ── Suggestions ─────────────────────────────────────────────

func (m *InMemoryStore) CreateSuggestion(_ context.Context, s *models.LoopSuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.suggestions[cp.ID] = &cp
	return nil
}

func (m *InMemoryStore) GetSuggestion(_ context.Context, id string) (*models.LoopSuggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.suggestions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "suggestion", Key: id}
	}
	cp := *s
	return &cp, nil
}

func (m *InMemoryStore) ListSuggestions(_ context.Context, userID string, status models.SuggestionStatus) ([]models.LoopSuggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.LoopSuggestion
	for _, s := range m.suggestions {
		if userID != "" && s.UserID != userID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (m *InMemoryStore) UpdateSuggestion(_ context.Context, s *models.LoopSuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.suggestions[s.ID]; !ok {
		return &ErrNotFound{Entity: "suggestion", Key: s.ID}
	}
	cp := *s
	m.suggestions[cp.ID] = &cp
	return nil
}

// ── Profiles ────────────────────────────────────────────────

func (m *InMemoryStore) GetProfile(_ context.Context, userID string, persona models.Persona, campaignID string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[profileKey(userID, persona, campaignID)]
	if !ok {
		return nil, &ErrNotFound{Entity: "profile", Key: profileKey(userID, persona, campaignID)}
	}
	cp := *p
	cp.EmotionalBias = p.EmotionalBias.Clone()
	if p.TempoPreference != nil {
		tempo := *p.TempoPreference
		cp.TempoPreference = &tempo
	}
	return &cp, nil
}

func (m *InMemoryStore) CreateProfile(_ context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *profile
	cp.EmotionalBias = profile.EmotionalBias.Clone()
	cp.UpdatedAt = time.Now().UTC()
	if cp.Version == 0 {
		cp.Version = 1
	}
	m.profiles[profileKey(cp.UserID, cp.Persona, cp.CampaignID)] = &cp
	profile.Version = cp.Version
	return nil
}

func (m *InMemoryStore) UpdateProfile(_ context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := profileKey(profile.UserID, profile.Persona, profile.CampaignID)
	existing, ok := m.profiles[key]
	if !ok {
		return &ErrNotFound{Entity: "profile", Key: key}
	}
	if existing.Version != profile.Version {
		return &ErrConflict{Entity: "profile", Key: key}
	}

	cp := *profile
	cp.EmotionalBias = profile.EmotionalBias.Clone()
	cp.Version = existing.Version + 1
	cp.UpdatedAt = time.Now().UTC()
	m.profiles[key] = &cp
	profile.Version = cp.Version
	profile.UpdatedAt = cp.UpdatedAt
	return nil
}

// ── Evolution Records ───────────────────────────────────────

func (m *InMemoryStore) CreateEvolutionRecord(_ context.Context, rec *models.EvolutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.evolutionRecords = append(m.evolutionRecords, &cp)
	return nil
}

func (m *InMemoryStore) ListEvolutionRecords(_ context.Context, userID string, persona models.Persona, limit int) ([]models.EvolutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.EvolutionRecord
	for i := len(m.evolutionRecords) - 1; i >= 0; i-- {
		r := m.evolutionRecords[i]
		if userID != "" && r.UserID != userID {
			continue
		}
		if persona != "" && r.Persona != persona {
			continue
		}
		out = append(out, *r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ── Fusion Messages ─────────────────────────────────────────

func (m *InMemoryStore) CreateFusionMessage(_ context.Context, msg *models.FusionMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *msg
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.fusionMessages[cp.SessionID] = append(m.fusionMessages[cp.SessionID], &cp)
	return nil
}

func (m *InMemoryStore) ListFusionMessages(_ context.Context, sessionID string, limit int) ([]models.FusionMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.fusionMessages[sessionID]
	var out []models.FusionMessage
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, *msgs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ── Memories ────────────────────────────────────────────────

func (m *InMemoryStore) CreateMemory(_ context.Context, mem *models.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *mem
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.memories = append(m.memories, &cp)
	return nil
}

func (m *InMemoryStore) ListMemories(_ context.Context, userID string, limit int) ([]models.Memory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Memory
	for i := len(m.memories) - 1; i >= 0; i-- {
		mem := m.memories[i]
		if userID != "" && mem.UserID != userID {
			continue
		}
		out = append(out, *mem)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ── Sessions ────────────────────────────────────────────────

func (m *InMemoryStore) GetSession(_ context.Context, id string) (*models.FusionSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "session", Key: id}
	}
	cp := *s
	return &cp, nil
}

func (m *InMemoryStore) FindActiveSession(_ context.Context, campaignID string) (*models.FusionSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.Active && s.CampaignID == campaignID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "session", Key: campaignID}
}

func (m *InMemoryStore) CreateSession(_ context.Context, session *models.FusionSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *session
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now().UTC()
	}
	m.sessions[cp.ID] = &cp
	return nil
}

func (m *InMemoryStore) UpdateSession(_ context.Context, session *models.FusionSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; !ok {
		return &ErrNotFound{Entity: "session", Key: session.ID}
	}
	cp := *session
	m.sessions[cp.ID] = &cp
	return nil
}
