// PostgreSQL Store implementation on pgx. Connection URL comes from the
// daemon's config; the schema is created on first connect if missing.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/totalaud/agentcore/pkg/models"
)

// PostgresStore implements Store against PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Msg("Postgres store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS ac_loops (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		campaign_id TEXT NOT NULL DEFAULT '',
		agent       TEXT NOT NULL,
		loop_type   TEXT NOT NULL,
		interval    TEXT NOT NULL,
		payload     JSONB NOT NULL DEFAULT '{}',
		last_run    TIMESTAMPTZ,
		next_run    TIMESTAMPTZ,
		status      TEXT NOT NULL DEFAULT 'idle',
		version     INT NOT NULL DEFAULT 1,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS ac_loop_events (
		id         TEXT PRIMARY KEY,
		loop_id    TEXT NOT NULL,
		agent      TEXT NOT NULL,
		result     JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_ac_loop_events_loop ON ac_loop_events (loop_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS ac_suggestions (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		agent       TEXT NOT NULL,
		loop_type   TEXT NOT NULL,
		interval    TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		rationale   TEXT NOT NULL DEFAULT '',
		priority    INT NOT NULL DEFAULT 3,
		action      JSONB NOT NULL DEFAULT '{}',
		status      TEXT NOT NULL DEFAULT 'pending',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS ac_profiles (
		user_id          TEXT NOT NULL,
		persona          TEXT NOT NULL,
		campaign_id      TEXT NOT NULL DEFAULT '',
		confidence_level DOUBLE PRECISION NOT NULL,
		verbosity        DOUBLE PRECISION NOT NULL,
		risk_tolerance   DOUBLE PRECISION NOT NULL,
		empathy_level    DOUBLE PRECISION NOT NULL,
		emotional_bias   JSONB NOT NULL,
		tempo_preference DOUBLE PRECISION,
		version          INT NOT NULL DEFAULT 1,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, persona, campaign_id)
	);

	CREATE TABLE IF NOT EXISTS ac_evolution_events (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		campaign_id TEXT NOT NULL DEFAULT '',
		persona     TEXT NOT NULL,
		trigger     TEXT NOT NULL,
		delta       JSONB NOT NULL,
		reasoning   TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_ac_evolution_user ON ac_evolution_events (user_id, persona, created_at DESC);

	CREATE TABLE IF NOT EXISTS ac_fusion_messages (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		persona    TEXT NOT NULL,
		agent      TEXT NOT NULL,
		summary    TEXT NOT NULL DEFAULT '',
		recommendations JSONB NOT NULL DEFAULT '[]',
		sentiment  TEXT NOT NULL DEFAULT 'neutral',
		event_type TEXT NOT NULL DEFAULT '',
		entity_id  TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_ac_fusion_session ON ac_fusion_messages (session_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS ac_memories (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		campaign_id TEXT NOT NULL DEFAULT '',
		persona     TEXT NOT NULL DEFAULT '',
		agent       TEXT NOT NULL DEFAULT '',
		memory_type TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		content     JSONB NOT NULL DEFAULT '{}',
		importance  INT NOT NULL DEFAULT 3,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS ac_sessions (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		campaign_id TEXT NOT NULL,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		started_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		ended_at    TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_ac_sessions_campaign ON ac_sessions (campaign_id) WHERE active;
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// Ping checks database reachability.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ── Loops ───────────────────────────────────────────────────

const loopColumns = `id, user_id, campaign_id, agent, loop_type, interval, payload,
	last_run, next_run, status, version, created_at, updated_at`

func scanLoop(row pgx.Row) (*models.AgentLoop, error) {
	var l models.AgentLoop
	var payload []byte
	err := row.Scan(&l.ID, &l.UserID, &l.CampaignID, &l.Agent, &l.LoopType, &l.Interval,
		&payload, &l.LastRun, &l.NextRun, &l.Status, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &l.Payload)
	}
	return &l, nil
}

func (s *PostgresStore) ListLoops(ctx context.Context, userID string) ([]models.AgentLoop, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+loopColumns+` FROM ac_loops WHERE ($1 = '' OR user_id = $1) ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list loops: %w", err)
	}
	defer rows.Close()

	var out []models.AgentLoop
	for rows.Next() {
		l, err := scanLoop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loop: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetLoop(ctx context.Context, id string) (*models.AgentLoop, error) {
	l, err := scanLoop(s.pool.QueryRow(ctx,
		`SELECT `+loopColumns+` FROM ac_loops WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "loop", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get loop: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) CreateLoop(ctx context.Context, loop *models.AgentLoop) error {
	payload, _ := json.Marshal(loop.Payload)
	if loop.Version == 0 {
		loop.Version = 1
	}
	if loop.CreatedAt.IsZero() {
		loop.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ac_loops (id, user_id, campaign_id, agent, loop_type, interval, payload,
			last_run, next_run, status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())`,
		loop.ID, loop.UserID, loop.CampaignID, loop.Agent, loop.LoopType, loop.Interval,
		payload, loop.LastRun, loop.NextRun, loop.Status, loop.Version, loop.CreatedAt)
	if err != nil {
		return fmt.Errorf("create loop: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateLoop(ctx context.Context, loop *models.AgentLoop) error {
	payload, _ := json.Marshal(loop.Payload)
	// Conditional on version: the WHERE clause loses the race for us.
	tag, err := s.pool.Exec(ctx, `
		UPDATE ac_loops
		SET agent=$2, loop_type=$3, interval=$4, payload=$5, last_run=$6, next_run=$7,
			status=$8, version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$9`,
		loop.ID, loop.Agent, loop.LoopType, loop.Interval, payload,
		loop.LastRun, loop.NextRun, loop.Status, loop.Version)
	if err != nil {
		return fmt.Errorf("update loop: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetLoop(ctx, loop.ID); getErr != nil {
			return getErr
		}
		return &ErrConflict{Entity: "loop", Key: loop.ID}
	}
	loop.Version++
	return nil
}

func (s *PostgresStore) DeleteLoop(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ac_loops WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete loop: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "loop", Key: id}
	}
	return nil
}

// ── Loop Events ─────────────────────────────────────────────

func (s *PostgresStore) CreateLoopEvent(ctx context.Context, event *models.LoopEvent) error {
	result, _ := json.Marshal(event.Result)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ac_loop_events (id, loop_id, agent, result, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		event.ID, event.LoopID, event.Agent, result, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("create loop event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLoopEvents(ctx context.Context, loopID string, limit int) ([]models.LoopEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, loop_id, agent, result, created_at FROM ac_loop_events
		WHERE ($1 = '' OR loop_id = $1) ORDER BY created_at DESC LIMIT $2`, loopID, limit)
	if err != nil {
		return nil, fmt.Errorf("list loop events: %w", err)
	}
	defer rows.Close()
	return scanLoopEvents(rows)
}

func (s *PostgresStore) ListLoopEventsSince(ctx context.Context, since time.Time) ([]models.LoopEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, loop_id, agent, result, created_at FROM ac_loop_events
		WHERE created_at > $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, fmt.Errorf("list loop events since: %w", err)
	}
	defer rows.Close()
	return scanLoopEvents(rows)
}

func scanLoopEvents(rows pgx.Rows) ([]models.LoopEvent, error) {
	var out []models.LoopEvent
	for rows.Next() {
		var e models.LoopEvent
		var result []byte
		if err := rows.Scan(&e.ID, &e.LoopID, &e.Agent, &result, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan loop event: %w", err)
		}
		_ = json.Unmarshal(result, &e.Result)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Suggestions ─────────────────────────────────────────────

func (s *PostgresStore) CreateSuggestion(ctx context.Context, sg *models.LoopSuggestion) error {
	action, _ := json.Marshal(sg.Action)
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ac_suggestions (id, user_id, agent, loop_type, interval, title, rationale,
			priority, action, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		sg.ID, sg.UserID, sg.Agent, sg.LoopType, sg.Interval, sg.Title, sg.Rationale,
		sg.Priority, action, sg.Status, sg.CreatedAt)
	if err != nil {
		return fmt.Errorf("create suggestion: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSuggestion(ctx context.Context, id string) (*models.LoopSuggestion, error) {
	var sg models.LoopSuggestion
	var action []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, agent, loop_type, interval, title, rationale, priority, action,
			status, created_at, resolved_at
		FROM ac_suggestions WHERE id = $1`, id).
		Scan(&sg.ID, &sg.UserID, &sg.Agent, &sg.LoopType, &sg.Interval, &sg.Title,
			&sg.Rationale, &sg.Priority, &action, &sg.Status, &sg.CreatedAt, &sg.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "suggestion", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	_ = json.Unmarshal(action, &sg.Action)
	return &sg, nil
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, userID string, status models.SuggestionStatus) ([]models.LoopSuggestion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, agent, loop_type, interval, title, rationale, priority, action,
			status, created_at, resolved_at
		FROM ac_suggestions
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY priority DESC, created_at DESC`, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var out []models.LoopSuggestion
	for rows.Next() {
		var sg models.LoopSuggestion
		var action []byte
		if err := rows.Scan(&sg.ID, &sg.UserID, &sg.Agent, &sg.LoopType, &sg.Interval,
			&sg.Title, &sg.Rationale, &sg.Priority, &action, &sg.Status, &sg.CreatedAt,
			&sg.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		_ = json.Unmarshal(action, &sg.Action)
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateSuggestion(ctx context.Context, sg *models.LoopSuggestion) error {
	action, _ := json.Marshal(sg.Action)
	tag, err := s.pool.Exec(ctx, `
		UPDATE ac_suggestions SET title=$2, rationale=$3, priority=$4, action=$5,
			status=$6, resolved_at=$7
		WHERE id=$1`,
		sg.ID, sg.Title, sg.Rationale, sg.Priority, action, sg.Status, sg.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update suggestion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "suggestion", Key: sg.ID}
	}
	return nil
}

// ── Profiles ────────────────────────────────────────────────

func (s *PostgresStore) GetProfile(ctx context.Context, userID string, persona models.Persona, campaignID string) (*models.Profile, error) {
	var p models.Profile
	var bias []byte
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, persona, campaign_id, confidence_level, verbosity, risk_tolerance,
			empathy_level, emotional_bias, tempo_preference, version, updated_at
		FROM ac_profiles WHERE user_id=$1 AND persona=$2 AND campaign_id=$3`,
		userID, persona, campaignID).
		Scan(&p.UserID, &p.Persona, &p.CampaignID, &p.ConfidenceLevel, &p.Verbosity,
			&p.RiskTolerance, &p.EmpathyLevel, &bias, &p.TempoPreference, &p.Version, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "profile", Key: userID + ":" + string(persona)}
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	_ = json.Unmarshal(bias, &p.EmotionalBias)
	return &p, nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, profile *models.Profile) error {
	bias, _ := json.Marshal(profile.EmotionalBias)
	if profile.Version == 0 {
		profile.Version = 1
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ac_profiles (user_id, persona, campaign_id, confidence_level, verbosity,
			risk_tolerance, empathy_level, emotional_bias, tempo_preference, version, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())`,
		profile.UserID, profile.Persona, profile.CampaignID, profile.ConfidenceLevel,
		profile.Verbosity, profile.RiskTolerance, profile.EmpathyLevel, bias,
		profile.TempoPreference, profile.Version)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, profile *models.Profile) error {
	bias, _ := json.Marshal(profile.EmotionalBias)
	tag, err := s.pool.Exec(ctx, `
		UPDATE ac_profiles
		SET confidence_level=$4, verbosity=$5, risk_tolerance=$6, empathy_level=$7,
			emotional_bias=$8, tempo_preference=$9, version=version+1, updated_at=NOW()
		WHERE user_id=$1 AND persona=$2 AND campaign_id=$3 AND version=$10`,
		profile.UserID, profile.Persona, profile.CampaignID, profile.ConfidenceLevel,
		profile.Verbosity, profile.RiskTolerance, profile.EmpathyLevel, bias,
		profile.TempoPreference, profile.Version)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetProfile(ctx, profile.UserID, profile.Persona, profile.CampaignID); getErr != nil {
			return getErr
		}
		return &ErrConflict{Entity: "profile", Key: profile.UserID + ":" + string(profile.Persona)}
	}
	profile.Version++
	return nil
}

// ── Evolution Records ───────────────────────────────────────

func (s *PostgresStore) CreateEvolutionRecord(ctx context.Context, rec *models.EvolutionRecord) error {
	delta, _ := json.Marshal(rec.Delta)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ac_evolution_events (id, user_id, campaign_id, persona, trigger, delta,
			reasoning, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.UserID, rec.CampaignID, rec.Persona, rec.Trigger, delta,
		rec.Reasoning, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create evolution record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvolutionRecords(ctx context.Context, userID string, persona models.Persona, limit int) ([]models.EvolutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, campaign_id, persona, trigger, delta, reasoning, created_at
		FROM ac_evolution_events
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR persona = $2)
		ORDER BY created_at DESC LIMIT $3`, userID, string(persona), limit)
	if err != nil {
		return nil, fmt.Errorf("list evolution records: %w", err)
	}
	defer rows.Close()

	var out []models.EvolutionRecord
	for rows.Next() {
		var r models.EvolutionRecord
		var delta []byte
		if err := rows.Scan(&r.ID, &r.UserID, &r.CampaignID, &r.Persona, &r.Trigger,
			&delta, &r.Reasoning, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evolution record: %w", err)
		}
		_ = json.Unmarshal(delta, &r.Delta)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ── Fusion Messages ─────────────────────────────────────────

func (s *PostgresStore) CreateFusionMessage(ctx context.Context, msg *models.FusionMessage) error {
	recs, _ := json.Marshal(msg.Recommendations)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ac_fusion_messages (id, session_id, persona, agent, summary,
			recommendations, sentiment, event_type, entity_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		msg.ID, msg.SessionID, msg.Persona, msg.Agent, msg.Summary, recs,
		msg.Sentiment, msg.EventType, msg.EntityID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("create fusion message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFusionMessages(ctx context.Context, sessionID string, limit int) ([]models.FusionMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, persona, agent, summary, recommendations, sentiment,
			event_type, entity_id, created_at
		FROM ac_fusion_messages WHERE session_id = $1
		ORDER BY created_at DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list fusion messages: %w", err)
	}
	defer rows.Close()

	var out []models.FusionMessage
	for rows.Next() {
		var m models.FusionMessage
		var recs []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Persona, &m.Agent, &m.Summary,
			&recs, &m.Sentiment, &m.EventType, &m.EntityID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fusion message: %w", err)
		}
		_ = json.Unmarshal(recs, &m.Recommendations)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ── Memories ────────────────────────────────────────────────

func (s *PostgresStore) CreateMemory(ctx context.Context, mem *models.Memory) error {
	content, _ := json.Marshal(mem.Content)
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ac_memories (id, user_id, campaign_id, persona, agent, memory_type,
			title, content, importance, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		mem.ID, mem.UserID, mem.CampaignID, mem.Persona, mem.Agent, mem.MemoryType,
		mem.Title, content, mem.Importance, mem.CreatedAt)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMemories(ctx context.Context, userID string, limit int) ([]models.Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, campaign_id, persona, agent, memory_type, title, content,
			importance, created_at
		FROM ac_memories WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []models.Memory
	for rows.Next() {
		var m models.Memory
		var content []byte
		if err := rows.Scan(&m.ID, &m.UserID, &m.CampaignID, &m.Persona, &m.Agent,
			&m.MemoryType, &m.Title, &content, &m.Importance, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		_ = json.Unmarshal(content, &m.Content)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ── Sessions ────────────────────────────────────────────────

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.FusionSession, error) {
	var sess models.FusionSession
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, campaign_id, active, started_at, ended_at
		FROM ac_sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.UserID, &sess.CampaignID, &sess.Active, &sess.StartedAt, &sess.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "session", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) FindActiveSession(ctx context.Context, campaignID string) (*models.FusionSession, error) {
	var sess models.FusionSession
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, campaign_id, active, started_at, ended_at
		FROM ac_sessions WHERE campaign_id = $1 AND active
		ORDER BY started_at DESC LIMIT 1`, campaignID).
		Scan(&sess.ID, &sess.UserID, &sess.CampaignID, &sess.Active, &sess.StartedAt, &sess.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "session", Key: campaignID}
	}
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.FusionSession) error {
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ac_sessions (id, user_id, campaign_id, active, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		session.ID, session.UserID, session.CampaignID, session.Active,
		session.StartedAt, session.EndedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, session *models.FusionSession) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ac_sessions SET active=$2, ended_at=$3 WHERE id=$1`,
		session.ID, session.Active, session.EndedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "session", Key: session.ID}
	}
	return nil
}
