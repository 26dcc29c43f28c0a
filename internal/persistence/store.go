// Package persistence is the pgx-backed durable sink for the three
// things this module is willing to lose on a crash but not silently
// drop: signed audit trace lines, provenance chain entries, and
// capacity-metrics snapshots. A pgxpool-wrapped store with a
// connect-and-ping constructor, a schema file executed once at startup,
// and plain parameterized Exec/Query calls — no ORM. Every write here
// is the best-effort flush internal/tracker.FlushHandler and
// internal/audit.Writer call outside their respective critical
// sections; a failure here must never unwind a logical commit.
package persistence

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patchcore/scanengine/internal/provenance"
	"github.com/patchcore/scanengine/pkg/models"
)

// Store wraps a pgx connection pool for the engine's durable writes.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against connStr and verifies it with a ping.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("persistence: unable to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence: ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql, a "read a file next to the
// package and exec it" pattern.
func (s *Store) InitSchema(ctx context.Context) error {
	path := os.Getenv("SCANENGINE_SCHEMA_PATH")
	if path == "" {
		path = "internal/persistence/schema.sql"
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("persistence: failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(bytes)); err != nil {
		return fmt.Errorf("persistence: failed to execute schema: %w", err)
	}
	return nil
}

// Append persists one signed NDJSON line, satisfying internal/audit.Writer
// so an Emitter can be backed directly by this store instead of (or in
// addition to) a local file.
func (s *Store) Append(line []byte) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO audit_lines (line) VALUES ($1)`, string(line))
	if err != nil {
		return fmt.Errorf("persistence: append audit line: %w", err)
	}
	return nil
}

// AppendProvenanceEntry persists one provenance chain entry.
func (s *Store) AppendProvenanceEntry(ctx context.Context, e provenance.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provenance_entries
			(timestamp_millis, from_state, to_state, coverage_quantized,
			 piz_count, piz_total_area_sqm, piz_excluded_area_sqm,
			 grid_digest, policy_digest, prev_hash, hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.TimestampMillis, e.FromState, e.ToState, e.CoverageQuantized,
		e.PIZCount, e.PIZTotalAreaSqM, e.PIZExcludedAreaSqM,
		e.GridDigest, e.PolicyDigest, e.PrevHash, e.Hash)
	if err != nil {
		return fmt.Errorf("persistence: append provenance entry: %w", err)
	}
	return nil
}

// SaveCapacityMetrics persists the CapacityMetrics snapshot produced by
// one tracker commit, keyed by the committing candidate.
func (s *Store) SaveCapacityMetrics(ctx context.Context, candidateID string, m models.CapacityMetrics) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO capacity_snapshots
			(candidate_id, patch_count_shadow, eeb_remaining, eeb_delta,
			 build_mode, reject_reason, decision_hash, saturated_latched, flush_failure)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (candidate_id) DO UPDATE SET
			patch_count_shadow = EXCLUDED.patch_count_shadow,
			eeb_remaining = EXCLUDED.eeb_remaining,
			build_mode = EXCLUDED.build_mode,
			decision_hash = EXCLUDED.decision_hash,
			saturated_latched = EXCLUDED.saturated_latched,
			flush_failure = EXCLUDED.flush_failure`,
		candidateID, m.PatchCountShadow, m.EEBRemaining, m.EEBDelta,
		string(m.BuildMode), string(m.RejectReason), m.DecisionHash,
		m.SaturatedLatched, m.FlushFailure)
	if err != nil {
		return fmt.Errorf("persistence: save capacity metrics: %w", err)
	}
	return nil
}

// LoadProvenanceChain reads every persisted provenance entry back in
// append order, for scanner.ReplayAndVerify to re-check on startup.
func (s *Store) LoadProvenanceChain(ctx context.Context) ([]provenance.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT timestamp_millis, from_state, to_state, coverage_quantized,
		       piz_count, piz_total_area_sqm, piz_excluded_area_sqm,
		       grid_digest, policy_digest, prev_hash, hash
		FROM provenance_entries ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("persistence: load provenance chain: %w", err)
	}
	defer rows.Close()

	var entries []provenance.Entry
	for rows.Next() {
		var e provenance.Entry
		if err := rows.Scan(&e.TimestampMillis, &e.FromState, &e.ToState, &e.CoverageQuantized,
			&e.PIZCount, &e.PIZTotalAreaSqM, &e.PIZExcludedAreaSqM,
			&e.GridDigest, &e.PolicyDigest, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("persistence: scan provenance entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
