// Package store provides the SQLite journal of closed checkpoints and
// proof requests.
//
// The journal is an operator record only. The engine writes to it and
// never reads it back, so a restart always begins with an empty
// checkpoint store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chatproof/internal/checkpoint"
)

// CheckpointRecord is a journaled checkpoint.
type CheckpointRecord struct {
	ID           int64
	ClosedAt     uint64
	Hash         [32]byte
	MessageCount int
	Messages     []checkpoint.ChatMessage
	RecordedAt   time.Time
}

// ProofRecord is a journaled proof request.
type ProofRecord struct {
	ID          int64
	ChatID      int64
	Search      string
	Candidates  int
	Matches     int
	Outcome     string
	ArtifactID  string
	Link        string
	Error       string
	Duration    time.Duration
	RequestedAt time.Time
}

// Journal is the SQLite journal.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the journal at path and applies migrations.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// RecordCheckpoint journals a closed checkpoint.
func (j *Journal) RecordCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	msgs, err := checkpoint.Serialize(cp.Messages)
	if err != nil {
		return fmt.Errorf("encode checkpoint %d: %w", cp.Timestamp, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO checkpoints (closed_at, hash, message_count, messages, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		int64(cp.Timestamp), cp.Hash[:], len(cp.Messages), string(msgs), j.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint %d: %w", cp.Timestamp, err)
	}
	return nil
}

// RecordProof journals a proof request.
func (j *Journal) RecordProof(ctx context.Context, p *ProofRecord) error {
	requested := p.RequestedAt
	if requested.IsZero() {
		requested = j.now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO proofs (chat_id, search, candidates, matches, outcome, artifact_id, link, error, duration_ms, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ChatID, p.Search, p.Candidates, p.Matches, p.Outcome,
		nullString(p.ArtifactID), nullString(p.Link), nullString(p.Error),
		p.Duration.Milliseconds(), requested.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

// Checkpoints returns the most recent checkpoints, newest first. A limit
// of zero or less returns all of them.
func (j *Journal) Checkpoints(ctx context.Context, limit int) ([]CheckpointRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, closed_at, hash, message_count, messages, recorded_at
		FROM checkpoints ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []CheckpointRecord
	for rows.Next() {
		var (
			r        CheckpointRecord
			closedAt int64
			hash     []byte
			msgs     string
			recorded int64
		)
		if err := rows.Scan(&r.ID, &closedAt, &hash, &r.MessageCount, &msgs, &recorded); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if len(hash) != len(r.Hash) {
			return nil, fmt.Errorf("checkpoint %d: bad hash length %d", r.ID, len(hash))
		}
		copy(r.Hash[:], hash)
		if err := json.Unmarshal([]byte(msgs), &r.Messages); err != nil {
			return nil, fmt.Errorf("decode checkpoint %d messages: %w", r.ID, err)
		}
		r.ClosedAt = uint64(closedAt)
		r.RecordedAt = time.Unix(0, recorded)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Proofs returns the most recent proof requests, newest first. A limit
// of zero or less returns all of them.
func (j *Journal) Proofs(ctx context.Context, limit int) ([]ProofRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, chat_id, search, candidates, matches, outcome, artifact_id, link, error, duration_ms, requested_at
		FROM proofs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query proofs: %w", err)
	}
	defer rows.Close()

	var out []ProofRecord
	for rows.Next() {
		var (
			r                     ProofRecord
			artifact, link, perr  sql.NullString
			durationMs, requested int64
		)
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Search, &r.Candidates, &r.Matches, &r.Outcome,
			&artifact, &link, &perr, &durationMs, &requested); err != nil {
			return nil, fmt.Errorf("scan proof: %w", err)
		}
		r.ArtifactID = artifact.String
		r.Link = link.String
		r.Error = perr.String
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.RequestedAt = time.Unix(0, requested)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
