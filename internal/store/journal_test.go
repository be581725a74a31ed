package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chatproof/internal/checkpoint"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenCreatesDirectory(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "subdir", "nested", "journal.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	if err := j.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestCloseNilDB(t *testing.T) {
	j := &Journal{}
	if err := j.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 2; i++ {
		j, err := Open(path)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		v, err := SchemaVersion(j.db)
		if err != nil {
			t.Fatalf("SchemaVersion failed: %v", err)
		}
		if v != len(migrations) {
			t.Errorf("expected version %d, got %d", len(migrations), v)
		}
		j.Close()
	}
}

func TestRollbackMigration(t *testing.T) {
	j := openTestJournal(t)

	if err := RollbackMigration(j.db); err != nil {
		t.Fatalf("RollbackMigration failed: %v", err)
	}
	v, _ := SchemaVersion(j.db)
	if v != len(migrations)-1 {
		t.Errorf("expected version %d after rollback, got %d", len(migrations)-1, v)
	}

	if err := MigrateDB(j.db); err != nil {
		t.Fatalf("re-migrate failed: %v", err)
	}
	v, _ = SchemaVersion(j.db)
	if v != len(migrations) {
		t.Errorf("expected version %d, got %d", len(migrations), v)
	}
}

func TestRecordAndListCheckpoints(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	msgs := []checkpoint.ChatMessage{
		{Sender: "alice", Text: "hello world", Timestamp: 100},
		{Sender: "bob", Text: "goodbye world", Timestamp: 108},
	}
	hash, _ := checkpoint.HashMessages(msgs)

	for _, cp := range []*checkpoint.Checkpoint{
		{Timestamp: 108, Hash: hash, Messages: msgs},
		{Timestamp: 200, Hash: [32]byte{1}, Messages: nil},
	} {
		if err := j.RecordCheckpoint(ctx, cp); err != nil {
			t.Fatalf("RecordCheckpoint failed: %v", err)
		}
	}

	all, err := j.Checkpoints(ctx, 0)
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(all))
	}
	if all[0].ClosedAt != 200 || all[1].ClosedAt != 108 {
		t.Errorf("expected newest first, got %d, %d", all[0].ClosedAt, all[1].ClosedAt)
	}

	first := all[1]
	if first.Hash != hash {
		t.Error("hash not preserved")
	}
	if first.MessageCount != 2 || len(first.Messages) != 2 || first.Messages[1].Sender != "bob" {
		t.Errorf("messages not preserved: %+v", first)
	}
	if len(all[0].Messages) != 0 {
		t.Errorf("expected empty message list, got %+v", all[0].Messages)
	}

	limited, _ := j.Checkpoints(ctx, 1)
	if len(limited) != 1 || limited[0].ClosedAt != 200 {
		t.Errorf("limit not applied: %+v", limited)
	}
}

func TestRecordAndListProofs(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	at := time.Unix(1700000000, 0)
	records := []*ProofRecord{
		{ChatID: 42, Search: "world", Candidates: 1, Matches: 2, Outcome: "proved",
			ArtifactID: "id-1", Link: "https://p.example/bot/id-1", Duration: 1500 * time.Millisecond, RequestedAt: at},
		{ChatID: 42, Search: "absent", Outcome: "failed", Error: "prover exited 1", RequestedAt: at.Add(time.Minute)},
	}
	for _, r := range records {
		if err := j.RecordProof(ctx, r); err != nil {
			t.Fatalf("RecordProof failed: %v", err)
		}
	}

	got, err := j.Proofs(ctx, 10)
	if err != nil {
		t.Fatalf("Proofs failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 proofs, got %d", len(got))
	}

	failed, proved := got[0], got[1]
	if failed.Error != "prover exited 1" || failed.ArtifactID != "" {
		t.Errorf("unexpected failed record: %+v", failed)
	}
	if proved.Link != "https://p.example/bot/id-1" || proved.Matches != 2 {
		t.Errorf("unexpected proved record: %+v", proved)
	}
	if proved.Duration != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", proved.Duration)
	}
	if !proved.RequestedAt.Equal(at) {
		t.Errorf("expected %v, got %v", at, proved.RequestedAt)
	}
}
