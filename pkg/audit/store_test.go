package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jllopis/opsagent/pkg/config"
	"github.com/jllopis/opsagent/pkg/errors"
)

func sampleEvents() []Event {
	now := time.Now().UTC()
	return []Event{
		{RunID: "run-1", Step: 1, Kind: KindStep, Tool: "list_instances", Status: "ok", Detail: map[string]any{"content": "ID: i-1"}, At: now},
		{RunID: "run-1", Step: 2, Kind: KindStep, Tool: "run_shell_command", Input: "rm -rf /", Status: "failed", Code: "SECURITY_REJECTION", At: now.Add(time.Millisecond)},
		{RunID: "run-1", Step: 3, Kind: KindOutcome, Instruction: "wipe it", Status: "final_answer", At: now.Add(2 * time.Millisecond)},
		{RunID: "run-2", Step: 1, Kind: KindOutcome, Status: "aborted", Code: "STEP_BUDGET", At: now.Add(3 * time.Millisecond)},
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	for _, ev := range sampleEvents() {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{name: "all", filter: Filter{}, want: 4},
		{name: "run", filter: Filter{RunID: "run-1"}, want: 3},
		{name: "kind", filter: Filter{Kind: KindOutcome}, want: 2},
		{name: "tool", filter: Filter{Tool: "run_shell_command"}, want: 1},
		{name: "status", filter: Filter{Status: "aborted"}, want: 1},
		{name: "limit", filter: Filter{RunID: "run-1", Limit: 2}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(events) != tt.want {
				t.Fatalf("expected %d events, got %d", tt.want, len(events))
			}
		})
	}

	events, _ := store.List(ctx, Filter{RunID: "run-1"})
	if events[0].Step != 1 || events[2].Kind != KindOutcome || events[1].Code != "SECURITY_REJECTION" {
		t.Fatalf("unexpected order or fields: %+v", events)
	}
	detail, ok := events[0].Detail.(map[string]any)
	if !ok || detail["content"] != "ID: i-1" {
		t.Fatalf("unexpected detail %#v", events[0].Detail)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:audit_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	exerciseStore(t, store)
}

func TestNewSQLiteStoreNilDB(t *testing.T) {
	if _, err := NewSQLiteStore(nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}

func TestOpen(t *testing.T) {
	store, closeFn, err := Open(config.AuditConfig{Backend: "memory"})
	if err != nil || store == nil || closeFn() != nil {
		t.Fatalf("memory backend: %v", err)
	}

	path := filepath.Join(t.TempDir(), "audit.db")
	store, closeFn, err = Open(config.AuditConfig{Backend: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	if err := store.Record(context.Background(), Event{RunID: "run-1", Kind: KindStep, Status: "ok"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, closeFn, err := Open(config.AuditConfig{Backend: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closeFn()
	events, err := reopened.List(context.Background(), Filter{})
	if err != nil || len(events) != 1 {
		t.Fatalf("expected persisted event, got %d %v", len(events), err)
	}

	if _, _, err := Open(config.AuditConfig{Backend: "postgres"}); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid backend error, got %v", err)
	}
}
