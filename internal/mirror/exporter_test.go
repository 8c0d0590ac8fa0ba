package mirror

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/notifyr/internal/store"
	"github.com/user/notifyr/internal/types"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(10, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, body := range []string{"hi", "you there?"} {
		res := s.Admit(&types.RawEvent{
			ID:           types.EventID("e" + string(rune('1'+i))),
			PackageID:    "com.whatsapp",
			Platform:     types.PlatformWhatsApp,
			Title:        "Alice",
			Body:         body,
			Sender:       "Alice",
			Direction:    types.Incoming,
			ThreadKey:    "t1",
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			ReplyCapable: true,
		})
		if res.Status != store.Admitted {
			t.Fatalf("seed event %d not admitted", i)
		}
	}
	return s
}

func readRows(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var rows []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var row map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("bad JSONL row: %v", err)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestExportOnce(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	e := New(seedStore(t), dir, func() time.Time { return now })

	if err := e.ExportOnce(); err != nil {
		t.Fatal(err)
	}

	convRows := readRows(t, filepath.Join(dir, "conversations.jsonl"))
	if len(convRows) != 1 {
		t.Fatalf("expected 1 conversation row, got %d", len(convRows))
	}
	if convRows[0]["kind"] != "conversation" {
		t.Errorf("expected kind=conversation, got %v", convRows[0]["kind"])
	}
	data, ok := convRows[0]["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", convRows[0]["data"])
	}
	if data["display_name"] != "Alice" {
		t.Errorf("expected display_name=Alice, got %v", data["display_name"])
	}

	eventRows := readRows(t, filepath.Join(dir, "events.jsonl"))
	if len(eventRows) != 2 {
		t.Fatalf("expected 2 event rows, got %d", len(eventRows))
	}
	for _, row := range eventRows {
		if row["kind"] != "event" {
			t.Errorf("expected kind=event, got %v", row["kind"])
		}
	}
}

func TestExportOnceAppends(t *testing.T) {
	dir := t.TempDir()
	e := New(seedStore(t), dir, nil)

	if err := e.ExportOnce(); err != nil {
		t.Fatal(err)
	}
	if err := e.ExportOnce(); err != nil {
		t.Fatal(err)
	}

	rows := readRows(t, filepath.Join(dir, "events.jsonl"))
	if len(rows) != 4 {
		t.Errorf("expected rows to accumulate across exports, got %d", len(rows))
	}
}

func TestExportOnceEmptyStoreWritesNothing(t *testing.T) {
	dir := t.TempDir()
	e := New(store.New(10, nil), dir, nil)

	if err := e.ExportOnce(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "events.jsonl")); !os.IsNotExist(err) {
		t.Error("empty export should not create files")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	e := New(store.New(10, nil), t.TempDir(), nil)
	if err := e.Start("not a schedule"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	e.Stop()
}
