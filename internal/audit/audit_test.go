package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLogRecordAppendsOneLinePerEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit", "operational.jsonl")
	log := NewLog(path)

	if err := log.Record(ActionLaneExport, "dad", DecisionAllow, "", "lane-1", 100); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := log.Record(ActionBackupCreate, "dad", DecisionFail, "disk full", "", 200); err != nil {
		t.Fatalf("Record: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var lines []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].Action != ActionLaneExport || lines[0].TargetID != "lane-1" {
		t.Fatalf("line 0 = %+v", lines[0])
	}
	if lines[1].Decision != DecisionFail || lines[1].Detail != "disk full" {
		t.Fatalf("line 1 = %+v", lines[1])
	}
	if lines[0].ID == "" || lines[0].ID == lines[1].ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", lines[0].ID, lines[1].ID)
	}
}
