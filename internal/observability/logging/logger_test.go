package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLoggerTagsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "api", "warn")

	logger.Info("document_uploaded", "document_id", "doc-1")
	logger.Warn("phase_conflict", "document_id", "doc-2")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warn record, got %d lines: %s", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["service"] != "api" || record["msg"] != "phase_conflict" || record["document_id"] != "doc-2" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if got := parseLevel("verbose"); got.String() != "INFO" {
		t.Fatalf("expected INFO, got %s", got)
	}
	if got := parseLevel(" Warning "); got.String() != "WARN" {
		t.Fatalf("expected WARN, got %s", got)
	}
}
