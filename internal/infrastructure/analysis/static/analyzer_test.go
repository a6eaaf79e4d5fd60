package static

import (
	"context"
	"testing"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

func TestAnalyzeIsDeterministic(t *testing.T) {
	doc := &domain.Document{ID: "doc-1", Name: "labs.pdf"}
	a := NewAnalyzer()

	first, err := a.Analyze(context.Background(), doc)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	second, _ := a.Analyze(context.Background(), doc)
	if first.Summary != second.Summary || first.Summary == "" {
		t.Fatalf("unexpected summaries %q / %q", first.Summary, second.Summary)
	}
	if first.RiskAssessment != "Low" || len(first.KeyFindings) != 2 || len(first.Recommendations) != 2 {
		t.Fatalf("unexpected analysis: %+v", first)
	}
}

func TestAnalyzeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewAnalyzer().Analyze(ctx, &domain.Document{}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
