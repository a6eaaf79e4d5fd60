// Package static provides a deterministic analysis provider used when no model endpoint is configured.
package static

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Analyze(ctx context.Context, doc *domain.Document) (domain.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return domain.Analysis{}, err
	}
	if doc == nil {
		return domain.Analysis{}, domain.WrapError(domain.ErrInvalidInput, "static analyze", errors.New("document is nil"))
	}
	return domain.Analysis{
		Summary:        fmt.Sprintf("Document %s processed successfully", doc.Name),
		KeyFindings:    []string{"Finding 1", "Finding 2"},
		RiskAssessment: "Low",
		Recommendations: []string{
			"Recommendation 1",
			"Recommendation 2",
		},
	}, nil
}
