package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// Analyzer produces the clinical analysis attached to a document when it reaches indexed.
type Analyzer struct {
	client *Client
}

func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

func (a *Analyzer) Analyze(ctx context.Context, doc *domain.Document) (domain.Analysis, error) {
	if doc == nil {
		return domain.Analysis{}, domain.WrapError(domain.ErrInvalidInput, "analyze", errors.New("document is nil"))
	}

	respText, err := a.client.generateJSON(ctx, buildAnalysisPrompt(doc))
	if err != nil {
		return domain.Analysis{}, err
	}

	var result domain.Analysis
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.Analysis{}, fmt.Errorf("parse analysis json: %w", err)
	}
	result.Summary = strings.TrimSpace(result.Summary)
	if result.Summary == "" {
		return domain.Analysis{}, errors.New("analysis json has empty summary")
	}
	if result.KeyFindings == nil {
		result.KeyFindings = []string{}
	}
	if result.Recommendations == nil {
		result.Recommendations = []string{}
	}
	return result, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	call := func(ctx context.Context) (string, error) {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
			return "", err
		}
		return strings.TrimSpace(response.Response), nil
	}

	if c.executor == nil {
		out, err := call(ctx)
		return out, wrapTemporaryIfNeeded("ollama generate", err)
	}
	out, err := resilience.Do(ctx, c.executor, "ollama.generate", call, classifyOllamaError)
	return out, wrapTemporaryIfNeeded("ollama generate", err)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
