package ollama

import (
	"fmt"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

// The prompt carries metadata only; file contents are never sent to the model.
func buildAnalysisPrompt(doc *domain.Document) string {
	return fmt.Sprintf(`You are a clinical document assistant.
Return strict JSON object with keys:
summary (string), key_findings (array of strings), risk_assessment (string), recommendations (array of strings).
No markdown, no extra keys.

Document:
name=%s
type=%s
mime=%s
size_bytes=%d
`, doc.Name, doc.Type, doc.MimeType, doc.Size)
}
