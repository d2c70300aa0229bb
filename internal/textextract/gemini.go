package textextract

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

const transcribePrompt = "You transcribe Indian bank account statements.\n\n" +
	"Task:\n" +
	"- Output the full text of the attached statement, page by page.\n" +
	"- Keep every transaction row on one line, in the original column order.\n" +
	"- Keep the column header row (Date, Narration, Chq/Ref No, Value Dt, Withdrawal, Deposit, Closing Balance) once per page.\n" +
	"- Separate columns with at least two spaces. Use \"-\" for an empty amount column.\n" +
	"- Copy dates, amounts and reference numbers exactly. Do not compute, sum or reformat anything.\n\n" +
	"Return ONLY the transcribed text.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT add commentary.\n"

// generator is the subset of *genai.Models the provider calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider transcribes PDF statements with a Gemini model.
type GeminiProvider struct {
	models generator
	model  string
}

// NewGeminiProvider creates a Gemini client. An empty apiKey falls back to the
// GOOGLE_API_KEY / GEMINI_API_KEY environment the genai client reads itself.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiProvider: create genai client: %w", err)
	}
	return newGeminiProvider(client.Models, model), nil
}

func newGeminiProvider(models generator, model string) *GeminiProvider {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiProvider{models: models, model: model}
}

func (g *GeminiProvider) Extract(ctx context.Context, a Artifact) (string, error) {
	if !a.IsPDF() {
		return "", fmt.Errorf("GeminiProvider: %s: %w", a.MimeType, ErrUnavailable)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: transcribePrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     a.Data,
					},
				},
			},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GeminiProvider: generate content: %w", err)
	}
	text := cleanModelText(resp.Text())
	if text == "" {
		return "", fmt.Errorf("GeminiProvider: empty response from model: %w", ErrUnavailable)
	}
	return text, nil
}

// cleanModelText drops Markdown fences the model may add despite the prompt.
func cleanModelText(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
