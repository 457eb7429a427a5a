package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/framefold/groupshot/internal/models"
)

const analyzeInstruction = `Identify every distinct person visible in this photo.
Respond with a JSON array, one object per person, of the form
[{"name": "Person 1", "description": "..."}].
The description must cover only stable physical traits useful for re-rendering
the person: apparent age range, hair, facial features, build, glasses,
distinctive clothing. Do not guess real names; use "Person 1", "Person 2", ...
Return [] if no people are visible.`

const rewriteInstruction = `You refine scene descriptions for a group portrait generator.
Rewrite the user's scene description into one detailed photographic prompt:
concrete setting, lighting, mood, composition and color palette.
Keep the user's intent, add no people, and respond with the rewritten
description only - no preamble, no quotes.`

// Analyzer is the fast/cheap caller used for photo analysis and prompt
// rewriting.
type Analyzer struct {
	creds CredentialSource
	usage UsageRecorder
	model string
	log   *slog.Logger
}

func NewAnalyzer(creds CredentialSource, usage UsageRecorder, model string, log *slog.Logger) *Analyzer {
	if usage == nil {
		usage = noopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{creds: creds, usage: usage, model: model, log: log}
}

// AnalyzeSubjects detects the people in one prepared photo.
func (a *Analyzer) AnalyzeSubjects(ctx context.Context, img models.EncodedImage) ([]SubjectProfile, error) {
	text, err := a.generate(ctx, "analyze", func(m *genai.GenerativeModel) {
		m.SetTemperature(0.2)
		m.ResponseMIMEType = "application/json"
	}, genai.ImageData(imageFormat(img.MIMEType), img.Data), genai.Text(analyzeInstruction))
	if err != nil {
		return nil, err
	}

	var profiles []SubjectProfile
	if err := json.Unmarshal([]byte(stripFences(text)), &profiles); err != nil {
		a.log.Warn("analysis returned unparseable JSON", "err", err)
		return nil, emptyResponse()
	}
	return profiles, nil
}

// RewritePrompt expands a free-text scene description into a detailed
// photographic prompt. Best effort; callers treat failure as a hard stop for
// the batch that requested it.
func (a *Analyzer) RewritePrompt(ctx context.Context, scene string) (string, error) {
	if strings.TrimSpace(scene) == "" {
		return "", Validationf("scene description is empty")
	}

	text, err := a.generate(ctx, "rewrite", func(m *genai.GenerativeModel) {
		m.SetTemperature(0.7)
	}, genai.Text(rewriteInstruction+"\n\nScene description: "+scene))
	if err != nil {
		return "", err
	}

	rewritten := strings.TrimSpace(text)
	if rewritten == "" {
		return "", emptyResponse()
	}
	return rewritten, nil
}

func (a *Analyzer) generate(ctx context.Context, action string, configure func(*genai.GenerativeModel), parts ...genai.Part) (string, error) {
	key, ok := a.creds.Get()
	if !ok {
		return "", Validationf("no API credential configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(a.model)
	configure(model)

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		a.log.Error("text call failed", "action", action, "model", a.model, "err", err)
		return "", normalizeTransport(ctx, err)
	}

	if resp.UsageMetadata != nil {
		a.usage.Record(action, a.model,
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", emptyResponse()
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", emptyResponse()
	}
	return b.String(), nil
}

// imageFormat converts a MIME type to the bare format name the SDK expects.
func imageFormat(mime string) string {
	return strings.TrimPrefix(mime, "image/")
}

// stripFences removes markdown code fences some model replies wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
