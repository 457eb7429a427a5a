package gateway

import (
	"context"
	"fmt"
	"log/slog"

	genai "google.golang.org/genai"

	"github.com/framefold/groupshot/internal/models"
)

// Generator drives the image-synthesis model.
type Generator struct {
	creds CredentialSource
	usage UsageRecorder
	log   *slog.Logger
}

func NewGenerator(creds CredentialSource, usage UsageRecorder, log *slog.Logger) *Generator {
	if usage == nil {
		usage = noopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{creds: creds, usage: usage, log: log}
}

// GenerateImage renders one portrait from the reference images and the final
// assembled prompt, on the given model. The returned error is always drawn
// from the gateway taxonomy.
func (g *Generator) GenerateImage(ctx context.Context, refs []models.EncodedImage, prompt string, model string) (models.EncodedImage, error) {
	key, ok := g.creds.Get()
	if !ok {
		return models.EncodedImage{}, Validationf("no API credential configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  key,
	})
	if err != nil {
		return models.EncodedImage{}, fmt.Errorf("create client: %w", err)
	}

	parts := make([]*genai.Part, 0, len(refs)+1)
	for _, ref := range refs {
		parts = append(parts, genai.NewPartFromBytes(ref.Data, ref.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: "3:2"},
		Temperature:        genai.Ptr(float32(1.0)),
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		g.log.Error("generate call failed", "model", model, "err", err)
		return models.EncodedImage{}, normalizeTransport(ctx, err)
	}

	if resp.UsageMetadata != nil {
		g.usage.Record("generate", model,
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount))
	}

	if resp.PromptFeedback != nil && string(resp.PromptFeedback.BlockReason) != "" {
		return models.EncodedImage{}, promptBlocked(string(resp.PromptFeedback.BlockReason))
	}

	if len(resp.Candidates) == 0 {
		return models.EncodedImage{}, emptyResponse()
	}

	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return models.EncodedImage{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				}, nil
			}
		}
	}

	if refusal := refusalFromFinishReason(string(cand.FinishReason)); refusal != nil {
		return models.EncodedImage{}, refusal
	}
	return models.EncodedImage{}, emptyResponse()
}
