package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ensure this satisfies the interface
var _ Translator = (*Gemini)(nil)

type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-1.5-flash")
	model.GenerationConfig.SetTemperature(0.1)
	model.GenerationConfig.SetMaxOutputTokens(1024)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{
			genai.Text(`You are a translator for live conversation transcripts.
Translate the given text faithfully. Output only the translation, with no
commentary and no quotation marks around it.`),
		},
	}

	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Translate(
	ctx context.Context,
	text, sourceLang, targetLang string,
) (string, error) {
	prompt := fmt.Sprintf(
		"Translate from %s to %s:\n\n%s",
		sourceLang,
		targetLang,
		text,
	)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("Gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	translated := strings.TrimSpace(sb.String())
	if translated == "" {
		return "", fmt.Errorf("Gemini returned an empty translation")
	}

	return translated, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}
