package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
)

const extractionPrompt = `You are an AI assistant that extracts actionable items from transcribed text.

Identify and extract the following types of actions:
- task: Specific to-do items or tasks mentioned
- meeting_item: Agenda items or topics to discuss in meetings
- github_action: GitHub-related actions like creating PRs, commits, issues
- calendar_event: Events or appointments to schedule
- idea: Creative ideas or brainstorming points
- decision: Important decisions that were made or need to be made

For each action, provide:
1. The action type
2. A clear, concise description
3. A confidence score (0-1) indicating how certain you are this is an actionable item

Focus on explicit mentions and clear intent. Avoid inferring actions that aren't clearly stated.

Respond with JSON of the shape {"actions": [{"type": ..., "description": ..., "confidence": ...}]}.`

// GeminiExtractor asks a Gemini model for the actionable items in a
// piece of text.
type GeminiExtractor struct {
	model  *genai.GenerativeModel
	logger *log.Logger
}

func NewGeminiExtractor(
	client *genai.Client,
	modelName string,
	logger *log.Logger,
) *GeminiExtractor {
	model := client.GenerativeModel(modelName)
	model.GenerationConfig.SetMaxOutputTokens(2048)
	model.GenerationConfig.SetTemperature(0.1)
	model.GenerationConfig.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(extractionPrompt)},
	}
	return &GeminiExtractor{model: model, logger: logger}
}

func (g *GeminiExtractor) ExtractActions(
	ctx context.Context,
	text string,
) ([]Extracted, error) {
	resp, err := g.model.GenerateContent(
		ctx,
		genai.Text("Extract actionable items from this text: "+text),
	)
	if err != nil {
		return nil, fmt.Errorf("generating extraction: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}

	acts, err := decodeActions(sb.String())
	if err != nil {
		return nil, err
	}
	g.logger.Debug("extracted actions", "count", len(acts))
	return acts, nil
}

// decodeActions accepts either {"actions": [...]} or a bare array, with
// or without markdown code fences, since models drift between them.
func decodeActions(raw string) ([]Extracted, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if raw == "" {
		return nil, nil
	}

	var wrapped struct {
		Actions []Extracted `json:"actions"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil {
		return wrapped.Actions, nil
	}

	var bare []Extracted
	if err := json.Unmarshal([]byte(raw), &bare); err != nil {
		return nil, fmt.Errorf("decoding action list: %w", err)
	}
	return bare, nil
}
