// Package actions turns finalized utterances into executed side effects:
// a language model extracts actionable items from the text, and an
// executor carries them out against external services.
package actions

import "context"

// Action types the extractor is allowed to produce.
const (
	TypeTask          = "task"
	TypeMeetingItem   = "meeting_item"
	TypeGitHubAction  = "github_action"
	TypeCalendarEvent = "calendar_event"
	TypeIdea          = "idea"
	TypeDecision      = "decision"
)

// Extracted is one actionable item found in an utterance.
type Extracted struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Extractor finds actionable items in transcribed text.
type Extractor interface {
	ExtractActions(ctx context.Context, text string) ([]Extracted, error)
}

// Executed is the outcome of carrying out one extracted action.
type Executed struct {
	Status      string
	ExternalRef string
}
