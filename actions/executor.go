package actions

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

var refNumberRe = regexp.MustCompile(`#(\d+)`)

// Executor carries out extracted actions. Only github_action has a real
// side effect today; everything else lands in the session ledger.
type Executor struct {
	github *GitHubClient
	logger *log.Logger
}

func NewExecutor(github *GitHubClient, logger *log.Logger) *Executor {
	return &Executor{github: github, logger: logger}
}

func (e *Executor) Execute(ctx context.Context, act Extracted) (Executed, error) {
	switch act.Type {
	case TypeGitHubAction:
		return e.executeGitHub(ctx, act)
	case TypeCalendarEvent:
		return Executed{Status: "calendar_not_implemented"}, nil
	case TypeTask, TypeMeetingItem, TypeIdea, TypeDecision:
		return Executed{Status: "logged"}, nil
	default:
		e.logger.Warn("unknown action type", "type", act.Type)
		return Executed{Status: "unknown_action_type"}, nil
	}
}

func (e *Executor) executeGitHub(ctx context.Context, act Extracted) (Executed, error) {
	desc := act.Description
	lower := strings.ToLower(desc)

	if strings.Contains(lower, "pull request") || strings.Contains(desc, "PR") {
		number := 1
		if m := refNumberRe.FindStringSubmatch(desc); m != nil {
			number, _ = strconv.Atoi(m[1])
		}
		ref, err := e.github.CreateIssueComment(ctx, number, desc)
		if err != nil {
			return Executed{}, err
		}
		return Executed{Status: "commented", ExternalRef: ref}, nil
	}

	title := desc
	if runes := []rune(title); len(runes) > 50 {
		title = string(runes[:50])
	}
	ref, err := e.github.CreateIssue(ctx, title, desc)
	if err != nil {
		return Executed{}, err
	}
	return Executed{Status: "created", ExternalRef: ref}, nil
}
