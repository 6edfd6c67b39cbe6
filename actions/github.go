package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type GitHubConfig struct {
	Token string
	Owner string
	Repo  string

	// BaseURL overrides the public API endpoint, for tests.
	BaseURL string
}

// GitHubClient is a thin wrapper over the GitHub REST API, covering
// just the calls the executor needs.
type GitHubClient struct {
	cfg    GitHubConfig
	client *http.Client
}

func NewGitHubClient(cfg GitHubConfig) *GitHubClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	return &GitHubClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *GitHubClient) Configured() bool {
	return c.cfg.Token != "" && c.cfg.Owner != "" && c.cfg.Repo != ""
}

// CreateIssue opens an issue and returns its html_url.
func (c *GitHubClient) CreateIssue(ctx context.Context, title, body string) (string, error) {
	url := fmt.Sprintf(
		"%s/repos/%s/%s/issues",
		c.cfg.BaseURL, c.cfg.Owner, c.cfg.Repo,
	)
	return c.post(ctx, url, map[string]string{"title": title, "body": body})
}

// CreateIssueComment comments on an issue or pull request; the issues
// comment endpoint covers both.
func (c *GitHubClient) CreateIssueComment(ctx context.Context, number int, body string) (string, error) {
	url := fmt.Sprintf(
		"%s/repos/%s/%s/issues/%d/comments",
		c.cfg.BaseURL, c.cfg.Owner, c.cfg.Repo, number,
	)
	return c.post(ctx, url, map[string]string{"body": body})
}

func (c *GitHubClient) post(ctx context.Context, url string, payload any) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("github credentials not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling github: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("github returned %d: %s", resp.StatusCode, detail)
	}

	var out struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding github response: %w", err)
	}
	return out.HTMLURL, nil
}
