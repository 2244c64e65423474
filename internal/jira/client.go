package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gojira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

const maxErrorBody = 2048

// IssuePayload is a tracker-native issue creation payload. Fields is the raw
// field map so custom fields and ADF documents pass through unchanged.
type IssuePayload struct {
	Fields map[string]any `json:"fields"`
}

// CreateResult is the stable identifier pair returned by issue creation.
type CreateResult struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// Client wraps the tracker REST API behind a narrow contract: idempotent
// reads, create returning a stable key, and named discoverable transitions.
type Client struct {
	client     *gojira.Client
	logger     *zap.Logger
	projectKey string
	policy     RetryPolicy
}

// NewClient creates a tracker client with basic authentication.
func NewClient(cfg config.JiraConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tracker base URL not configured")
	}
	tp := gojira.BasicAuthTransport{
		Username: cfg.Username,
		Password: cfg.APIToken,
	}
	client, err := gojira.NewClient(tp.Client(), cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create tracker client: %w", err)
	}
	return &Client{
		client:     client,
		logger:     logger,
		projectKey: cfg.ProjectKey,
		policy:     NewRetryPolicy(cfg),
	}, nil
}

// ProjectKey returns the tracker project this engine owns.
func (c *Client) ProjectKey() string {
	return c.projectKey
}

// GetIssue reads one issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (*gojira.Issue, error) {
	var issue *gojira.Issue
	err := c.policy.Do(ctx, c.logger, func(ctx context.Context) error {
		got, resp, err := c.client.Issue.GetWithContext(ctx, key, nil)
		if err != nil {
			return classify(resp, err)
		}
		issue = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// SearchKeys returns the keys matching a JQL query.
func (c *Client) SearchKeys(ctx context.Context, jql string) ([]string, error) {
	var keys []string
	err := c.policy.Do(ctx, c.logger, func(ctx context.Context) error {
		issues, resp, err := c.client.Issue.SearchWithContext(ctx, jql, nil)
		if err != nil {
			return classify(resp, err)
		}
		keys = keys[:0]
		for _, issue := range issues {
			keys = append(keys, issue.Key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// CreateIssue posts the payload to the v3 issue endpoint. The v3 API is used
// directly because descriptions are ADF documents, which the typed v2
// surface of the client library does not model.
func (c *Client) CreateIssue(ctx context.Context, payload IssuePayload) (*CreateResult, error) {
	var result CreateResult
	err := c.policy.Do(ctx, c.logger, func(ctx context.Context) error {
		req, err := c.client.NewRequestWithContext(ctx, http.MethodPost, "rest/api/3/issue", payload)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		resp, err := c.client.Do(req, &result)
		if err != nil {
			return classify(resp, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Key == "" {
		return nil, apperrors.NewInternalError(fmt.Errorf("tracker create returned no issue key"))
	}
	return &result, nil
}

// TransitionTo moves an issue to the named status by discovering the
// matching transition and executing it.
func (c *Client) TransitionTo(ctx context.Context, key, statusName string) error {
	return c.policy.Do(ctx, c.logger, func(ctx context.Context) error {
		transitions, resp, err := c.client.Issue.GetTransitionsWithContext(ctx, key)
		if err != nil {
			return classify(resp, err)
		}
		var transitionID string
		for _, transition := range transitions {
			if strings.EqualFold(transition.To.Name, statusName) {
				transitionID = transition.ID
				break
			}
		}
		if transitionID == "" {
			return apperrors.NewNotFound(fmt.Sprintf("transition to status %q", statusName), map[string]any{"issue": key})
		}
		resp, err = c.client.Issue.DoTransitionWithContext(ctx, key, transitionID)
		if err != nil {
			return classify(resp, err)
		}
		return nil
	})
}

// AddComment appends a comment to an issue.
func (c *Client) AddComment(ctx context.Context, key, body string) error {
	return c.policy.Do(ctx, c.logger, func(ctx context.Context) error {
		_, resp, err := c.client.Issue.AddCommentWithContext(ctx, key, &gojira.Comment{Body: body})
		if err != nil {
			return classify(resp, err)
		}
		return nil
	})
}

// classify maps a tracker response to the sync error taxonomy: 5xx, 429 and
// network failures are retryable, every other 4xx is not.
func classify(resp *gojira.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp == nil {
		return apperrors.NewTransientIOError(0, "", err)
	}
	status := resp.StatusCode
	body := truncate(err.Error(), maxErrorBody)
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return apperrors.NewTransientIOError(status, body, err)
	}
	if status >= http.StatusBadRequest {
		return apperrors.NewNonRetryableIOError(status, body)
	}
	return apperrors.NewTransientIOError(status, body, err)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
