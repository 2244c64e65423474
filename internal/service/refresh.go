package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/jira"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

// Refresher pulls the current tracker state of an issue and feeds it through
// the normal inbound path, so a manual refresh behaves exactly like a
// notification would have.
type Refresher struct {
	client     *jira.Client
	reconciler *InboundReconciler
	logger     *zap.Logger
}

// NewRefresher constructs the refresher.
func NewRefresher(client *jira.Client, reconciler *InboundReconciler, logger *zap.Logger) *Refresher {
	return &Refresher{client: client, reconciler: reconciler, logger: logger}
}

// Refresh fetches the issue and reconciles it.
func (s *Refresher) Refresh(ctx context.Context, externalKey string) (*ReconcileResult, error) {
	if externalKey == "" {
		return nil, apperrors.NewValidationError("issue key required", nil)
	}

	issue, err := s.client.GetIssue(ctx, externalKey)
	if err != nil {
		return nil, err
	}

	envelope := map[string]any{
		"webhookEvent": "manual_refresh",
		"issue":        issue,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("manual refresh triggered", zap.String("external_key", externalKey))
	return s.reconciler.Process(ctx, raw)
}
