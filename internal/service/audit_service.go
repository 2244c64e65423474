package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/events"
)

const (
	auditStreamKey = "sync:events"
	auditStreamLen = 1000
)

// AuditService records sync events for operator visibility. Events are logged
// and mirrored onto a capped Redis list so recent activity survives restarts.
type AuditService struct {
	dispatcher events.Dispatcher
	cache      *redis.Client
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, cache *redis.Client, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		cache:      cache,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketSynced, a.handleEvent)
	a.dispatcher.Subscribe(events.EventTicketLinked, a.handleEvent)
	a.dispatcher.Subscribe(events.EventExternalStatusChanged, a.handleEvent)
	a.dispatcher.Subscribe(events.EventSyncFailed, a.handleEvent)
}

func (a *AuditService) handleEvent(ctx context.Context, event events.Event) error {
	a.logger.Info(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	a.appendToStream(ctx, event)
	return nil
}

func (a *AuditService) appendToStream(ctx context.Context, event events.Event) {
	if a.cache == nil {
		return
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return
	}
	pipe := a.cache.Pipeline()
	pipe.LPush(ctx, auditStreamKey, encoded)
	pipe.LTrim(ctx, auditStreamKey, 0, auditStreamLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Debug("audit stream write failed", zap.Error(err))
	}
}

// RecentEvents returns the newest events from the Redis stream, newest first.
func (a *AuditService) RecentEvents(ctx context.Context, limit int) ([]events.Event, error) {
	if a.cache == nil {
		return nil, nil
	}
	if limit <= 0 || limit > auditStreamLen {
		limit = 100
	}
	values, err := a.cache.LRange(ctx, auditStreamKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	result := make([]events.Event, 0, len(values))
	for _, value := range values {
		var event events.Event
		if err := json.Unmarshal([]byte(value), &event); err != nil {
			continue
		}
		result = append(result, event)
	}
	return result, nil
}
