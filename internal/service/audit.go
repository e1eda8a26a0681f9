package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
)

type actorKey struct{}

// Actor identifies who triggered an operation for the audit trail.
type Actor struct {
	UserID    string
	IP        string
	UserAgent string
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored on ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

type auditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// auditTrail writes best-effort audit rows. Failures are logged and never surface to callers.
type auditTrail struct {
	store  auditStore
	logger *zap.Logger
}

func newAuditTrail(store auditStore, logger *zap.Logger) auditTrail {
	return auditTrail{store: store, logger: logger}
}

func (a auditTrail) record(ctx context.Context, action, resource, resourceID string, oldValues, newValues interface{}) {
	if a.store == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  marshalAudit(oldValues),
		NewValues:  marshalAudit(newValues),
	}
	if actor, ok := ActorFromContext(ctx); ok {
		if actor.UserID != "" {
			userID := actor.UserID
			entry.UserID = &userID
		}
		entry.IPAddress = actor.IP
		entry.UserAgent = actor.UserAgent
	}
	if err := a.store.Create(ctx, entry); err != nil {
		a.logger.Warn("failed to record audit log",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.Error(err))
	}
}

func marshalAudit(v interface{}) models.JSONText {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func statusOf(err error) int {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
