package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quarry-data/quarry/pkg/constants"
)

var ErrNoActor = errors.New("no actor found in context")

// WithActorID records the authenticated principal for the current request.
// Authentication itself happens at the transport boundary; the core only
// consumes the resulting identity.
func WithActorID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.ActorIDKey, id)
}

func UseActorID(ctx context.Context) (uuid.UUID, error) {
	v := ctx.Value(constants.ActorIDKey)
	if v == nil {
		return uuid.Nil, ErrNoActor
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoActor
	}
	return id, nil
}

// UseLogger returns the request-scoped logger, or a plain one if the
// middleware did not run.
func UseLogger(ctx context.Context) *logrus.Entry {
	if v := ctx.Value(constants.LoggerKey); v != nil {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, entry)
}
