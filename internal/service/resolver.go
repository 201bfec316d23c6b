package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"friendchat-service/internal/logging"
	"friendchat-service/internal/observability"
	"friendchat-service/internal/repositories"
)

const tracerName = "friendchat-service/service"

// Resolution outcomes.
const (
	OutcomeCreated = "created"
	OutcomeReused  = "reused"
	OutcomeFailed  = "failed"
)

// ThreadResolver finds or creates the chat thread of a user pair.
//
// Lookup and creation are separate store calls with no transaction around them. Two concurrent
// resolutions for the same pair can both miss and both create, leaving two threads and up to four
// index entries. Later resolutions keep returning the thread with the lowest id.
type ThreadResolver struct {
	chats  repositories.ChatRepository
	index  *IndexSynchronizer
	now    func() time.Time
	tracer trace.Tracer
}

func NewThreadResolver(chats repositories.ChatRepository, index *IndexSynchronizer, now func() time.Time) *ThreadResolver {
	if now == nil {
		now = time.Now
	}
	return &ThreadResolver{chats: chats, index: index, now: now, tracer: otel.Tracer(tracerName)}
}

// ResolveOrCreateThread returns the id of the thread between a and b, and whether it was created.
// Any failed step fails the whole call; nothing already written is rolled back.
func (r *ThreadResolver) ResolveOrCreateThread(ctx context.Context, a, b string) (chatID string, created bool, err error) {
	if a == b {
		return "", false, ErrSelfReference
	}
	ctx, span := r.tracer.Start(ctx, "ResolveOrCreateThread", trace.WithAttributes(
		attribute.String("user.a", a),
		attribute.String("user.b", b),
	))
	defer func() {
		outcome := OutcomeReused
		switch {
		case err != nil:
			outcome = OutcomeFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case created:
			outcome = OutcomeCreated
		}
		observability.IncThreadResolution(outcome)
		span.SetAttributes(attribute.String("resolution.outcome", outcome))
		span.End()
	}()

	threads, err := r.chats.FindByMembers(ctx, a, b)
	if err != nil {
		return "", false, fmt.Errorf("find chat: %w", err)
	}
	now := r.now().UTC()

	if len(threads) > 0 {
		chatID = threads[0].ID
		if len(threads) > 1 {
			l := logging.Ctx(ctx)
			l.Warn().Str(logging.FieldChatID, chatID).Int("threads", len(threads)).Msg("duplicate chat threads for pair")
		}
		if err := r.chats.Touch(ctx, chatID, now); err != nil {
			return "", false, fmt.Errorf("touch chat: %w", err)
		}
		if err := r.index.TouchIndexEntry(ctx, a, chatID, b, now); err != nil {
			return "", false, fmt.Errorf("touch index entry: %w", err)
		}
		if err := r.index.TouchIndexEntry(ctx, b, chatID, a, now); err != nil {
			return "", false, fmt.Errorf("touch index entry: %w", err)
		}
		return chatID, false, nil
	}

	chatID, err = r.chats.Create(ctx, a, b, now)
	if err != nil {
		return "", false, fmt.Errorf("create chat: %w", err)
	}
	if err := r.index.UpsertIndexEntry(ctx, a, chatID, b, "", now); err != nil {
		return "", false, fmt.Errorf("create index entry: %w", err)
	}
	if err := r.index.UpsertIndexEntry(ctx, b, chatID, a, "", now); err != nil {
		return "", false, fmt.Errorf("create index entry: %w", err)
	}
	return chatID, true, nil
}
