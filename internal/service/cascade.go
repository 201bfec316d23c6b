package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"friendchat-service/internal/logging"
	"friendchat-service/internal/models"
	"friendchat-service/internal/observability"
	"friendchat-service/internal/repositories"
)

// CascadeState is the state of one friend removal.
type CascadeState string

const (
	StateStarted           CascadeState = "started"
	StateIndexARemoved     CascadeState = "index_a_removed"
	StateThreadDeleted     CascadeState = "thread_deleted"
	StateIndexBRemoved     CascadeState = "index_b_removed"
	StateFriendshipRemoved CascadeState = "friendship_removed"
	StateCompleted         CascadeState = "completed"
	StatePartiallyFailed   CascadeState = "partially_failed"
)

var stepStates = map[StepName]CascadeState{
	StepRemoveIndexA:     StateIndexARemoved,
	StepDeleteThread:     StateThreadDeleted,
	StepRemoveIndexB:     StateIndexBRemoved,
	StepRemoveFriendship: StateFriendshipRemoved,
}

// CascadeResult is the outcome of RemoveFriend.
type CascadeResult struct {
	State   CascadeState `json:"state"`
	Applied []StepName   `json:"applied"`
	Failed  []StepName   `json:"failed_steps,omitempty"`
	ChatIDs []string     `json:"chat_ids,omitempty"`

	// NotFound lists steps that found nothing to remove. They are not failures.
	NotFound []StepName `json:"not_found,omitempty"`
}

// OK reports whether every step applied.
func (r CascadeResult) OK() bool {
	return r.State == StateCompleted
}

// CascadeCoordinator removes a friendship together with the pair's threads and index entries.
// The steps run in order and independently: a failed step is recorded and the next one still
// runs. Every step is idempotent, so callers may rerun the whole removal after a partial failure.
type CascadeCoordinator struct {
	friendships *FriendshipStore
	chats       repositories.ChatRepository
	index       *IndexSynchronizer
	tracer      trace.Tracer
}

func NewCascadeCoordinator(friendships *FriendshipStore, chats repositories.ChatRepository, index *IndexSynchronizer) *CascadeCoordinator {
	return &CascadeCoordinator{
		friendships: friendships,
		chats:       chats,
		index:       index,
		tracer:      otel.Tracer(tracerName),
	}
}

type cascadeRun struct {
	ctx    context.Context
	a, b   string
	result CascadeResult
	causes []error
}

func (r *cascadeRun) step(name StepName, fn func() error) {
	if err := fn(); err != nil {
		l := logging.Ctx(r.ctx)
		l.Warn().Err(err).
			Str(logging.FieldStep, string(name)).
			Str(logging.FieldUserID, r.a).
			Str(logging.FieldFriendID, r.b).
			Msg("friend removal step failed")
		observability.IncCascadeStepFailure(string(name))
		r.result.Failed = append(r.result.Failed, name)
		r.causes = append(r.causes, fmt.Errorf("%s: %w", name, err))
		return
	}
	r.result.Applied = append(r.result.Applied, name)
	if len(r.result.Failed) == 0 {
		r.result.State = stepStates[name]
	}
}

func (r *cascadeRun) notFound(name StepName) {
	r.result.NotFound = append(r.result.NotFound, name)
	r.result.Applied = append(r.result.Applied, name)
	if len(r.result.Failed) == 0 {
		r.result.State = stepStates[name]
	}
}

// RemoveFriend runs the removal of the a-b friendship. The error is nil when every step applied
// and a *PartialFailureError listing the failed steps otherwise.
func (c *CascadeCoordinator) RemoveFriend(ctx context.Context, a, b string) (res CascadeResult, err error) {
	if a == b {
		return CascadeResult{}, ErrSelfReference
	}
	ctx, span := c.tracer.Start(ctx, "RemoveFriend", trace.WithAttributes(
		attribute.String("user.a", a),
		attribute.String("user.b", b),
	))
	defer func() {
		observability.IncCascade(string(res.State))
		span.SetAttributes(attribute.String("cascade.state", string(res.State)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	run := &cascadeRun{ctx: ctx, a: a, b: b, result: CascadeResult{State: StateStarted}}

	// Threads are located through a's entries, b's entries and the membership query, so a rerun
	// after a partial failure and duplicate threads from concurrent creation are still found.
	entriesA, errA := c.index.EntriesFor(ctx, a, b)
	entriesB, errB := c.index.EntriesFor(ctx, b, a)
	threads, errT := c.chats.FindByMembers(ctx, a, b)

	chatIDs := map[string]struct{}{}
	for _, e := range entriesA {
		chatIDs[e.ChatID] = struct{}{}
	}
	for _, e := range entriesB {
		chatIDs[e.ChatID] = struct{}{}
	}
	for _, t := range threads {
		chatIDs[t.ID] = struct{}{}
	}
	for id := range chatIDs {
		run.result.ChatIDs = append(run.result.ChatIDs, id)
	}
	sort.Strings(run.result.ChatIDs)

	c.removeIndex(run, StepRemoveIndexA, a, errA)

	if len(run.result.ChatIDs) == 0 && errT == nil && errA == nil && errB == nil {
		run.notFound(StepDeleteThread)
	} else {
		run.step(StepDeleteThread, func() error {
			var errs []error
			if errT != nil {
				errs = append(errs, fmt.Errorf("find chats: %w", errT))
			}
			for _, id := range run.result.ChatIDs {
				if err := c.chats.Delete(ctx, id); err != nil {
					errs = append(errs, fmt.Errorf("delete chat %s: %w", id, err))
				}
			}
			return errors.Join(errs...)
		})
	}

	c.removeIndex(run, StepRemoveIndexB, b, errB)

	run.step(StepRemoveFriendship, func() error {
		return c.friendships.RemoveFriendship(ctx, a, b)
	})

	if len(run.result.Failed) > 0 {
		run.result.State = StatePartiallyFailed
		return run.result, &PartialFailureError{Op: "remove friend", Failed: run.result.Failed, Causes: run.causes}
	}
	run.result.State = StateCompleted
	return run.result, nil
}

func (c *CascadeCoordinator) removeIndex(run *cascadeRun, name StepName, owner string, lookupErr error) {
	if len(run.result.ChatIDs) == 0 && lookupErr == nil {
		run.notFound(name)
		return
	}
	run.step(name, func() error {
		var errs []error
		if lookupErr != nil {
			errs = append(errs, fmt.Errorf("find index entries: %w", lookupErr))
		}
		for _, id := range run.result.ChatIDs {
			if err := c.index.RemoveIndexEntry(run.ctx, owner, entryFor(owner, id)); err != nil {
				errs = append(errs, fmt.Errorf("delete index entry %s: %w", id, err))
			}
		}
		return errors.Join(errs...)
	})
}

func entryFor(owner, chatID string) models.UserChatEntry {
	return models.UserChatEntry{OwnerID: owner, ChatID: chatID}
}
