package service

import (
	"errors"
	"fmt"
	"strings"

	"friendchat-service/internal/docstore"
	"friendchat-service/internal/repositories"
)

var (
	// ErrNotFound marks a referenced document or index entry that does not exist.
	ErrNotFound = docstore.ErrNotFound
	// ErrStoreUnavailable marks a transient store failure.
	ErrStoreUnavailable = docstore.ErrUnavailable
	// ErrPartialCascadeFailure marks a multi-step operation where some steps did not complete.
	ErrPartialCascadeFailure = errors.New("partial cascade failure")

	ErrSelfReference  = errors.New("cannot reference yourself")
	ErrNotFriends     = errors.New("users are not friends")
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrNotParticipant = repositories.ErrNotParticipant
)

// StepName names one step of a multi-step mutation.
type StepName string

const (
	StepRemoveIndexA     StepName = "removeIndexA"
	StepDeleteThread     StepName = "deleteThread"
	StepRemoveIndexB     StepName = "removeIndexB"
	StepRemoveFriendship StepName = "removeFriendship"
)

// PartialFailureError lists the steps that failed. It matches ErrPartialCascadeFailure and every
// underlying cause under errors.Is.
type PartialFailureError struct {
	Op     string
	Failed []StepName
	Causes []error
}

func (e *PartialFailureError) Error() string {
	steps := make([]string, len(e.Failed))
	for i, s := range e.Failed {
		steps[i] = string(s)
	}
	msg := fmt.Sprintf("%s: %s: failed steps [%s]", e.Op, ErrPartialCascadeFailure, strings.Join(steps, ","))
	if len(e.Causes) > 0 {
		msg += ": " + errors.Join(e.Causes...).Error()
	}
	return msg
}

func (e *PartialFailureError) Unwrap() []error {
	return append([]error{ErrPartialCascadeFailure}, e.Causes...)
}

// FailedSteps extracts the failed steps from err, or nil when err carries none.
func FailedSteps(err error) []StepName {
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		return pf.Failed
	}
	return nil
}
