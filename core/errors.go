package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidQuery     = errors.New("invalid query")
	ErrUniqueConstraint = errors.New("unique constraint violation")
)

// InvalidQueryError reports malformed range or pagination arguments. It is
// always returned before any backend access.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

func (e *InvalidQueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

func invalidQuery(format string, args ...any) error {
	return &InvalidQueryError{Reason: fmt.Sprintf(format, args...)}
}

// UniqueConstraintError is returned by SaveEvents when one of the events
// collides with an already persisted (aggregate id, revision) pair. The backend
// state is unchanged when this error is returned.
type UniqueConstraintError struct {
	Events []EventToSave
}

func NewUniqueConstraintError(events []EventToSave) *UniqueConstraintError {
	batch := make([]EventToSave, len(events))
	copy(batch, events)
	return &UniqueConstraintError{Events: batch}
}

func (e *UniqueConstraintError) Error() string {
	batch, err := json.Marshal(e.Events)
	if err != nil {
		batch = []byte(fmt.Sprintf("%d events", len(e.Events)))
	}
	return fmt.Sprintf("unique constraint on aggregateId-revision failed on one of the events in %s", batch)
}

func (e *UniqueConstraintError) Is(target error) bool {
	return target == ErrUniqueConstraint
}
