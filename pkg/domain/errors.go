package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed reports that a pipeline queue was closed; consumers
	// treat it as a clean shutdown signal, not a failure.
	ErrQueueClosed = errors.New("queue closed")

	ErrPluginDisabled      = errors.New("plugin is disabled")
	ErrPluginWrongCategory = errors.New("plugin does not belong to the category this pipeline serves")

	// ErrDuplicateSignature reports a unique-index conflict on a finding
	// signature. The dedup stage treats it as a concurrent first insert and
	// falls back to the hit-count path.
	ErrDuplicateSignature = errors.New("finding signature already exists")
)

type notFoundError struct {
	EntityType string
	ID         string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("%s with ID '%s' not found", e.EntityType, e.ID)
}

func NewNotFoundError(entityType string, id string) error {
	return &notFoundError{
		EntityType: entityType,
		ID:         id,
	}
}

func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var notFoundError *notFoundError
	ok := errors.As(err, &notFoundError)
	return ok
}

// LoadError reports that a module specifier could not be resolved against
// the loader registry.
type LoadError struct {
	Specifier string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load module '%s': %v", e.Specifier, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func NewLoadError(specifier string, err error) error {
	return &LoadError{Specifier: specifier, Err: err}
}

func IsLoadError(err error) bool {
	if err == nil {
		return false
	}
	var loadError *LoadError
	return errors.As(err, &loadError)
}

// TranspileError reports malformed type-annotated source that could not be
// lowered to plain script text.
type TranspileError struct {
	Specifier string
	Err       error
}

func (e *TranspileError) Error() string {
	return fmt.Sprintf("failed to transpile module '%s': %v", e.Specifier, e.Err)
}

func (e *TranspileError) Unwrap() error { return e.Err }

func NewTranspileError(specifier string, err error) error {
	return &TranspileError{Specifier: specifier, Err: err}
}

func IsTranspileError(err error) bool {
	if err == nil {
		return false
	}
	var transpileError *TranspileError
	return errors.As(err, &transpileError)
}

// ExecutionError reports a failed plugin invocation: a missing export, a
// thrown error, a rejected async result, or an interrupted call. It is
// plugin-local and never aborts the dispatch loop.
type ExecutionError struct {
	PluginID string
	Op       string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("plugin '%s': %s failed: %v", e.PluginID, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func NewExecutionError(pluginID, op string, err error) error {
	return &ExecutionError{PluginID: pluginID, Op: op, Err: err}
}

func IsExecutionError(err error) bool {
	if err == nil {
		return false
	}
	var executionError *ExecutionError
	return errors.As(err, &executionError)
}

// DatabaseError reports a failed persistent-store operation. Persistence is
// best-effort in the pipeline: callers log it and keep the in-memory path
// authoritative.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database operation '%s' failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func NewDatabaseError(op string, err error) error {
	return &DatabaseError{Op: op, Err: err}
}

func IsDatabaseError(err error) bool {
	if err == nil {
		return false
	}
	var databaseError *DatabaseError
	return errors.As(err, &databaseError)
}
