package application

import (
	"errors"
	"fmt"
)

var (
	ErrConnection        = errors.New("connection failed")
	ErrQuery             = errors.New("query failed")
	ErrEnumerationFailed = errors.New("membership enumeration failed")
)

// ConnectionError reports an endpoint that could not be reached or did not
// complete the protocol handshake.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// QueryError reports a single failed storage read: transport failure,
// timeout or a value that does not match the module schema.
type QueryError struct {
	Module string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Module, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQuery }

type Stage string

const (
	StageConnect   Stage = "connect"
	StageEnumerate Stage = "enumerate"
	StageEmit      Stage = "emit"
)

// PipelineError is a fatal pipeline failure tagged with the stage and, where
// one is involved, the endpoint.
type PipelineError struct {
	Stage    Stage
	Endpoint string
	Err      error
}

func (e *PipelineError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("pipeline %s stage: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("pipeline %s stage (%s): %v", e.Stage, e.Endpoint, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
