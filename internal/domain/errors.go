package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConnection        = errors.New("connection failed")
	ErrNotConnected      = errors.New("not connected")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrEmptyMessage      = errors.New("message empty")
)

// ConnectionError reports a failed token fetch or room connect.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// TimeoutError reports that connecting exceeded its deadline.
// It is a connection error as far as errors.Is is concerned.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("connection timed out after %s", e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrConnection }

// DecodeError reports a side-channel payload that could not be understood.
type DecodeError struct {
	Topic string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Topic, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DeviceError reports a failed device switch.
type DeviceError struct {
	Kind DeviceKind
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
