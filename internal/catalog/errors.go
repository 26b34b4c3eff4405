package catalog

import (
	"fmt"
)

// TransportError reports a failed fetch: network failure, timeout, or a
// non-2xx status. StatusCode is zero when no response was received.
type TransportError struct {
	Address    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Address, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StorageError reports a batch that could not be committed. Nothing from the
// batch is visible when it is returned.
type StorageError struct {
	Segment string
	Index   int
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("persist segment %s index %d: %v", e.Segment, e.Index, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports setup that makes a segment impossible to run,
// such as a malformed base address. It is fatal for that segment only.
type ConfigurationError struct {
	Segment string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("segment %s: %s: %v", e.Segment, e.Reason, e.Err)
	}
	return fmt.Sprintf("segment %s: %s", e.Segment, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
