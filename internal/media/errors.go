package media

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the run must react to it.
type Kind uint8

const (
	// KindConfig is a bad argument; fatal before any output exists.
	KindConfig Kind = iota + 1
	// KindSource is an unreadable input or a missing timing track; fatal.
	KindSource
	// KindWrite is a manifest or segment write failure; already written segments stay valid.
	KindWrite
	// KindPacketWrite is a single packet that did not reach the sink; logged and skipped.
	KindPacketWrite
	// KindRotation is a failure to open or finalize a segment file; fatal.
	KindRotation
	// KindProbe is a segment file whose duration cannot be determined.
	KindProbe
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindSource:
		return "source"
	case KindWrite:
		return "write"
	case KindPacketWrite:
		return "packet write"
	case KindRotation:
		return "rotation"
	case KindProbe:
		return "probe"
	default:
		return "unknown"
	}
}

var (
	// ErrNoTimingTrack is returned when the source has neither a video nor an audio track.
	ErrNoTimingTrack = errors.New("no usable timing track")

	// ErrDiscontinuity is returned when the clock track runs backwards.
	ErrDiscontinuity = errors.New("timestamp discontinuity")

	// ErrNoTimedTrack is returned by the prober when a file has no video or audio track.
	ErrNoTimedTrack = errors.New("no timed track found")

	// ErrUnsupportedContainer is returned for files the prober cannot parse.
	ErrUnsupportedContainer = errors.New("unsupported container")
)

// Error carries the failure kind alongside the operation and file it concerns.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s error: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// IsKind reports whether any error in err's chain is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
