// Package errs defines the error taxonomy shared by the download pipeline
// and its front ends. Every terminal failure carries a Kind so that callers
// can map it to a user-facing message or an HTTP status without parsing
// error text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// Unknown is the zero value for errors produced outside this package.
	Unknown Kind = iota

	// InvalidLinkFormat means the input text is not a recognized t.me link.
	InvalidLinkFormat

	// ClientNotConnected means the session client reports itself offline.
	ClientNotConnected

	// PeerUnreachable means every resolution strategy for the target
	// channel was exhausted.
	PeerUnreachable

	// MessageNotFound means the target message id could not be located.
	MessageNotFound

	// MediaUnavailable means the message exists but its media is only
	// reachable through a reply or forward reference.
	MediaUnavailable

	// UnsupportedMediaType means the message carries a payload kind the
	// downloader does not recognize.
	UnsupportedMediaType

	// DownloadFailed means the transfer could not be completed after
	// exhausting retries.
	DownloadFailed

	// EmptyMediaPayload means the completed transfer produced zero bytes.
	EmptyMediaPayload
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case InvalidLinkFormat:
		return "invalid_link_format"
	case ClientNotConnected:
		return "client_not_connected"
	case PeerUnreachable:
		return "peer_unreachable"
	case MessageNotFound:
		return "message_not_found"
	case MediaUnavailable:
		return "media_unavailable"
	case UnsupportedMediaType:
		return "unsupported_media_type"
	case DownloadFailed:
		return "download_failed"
	case EmptyMediaPayload:
		return "empty_media_payload"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error. Msg is safe to show to users; Err,
// when set, retains the underlying cause for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error that retains cause for unwrapping.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf recovers the kind from an error chain. Errors produced outside
// this package report Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
