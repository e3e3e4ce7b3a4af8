// Package link parses shareable t.me links into a channel reference and a
// message id. Parsing is pure: no network calls, no client state.
package link

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Sbillxx/telegrabber/errs"
)

// ReferenceKind distinguishes how the channel part of a link addresses the
// conversation.
type ReferenceKind int

const (
	// Public links carry a username or a bare numeric id.
	Public ReferenceKind = iota

	// PrivateByID links use the t.me/c/<id>/... form and require the
	// session to already be a participant.
	PrivateByID
)

func (k ReferenceKind) String() string {
	if k == PrivateByID {
		return "private"
	}
	return "public"
}

// Reference is a parsed link: which conversation, and which message in it.
// ChannelIdentifier never contains the private marker itself.
type Reference struct {
	Kind              ReferenceKind
	ChannelIdentifier string
	MessageID         int64
}

// privateMarker is the path segment Telegram uses for private channel links.
const privateMarker = "c"

var (
	// t.me/c/<channelId>/<threadId>/<messageId> — thread id is discarded.
	privateThreadPattern = regexp.MustCompile(`^t\.me/c/(\d+)/(\d+)/(\d+)$`)

	// t.me/c/<channelId>/<messageId>
	privatePattern = regexp.MustCompile(`^t\.me/c/([^/]+)/(\d+)$`)

	// t.me/<identifier>/<messageId> — identifier may be a username or a
	// bare numeric id.
	publicPattern = regexp.MustCompile(`^t\.me/([^/]+)/(\d+)$`)
)

// Parse turns link text into a Reference. It normalizes the input (trims
// whitespace, strips the scheme and a www prefix, drops one trailing slash
// and any query string) before matching the supported formats:
//
//	t.me/channelName/123
//	t.me/channelName/123?single
//	t.me/c/channelId/123
//	t.me/c/channelId/1/123   (thread id in the middle, ignored)
//
// Returns an InvalidLinkFormat error when no format matches or the message
// id is not a positive integer.
func Parse(text string) (*Reference, error) {
	normalized := normalize(text)

	if m := privateThreadPattern.FindStringSubmatch(normalized); m != nil {
		return newReference(PrivateByID, m[1], m[3], normalized)
	}
	if m := privatePattern.FindStringSubmatch(normalized); m != nil {
		// A second marker segment means the link is malformed
		// (t.me/c/c/...), not a channel whose id is "c".
		if m[1] == privateMarker {
			return nil, errs.New(errs.InvalidLinkFormat,
				"malformed private link %q: expected t.me/c/channelId/messageId", normalized)
		}
		if !isNumeric(m[1]) {
			return nil, errs.New(errs.InvalidLinkFormat,
				"private link %q: channel id must be numeric", normalized)
		}
		return newReference(PrivateByID, m[1], m[2], normalized)
	}
	if m := publicPattern.FindStringSubmatch(normalized); m != nil {
		if m[1] == privateMarker {
			return nil, errs.New(errs.InvalidLinkFormat,
				"malformed private link %q: missing message id", normalized)
		}
		return newReference(Public, m[1], m[2], normalized)
	}

	return nil, errs.New(errs.InvalidLinkFormat,
		"unrecognized link %q: supported formats are t.me/channelName/123, t.me/c/channelId/123 and t.me/c/channelId/1/123", normalized)
}

func newReference(kind ReferenceKind, identifier, rawID, normalized string) (*Reference, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return nil, errs.New(errs.InvalidLinkFormat,
			"link %q: message id %q is not a positive integer", normalized, rawID)
	}
	return &Reference{Kind: kind, ChannelIdentifier: identifier, MessageID: id}, nil
}

func normalize(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, "/")
	return s
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
