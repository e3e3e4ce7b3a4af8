// Package tgclient defines the session-client abstraction the download
// pipeline is built on, together with the data model that crosses it. The
// interface allows both the real TDLib implementation and mock
// implementations for testing.
package tgclient

import "context"

// Peer is an addressable handle to a channel, group or direct conversation.
// It is valid for the duration of one request only.
type Peer struct {
	ID       int64
	Username string
	Title    string
}

// MediaKind enumerates the directly-attached payload kinds the downloader
// recognizes.
type MediaKind int

const (
	KindPhoto MediaKind = iota
	KindDocument
	KindVideo
	KindAudio
	KindVoice
	KindVideoNote
	KindSticker
	KindAnimation
)

func (k MediaKind) String() string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindDocument:
		return "document"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindVoice:
		return "voice"
	case KindVideoNote:
		return "video_note"
	case KindSticker:
		return "sticker"
	case KindAnimation:
		return "animation"
	default:
		return "unknown"
	}
}

// Media describes a message's directly-attached payload. Size is a hint and
// may be zero when the platform does not report one.
type Media struct {
	Kind     MediaKind
	FileID   int32
	Size     int64
	MimeType string
	FileName string
}

// Message is a read-only platform message. ID is the link-visible message
// id, not any client-internal representation. Media is nil when the message
// carries no recognized direct payload; ContentType then records the raw
// payload type for diagnostics. ReplyMediaOnly marks messages whose media is
// reachable only through a reply or forward reference.
type Message struct {
	ID             int64
	ChatID         int64
	Date           int64
	Text           string
	Media          *Media
	ContentType    string
	ReplyMediaOnly bool
}

// ProgressFunc receives transfer progress. total is zero when unknown.
type ProgressFunc func(received, total int64)

// DownloadOptions control a single media transfer.
type DownloadOptions struct {
	OutputPath string
	OnProgress ProgressFunc
}

// Client is the long-lived authenticated session this system drives. The
// real implementation wraps TDLib; tests substitute mocks. Implementations
// serialize remote calls internally, so callers do not add locking of their
// own around a shared Client.
type Client interface {
	// Connect establishes (or re-establishes) the session. It is a no-op
	// when the client is already connected.
	Connect(ctx context.Context) error

	// Disconnect tears the session down.
	Disconnect() error

	// IsConnected reports the client's own connectivity flag.
	IsConnected() bool

	// CheckAuthorization performs a lightweight identity check against
	// the platform, used as the keep-alive probe.
	CheckAuthorization(ctx context.Context) error

	// ResolveEntity resolves a username or a numeric id string (raw,
	// negated or marker-prefixed) to a peer.
	ResolveEntity(ctx context.Context, identifier string) (*Peer, error)

	// ListRecentConversations returns up to limit entries from the
	// session's recent conversation list.
	ListRecentConversations(ctx context.Context, limit int) ([]*Peer, error)

	// GetMessageByID fetches one message by its link-visible id. A miss
	// reported by the platform returns (nil, nil); errors are remote
	// failures.
	GetMessageByID(ctx context.Context, peer *Peer, messageID int64) (*Message, error)

	// GetRecentMessages returns up to limit of the peer's most recent
	// messages, newest first.
	GetRecentMessages(ctx context.Context, peer *Peer, limit int) ([]*Message, error)

	// DownloadMedia streams the message's media into opts.OutputPath,
	// reporting progress through opts.OnProgress.
	DownloadMedia(ctx context.Context, msg *Message, opts DownloadOptions) error
}
