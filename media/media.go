// Package media inspects message payloads and names output files.
package media

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Sbillxx/telegrabber/errs"
	"github.com/Sbillxx/telegrabber/tgclient"
)

// Inspect checks that the message carries directly-attached, recognized
// media and returns it. Media reachable only through a reply or forward
// reference is refused: downloading it would require resolving a different
// origin message, so the user is asked to use that message's link instead.
func Inspect(msg *tgclient.Message) (*tgclient.Media, error) {
	if msg.Media != nil {
		return msg.Media, nil
	}
	if msg.ReplyMediaOnly {
		return nil, errs.New(errs.MediaUnavailable,
			"media is attached to the replied-to message; use the original message's link")
	}
	switch msg.ContentType {
	case "", "messageText":
		return nil, errs.New(errs.MediaUnavailable,
			"message %d does not contain media; it may be text only", msg.ID)
	default:
		return nil, errs.New(errs.UnsupportedMediaType,
			"unsupported media type %q: supported kinds are photo, document, video, audio, voice, video note, sticker and animation", msg.ContentType)
	}
}

// SizeHint returns the platform-reported byte size of the message's media,
// or zero when unknown.
func SizeHint(msg *tgclient.Message) int64 {
	if msg.Media == nil {
		return 0
	}
	return msg.Media.Size
}

// OutputFileName builds a unique output name for the message's media:
// media_<messageID>_<shortUUID>.<ext>. The extension comes from the
// original file name when present, otherwise from the MIME type or the
// media kind.
func OutputFileName(msg *tgclient.Message) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("media_%d_%s.%s", msg.ID, suffix, extension(msg.Media))
}

func extension(m *tgclient.Media) string {
	if m == nil {
		return "bin"
	}
	if m.FileName != "" {
		if i := strings.LastIndexByte(m.FileName, '.'); i >= 0 && i < len(m.FileName)-1 {
			return strings.ToLower(m.FileName[i+1:])
		}
	}
	if m.MimeType != "" {
		if ext := mimeExtension(m.MimeType); ext != "" {
			return ext
		}
	}
	switch m.Kind {
	case tgclient.KindPhoto:
		return "jpg"
	case tgclient.KindVideo, tgclient.KindVideoNote:
		return "mp4"
	case tgclient.KindAudio:
		return "mp3"
	case tgclient.KindVoice:
		return "ogg"
	case tgclient.KindSticker:
		return "webp"
	case tgclient.KindAnimation:
		return "gif"
	default:
		return "bin"
	}
}

// mimeExtension maps a MIME type's subtype to a file extension, with the
// usual normalizations for container formats.
func mimeExtension(mimeType string) string {
	parts := strings.SplitN(mimeType, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	switch sub := strings.ToLower(parts[1]); sub {
	case "x-matroska":
		return "mkv"
	case "quicktime":
		return "mov"
	case "mpeg":
		if strings.HasPrefix(mimeType, "audio/") {
			return "mp3"
		}
		return "mpg"
	case "jpeg":
		return "jpg"
	case "svg+xml":
		return "svg"
	case "octet-stream":
		return ""
	default:
		return sub
	}
}
