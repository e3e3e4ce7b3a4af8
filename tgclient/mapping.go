package tgclient

import (
	"io"
	"os"

	"github.com/zelenin/go-tdlib/client"
)

func chatToPeer(chat *client.Chat) *Peer {
	return &Peer{ID: chat.Id, Title: chat.Title}
}

// mapMessage converts a TDLib message to the pipeline's model. The exposed
// id is the link-visible server id, recovered from TDLib's internal
// representation.
func mapMessage(msg *client.Message) *Message {
	out := &Message{
		ID:     msg.Id >> messageIDShift,
		ChatID: msg.ChatId,
		Date:   int64(msg.Date),
	}
	if msg.Content == nil {
		return out
	}
	out.ContentType = msg.Content.MessageContentType()

	switch content := msg.Content.(type) {
	case *client.MessageText:
		if content.Text != nil {
			out.Text = content.Text.Text
		}
		// Text replying to another message: any media lives on the
		// origin message, not here.
		out.ReplyMediaOnly = msg.ReplyTo != nil

	case *client.MessagePhoto:
		if content.Caption != nil {
			out.Text = content.Caption.Text
		}
		if content.Photo != nil && len(content.Photo.Sizes) > 0 {
			// Sizes are ordered smallest first; download the largest.
			largest := content.Photo.Sizes[len(content.Photo.Sizes)-1]
			if largest.Photo != nil {
				out.Media = &Media{
					Kind:     KindPhoto,
					FileID:   largest.Photo.Id,
					Size:     fileSize(largest.Photo),
					MimeType: "image/jpeg",
				}
			}
		}

	case *client.MessageDocument:
		if content.Caption != nil {
			out.Text = content.Caption.Text
		}
		if content.Document != nil && content.Document.Document != nil {
			out.Media = &Media{
				Kind:     KindDocument,
				FileID:   content.Document.Document.Id,
				Size:     fileSize(content.Document.Document),
				MimeType: content.Document.MimeType,
				FileName: content.Document.FileName,
			}
		}

	case *client.MessageVideo:
		if content.Caption != nil {
			out.Text = content.Caption.Text
		}
		if content.Video != nil && content.Video.Video != nil {
			out.Media = &Media{
				Kind:     KindVideo,
				FileID:   content.Video.Video.Id,
				Size:     fileSize(content.Video.Video),
				MimeType: content.Video.MimeType,
				FileName: content.Video.FileName,
			}
		}

	case *client.MessageAudio:
		if content.Caption != nil {
			out.Text = content.Caption.Text
		}
		if content.Audio != nil && content.Audio.Audio != nil {
			out.Media = &Media{
				Kind:     KindAudio,
				FileID:   content.Audio.Audio.Id,
				Size:     fileSize(content.Audio.Audio),
				MimeType: content.Audio.MimeType,
				FileName: content.Audio.FileName,
			}
		}

	case *client.MessageVoiceNote:
		if content.Caption != nil {
			out.Text = content.Caption.Text
		}
		if content.VoiceNote != nil && content.VoiceNote.Voice != nil {
			out.Media = &Media{
				Kind:     KindVoice,
				FileID:   content.VoiceNote.Voice.Id,
				Size:     fileSize(content.VoiceNote.Voice),
				MimeType: content.VoiceNote.MimeType,
			}
		}

	case *client.MessageVideoNote:
		if content.VideoNote != nil && content.VideoNote.Video != nil {
			out.Media = &Media{
				Kind:   KindVideoNote,
				FileID: content.VideoNote.Video.Id,
				Size:   fileSize(content.VideoNote.Video),
			}
		}

	case *client.MessageSticker:
		if content.Sticker != nil && content.Sticker.Sticker != nil {
			out.Media = &Media{
				Kind:     KindSticker,
				FileID:   content.Sticker.Sticker.Id,
				Size:     fileSize(content.Sticker.Sticker),
				MimeType: "image/webp",
			}
		}

	case *client.MessageAnimation:
		if content.Caption != nil {
			out.Text = content.Caption.Text
		}
		if content.Animation != nil && content.Animation.Animation != nil {
			out.Media = &Media{
				Kind:     KindAnimation,
				FileID:   content.Animation.Animation.Id,
				Size:     fileSize(content.Animation.Animation),
				MimeType: content.Animation.MimeType,
				FileName: content.Animation.FileName,
			}
		}
	}

	return out
}

func fileSize(f *client.File) int64 {
	if f.Size > 0 {
		return f.Size
	}
	return f.ExpectedSize
}

// moveFile relocates TDLib's completed download to the requested output
// path. Rename is attempted first; a cross-device copy is the fallback.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
