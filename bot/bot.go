// Package bot is the Telegram bot front end for the download pipeline.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/Sbillxx/telegrabber/grab"
)

const (
	// uploadLimit is the Bot API ceiling for document uploads. Larger
	// files are reported by server-side path instead.
	uploadLimit = 50 * 1024 * 1024

	// largeWarningThreshold triggers a heads-up before slow transfers.
	largeWarningThreshold = 1 << 30
)

const welcomeText = `Send me a Telegram message link and I will download its media.

Supported links:
  https://t.me/channel/123
  https://t.me/c/1234567890/123

Commands:
  /get - prompt for a link
  /start - this message`

// sender is the slice of the Bot API the handlers use, mocked in tests.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot polls updates and turns message links into downloads.
type Bot struct {
	api     *tgbotapi.BotAPI
	send    sender
	grabber grab.Grabber

	mu      sync.Mutex
	waiting map[int64]bool
}

// New creates a bot from a Bot API token.
func New(token string, grabber grab.Grabber) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("bot authorization failed: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("Bot authorized")
	return &Bot{
		api:     api,
		send:    api,
		grabber: grabber,
		waiting: make(map[int64]bool),
	}, nil
}

// Run polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch {
	case msg.IsCommand() && msg.Command() == "start":
		b.setWaiting(chatID, false)
		b.reply(chatID, welcomeText)
	case msg.IsCommand() && msg.Command() == "get":
		b.setWaiting(chatID, true)
		b.reply(chatID, "Send me the message link.")
	case msg.IsCommand():
		b.reply(chatID, "Unknown command. Use /get or /start.")
	case strings.Contains(text, "t.me/"):
		b.setWaiting(chatID, false)
		b.handleLink(ctx, chatID, text)
	case b.isWaiting(chatID):
		b.setWaiting(chatID, false)
		b.reply(chatID, "That does not look like a t.me link. Use /get to try again.")
	default:
		b.reply(chatID, "Send a t.me message link, or /start for help.")
	}
}

// handleLink runs the pipeline, keeping the user informed through edits of
// a single status message.
func (b *Bot) handleLink(ctx context.Context, chatID int64, text string) {
	status, err := b.send.Send(tgbotapi.NewMessage(chatID, "Looking up the message..."))
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send status message")
		return
	}

	loc, err := b.grabber.Locate(ctx, text)
	if err != nil {
		b.edit(chatID, status.MessageID, userFacing(err))
		return
	}

	b.edit(chatID, status.MessageID, downloadingText(loc.SizeHint))

	res, err := b.grabber.Download(ctx, loc)
	if err != nil {
		b.edit(chatID, status.MessageID, userFacing(err))
		return
	}

	if res.Size <= uploadLimit {
		b.edit(chatID, status.MessageID, "Uploading to Telegram...")
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(res.FilePath))
		if _, err := b.send.Send(doc); err != nil {
			log.Error().Err(err).Str("path", res.FilePath).Msg("Upload failed")
			b.edit(chatID, status.MessageID, resultText(res)+"\n\nUpload failed, the file stays on the server.")
			return
		}
		b.edit(chatID, status.MessageID, "Done.")
		return
	}

	b.edit(chatID, status.MessageID, resultText(res)+
		"\n\nThe file exceeds the 50 MiB bot upload limit, fetch it from the server.")
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.send.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	if _, err := b.send.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to edit status message")
	}
}

func (b *Bot) setWaiting(chatID int64, waiting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if waiting {
		b.waiting[chatID] = true
	} else {
		delete(b.waiting, chatID)
	}
}

func (b *Bot) isWaiting(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting[chatID]
}

// downloadingText includes a size warning for transfers that will take a
// while.
func downloadingText(sizeHint int64) string {
	if sizeHint >= largeWarningThreshold {
		return fmt.Sprintf("Downloading %s, this is a large file and may take a while...",
			humanize.IBytes(uint64(sizeHint)))
	}
	if sizeHint > 0 {
		return fmt.Sprintf("Downloading %s...", humanize.IBytes(uint64(sizeHint)))
	}
	return "Downloading..."
}

func resultText(res *grab.Result) string {
	return fmt.Sprintf("Saved %s (%s).", res.FileName, humanize.IBytes(uint64(res.Size)))
}

// userFacing strips internal detail down to a message a chat user can act
// on.
func userFacing(err error) string {
	return "Failed: " + err.Error()
}
