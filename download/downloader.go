// Package download performs the media transfer with bounded retries and
// safe partial-file handling.
package download

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/Sbillxx/telegrabber/conn"
	"github.com/Sbillxx/telegrabber/errs"
	"github.com/Sbillxx/telegrabber/media"
	"github.com/Sbillxx/telegrabber/progress"
	"github.com/Sbillxx/telegrabber/tgclient"
)

const (
	// MaxAttempts bounds the retry loop for one transfer.
	MaxAttempts = 5

	// retryDelay is the fixed pause before a connection-class retry.
	retryDelay = 2 * time.Second
)

// Downloader runs resilient transfers against the shared session client.
// Connection-class failures reconnect and retry locally instead of waiting
// on the background keeper, whose probe interval is far too coarse for an
// active transfer.
type Downloader struct {
	client       tgclient.Client
	health       *conn.Health
	maxAttempts  int
	retryDelay   time.Duration
	progressSink io.Writer
}

// NewDownloader creates a downloader with the default retry policy,
// reporting progress to stderr.
func NewDownloader(c tgclient.Client, health *conn.Health) *Downloader {
	return &Downloader{
		client:       c,
		health:       health,
		maxAttempts:  MaxAttempts,
		retryDelay:   retryDelay,
		progressSink: os.Stderr,
	}
}

// Download transfers the message's media into outputPath and returns the
// path. Unrecognized payloads fail fast before any transfer attempt.
// Connection-class failures are retried up to the attempt cap with a
// reconnect in between; any other failure aborts immediately and propagates
// unchanged. Partial files are never discarded between attempts: the client
// may resume from them, and on unrecoverable failure a non-empty artifact
// is preserved for manual recovery.
func (d *Downloader) Download(ctx context.Context, msg *tgclient.Message, outputPath string) (string, error) {
	m, err := media.Inspect(msg)
	if err != nil {
		return "", err
	}

	if m.Size > 0 {
		log.Info().Str("size", humanize.IBytes(uint64(m.Size))).
			Str("kind", m.Kind.String()).Int64("message_id", msg.ID).Msg("Starting download")
	} else {
		log.Info().Str("kind", m.Kind.String()).Int64("message_id", msg.ID).
			Msg("Starting download, size unknown")
	}

	tracker := progress.NewTracker(d.progressSink, m.Size)
	defer tracker.Finish()

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			log.Warn().Int("attempt", attempt).Int("max_attempts", d.maxAttempts).
				Msg("Retrying download")
			select {
			case <-ctx.Done():
				d.preserveOrRemove(outputPath)
				return "", ctx.Err()
			case <-time.After(d.retryDelay):
			}
			if !d.client.IsConnected() {
				if err := d.health.TryReconnect(ctx, d.client); err != nil {
					log.Warn().Err(err).Msg("Reconnect before retry failed")
				}
			}
		}

		err := d.client.DownloadMedia(ctx, msg, tgclient.DownloadOptions{
			OutputPath: outputPath,
			OnProgress: tracker.Callback(),
		})
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err

		if !IsConnectionError(err) {
			// Not retryable: propagate as-is, keeping any partial.
			d.preserveOrRemove(outputPath)
			return "", err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Connection-class download failure")
	}

	if lastErr != nil {
		d.preserveOrRemove(outputPath)
		return "", errs.Wrap(errs.DownloadFailed, lastErr,
			"download failed after %d attempts", d.maxAttempts)
	}

	return d.verify(outputPath, msg.ID)
}

// verify confirms the completed transfer produced a non-empty file.
func (d *Downloader) verify(outputPath string, messageID int64) (string, error) {
	info, err := os.Stat(outputPath)
	if err != nil {
		return "", errs.Wrap(errs.DownloadFailed, err,
			"transfer reported success but produced no file for message %d", messageID)
	}
	if info.Size() == 0 {
		os.Remove(outputPath)
		return "", errs.New(errs.EmptyMediaPayload, "downloaded file for message %d is empty", messageID)
	}
	log.Info().Str("path", outputPath).Str("size", humanize.IBytes(uint64(info.Size()))).
		Msg("Download completed")
	return outputPath, nil
}

// preserveOrRemove keeps a non-empty partial artifact for a later attempt
// or manual inspection, and removes a zero-byte or absent one.
func (d *Downloader) preserveOrRemove(outputPath string) {
	info, err := os.Stat(outputPath)
	if err != nil {
		return
	}
	if info.Size() == 0 {
		os.Remove(outputPath)
		return
	}
	log.Info().Str("path", outputPath).Str("size", humanize.IBytes(uint64(info.Size()))).
		Msg("Keeping partial file for a future attempt")
}

// IsConnectionError reports whether the error text indicates a
// connection-class failure worth retrying.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range []string{
		"disconnect", "connection", "timeout", "timed out",
		"econnreset", "reset", "etimedout", "broken pipe",
	} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
