// Package grab wires link parsing, peer resolution, message fetching and
// the resilient download into the single operation both front ends expose.
package grab

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/Sbillxx/telegrabber/conn"
	"github.com/Sbillxx/telegrabber/download"
	"github.com/Sbillxx/telegrabber/errs"
	"github.com/Sbillxx/telegrabber/fetch"
	"github.com/Sbillxx/telegrabber/link"
	"github.com/Sbillxx/telegrabber/media"
	"github.com/Sbillxx/telegrabber/resolve"
	"github.com/Sbillxx/telegrabber/tgclient"
)

// Grabber is the download pipeline surface the HTTP server and the bot
// depend on. It keeps both front ends testable without a live session.
type Grabber interface {
	Locate(ctx context.Context, text string) (*Located, error)
	Download(ctx context.Context, loc *Located) (*Result, error)
	Grab(ctx context.Context, text string) (*Result, error)
}

// Located is a message that has been parsed, resolved and fetched but not
// yet downloaded. Front ends use it to warn about large transfers before
// committing to one.
type Located struct {
	Reference *link.Reference
	Peer      *tgclient.Peer
	Message   *tgclient.Message
	Media     *tgclient.Media

	// SizeHint is the expected payload size in bytes, zero when the
	// platform does not report one.
	SizeHint int64
}

// Result describes a completed download.
type Result struct {
	FilePath  string
	FileName  string
	MessageID int64
	Size      int64
}

// Service runs the full pipeline against one session client.
type Service struct {
	resolver     *resolve.Resolver
	fetcher      *fetch.Fetcher
	downloader   *download.Downloader
	downloadsDir string
}

// NewService creates the pipeline service, ensuring the downloads
// directory exists.
func NewService(c tgclient.Client, health *conn.Health, downloadsDir string) (*Service, error) {
	if err := os.MkdirAll(downloadsDir, 0o755); err != nil {
		return nil, err
	}
	return &Service{
		resolver:     resolve.NewResolver(c),
		fetcher:      fetch.NewFetcher(c),
		downloader:   download.NewDownloader(c, health),
		downloadsDir: downloadsDir,
	}, nil
}

// Locate parses the link, resolves its peer and fetches the target
// message, verifying it carries downloadable media.
func (s *Service) Locate(ctx context.Context, text string) (*Located, error) {
	ref, err := link.Parse(text)
	if err != nil {
		return nil, err
	}

	peer, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	log.Info().Str("channel", ref.ChannelIdentifier).Int64("peer_id", peer.ID).
		Int64("message_id", ref.MessageID).Msg("Resolved download target")

	msg, err := s.fetcher.Fetch(ctx, peer, ref.MessageID)
	if err != nil {
		return nil, err
	}

	m, err := media.Inspect(msg)
	if err != nil {
		return nil, err
	}

	return &Located{
		Reference: ref,
		Peer:      peer,
		Message:   msg,
		Media:     m,
		SizeHint:  media.SizeHint(msg),
	}, nil
}

// Download transfers a located message's media into the downloads
// directory.
func (s *Service) Download(ctx context.Context, loc *Located) (*Result, error) {
	fileName := media.OutputFileName(loc.Message)
	outputPath := filepath.Join(s.downloadsDir, fileName)

	path, err := s.downloader.Download(ctx, loc.Message, outputPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.Wrap(errs.DownloadFailed, err, "downloaded file vanished: %s", path)
	}

	return &Result{
		FilePath:  path,
		FileName:  fileName,
		MessageID: loc.Message.ID,
		Size:      info.Size(),
	}, nil
}

// Grab is Locate followed by Download.
func (s *Service) Grab(ctx context.Context, text string) (*Result, error) {
	loc, err := s.Locate(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.Download(ctx, loc)
}
