// Package fetch retrieves the target message from a resolved peer.
package fetch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Sbillxx/telegrabber/errs"
	"github.com/Sbillxx/telegrabber/tgclient"
)

// RecentScanLimit bounds the fallback scan over the peer's newest messages.
const RecentScanLimit = 100

// Fetcher retrieves messages by id from the shared session client.
type Fetcher struct {
	client tgclient.Client
}

// NewFetcher creates a fetcher on the shared client.
func NewFetcher(c tgclient.Client) *Fetcher {
	return &Fetcher{client: c}
}

// Fetch returns the message with the given id. The exact-id lookup is tried
// first; ids can silently miss for certain peer/message combinations, so an
// empty result falls back to scanning the most recent batch. Only after
// both strategies miss does it fail with MessageNotFound.
func (f *Fetcher) Fetch(ctx context.Context, peer *tgclient.Peer, messageID int64) (*tgclient.Message, error) {
	msg, err := f.client.GetMessageByID(ctx, peer, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", messageID, err)
	}
	if msg != nil {
		return msg, nil
	}

	log.Debug().Int64("message_id", messageID).Int64("peer_id", peer.ID).
		Msg("Message not found by id, scanning recent messages")

	recent, err := f.client.GetRecentMessages(ctx, peer, RecentScanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan recent messages: %w", err)
	}
	for _, candidate := range recent {
		if candidate.ID == messageID {
			log.Debug().Int64("message_id", messageID).Msg("Message found by manual scan")
			return candidate, nil
		}
	}

	return nil, errs.New(errs.MessageNotFound, "message %d not found in channel %q", messageID, peer.Title)
}
