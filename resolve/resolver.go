// Package resolve turns a parsed channel reference into a concrete peer
// handle through an ordered cascade of resolution strategies.
package resolve

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/Sbillxx/telegrabber/errs"
	"github.com/Sbillxx/telegrabber/link"
	"github.com/Sbillxx/telegrabber/tgclient"
)

// SupergroupMarker is the numeric prefix Telegram uses to address channel
// and supergroup chats.
const SupergroupMarker = "-100"

// DialogScanLimit bounds how many recent conversations the membership scan
// inspects.
const DialogScanLimit = 500

// Resolver resolves channel references against the shared session client.
type Resolver struct {
	client tgclient.Client
}

// NewResolver creates a resolver on the shared client.
func NewResolver(c tgclient.Client) *Resolver {
	return &Resolver{client: c}
}

// Resolve maps a reference to a peer. It fails immediately with
// ClientNotConnected when the session is down; otherwise private references
// walk the strategy cascade and public references resolve directly, with
// one -100 retry for bare numeric identifiers.
func (r *Resolver) Resolve(ctx context.Context, ref *link.Reference) (*tgclient.Peer, error) {
	if !r.client.IsConnected() {
		return nil, errs.New(errs.ClientNotConnected, "telegram client is not connected")
	}

	if ref.Kind == link.PrivateByID {
		return r.resolvePrivate(ctx, ref.ChannelIdentifier)
	}
	return r.resolvePublic(ctx, ref.ChannelIdentifier)
}

// resolvePrivate tries, in order: the membership scan of the recent
// conversation list, then direct resolution by the -100-prefixed id, the
// negated id, and the raw id. The scan goes first because direct resolution
// by raw id routinely fails for a participant who never exchanged an access
// credential for the conversation out-of-band; the already-joined list
// needs no such credential. Remote errors inside a strategy are swallowed
// and the cascade moves on.
func (r *Resolver) resolvePrivate(ctx context.Context, channelID string) (*tgclient.Peer, error) {
	if peer := r.scanDialogs(ctx, channelID); peer != nil {
		return peer, nil
	}

	for _, identifier := range []string{
		SupergroupMarker + channelID,
		"-" + channelID,
		channelID,
	} {
		peer, err := r.client.ResolveEntity(ctx, identifier)
		if err != nil {
			log.Debug().Err(err).Str("identifier", identifier).Msg("Direct resolution failed, trying next strategy")
			continue
		}
		log.Info().Str("identifier", identifier).Str("title", peer.Title).Msg("Channel resolved directly")
		return peer, nil
	}

	return nil, errs.New(errs.PeerUnreachable,
		"cannot access private channel %s: make sure this account is a member of the channel, has opened it at least once, and can read its messages", channelID)
}

// scanDialogs looks for the target channel in the session's recent
// conversation list, matching the id under any of its representations.
func (r *Resolver) scanDialogs(ctx context.Context, channelID string) *tgclient.Peer {
	peers, err := r.client.ListRecentConversations(ctx, DialogScanLimit)
	if err != nil {
		log.Debug().Err(err).Msg("Dialog scan failed, falling back to direct resolution")
		return nil
	}

	targets := idRepresentations(channelID)
	for _, peer := range peers {
		if _, ok := targets[peer.ID]; ok {
			log.Info().Int64("peer_id", peer.ID).Str("title", peer.Title).Msg("Channel found in recent conversations")
			return peer
		}
	}
	return nil
}

// idRepresentations returns the numeric forms a private channel id can take
// in the conversation list: raw, marker-prefixed and negated.
func idRepresentations(channelID string) map[int64]struct{} {
	targets := make(map[int64]struct{}, 3)
	if raw, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		targets[raw] = struct{}{}
		targets[-raw] = struct{}{}
	}
	if full, err := strconv.ParseInt(SupergroupMarker+channelID, 10, 64); err == nil {
		targets[full] = struct{}{}
	}
	return targets
}

// resolvePublic resolves a username directly; bare numeric identifiers get
// one retry with the supergroup marker prefix.
func (r *Resolver) resolvePublic(ctx context.Context, identifier string) (*tgclient.Peer, error) {
	peer, err := r.client.ResolveEntity(ctx, identifier)
	if err == nil {
		return peer, nil
	}

	if isNumeric(identifier) {
		if peer, retryErr := r.client.ResolveEntity(ctx, SupergroupMarker+identifier); retryErr == nil {
			return peer, nil
		}
		return nil, errs.Wrap(errs.PeerUnreachable, err, "cannot access channel with id %s", identifier)
	}
	return nil, errs.Wrap(errs.PeerUnreachable, err, "cannot access channel @%s: it may not exist or may be private", identifier)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' {
		start = 1
	}
	if start == len(s) {
		return false
	}
	for i := start; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
