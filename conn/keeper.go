package conn

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sbillxx/telegrabber/tgclient"
)

const (
	// DefaultProbeInterval spaces the keep-alive identity checks.
	DefaultProbeInterval = 3 * time.Minute

	// DefaultBaseDelay seeds the reconnect backoff; it doubles per failed
	// attempt up to DefaultMaxDelay.
	DefaultBaseDelay = 1 * time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// Keeper runs the background keep-alive probe and drives reconnection when
// the probe finds the session down. It runs independently of any in-flight
// request; downloads that hit a connection failure perform their own
// reconnect through the shared Health record rather than waiting for the
// next probe tick.
type Keeper struct {
	client        tgclient.Client
	health        *Health
	probeInterval time.Duration
	baseDelay     time.Duration
	maxDelay      time.Duration
}

// NewKeeper creates a keeper for the shared client. Zero durations take the
// package defaults.
func NewKeeper(c tgclient.Client, health *Health, probeInterval time.Duration) *Keeper {
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	return &Keeper{
		client:        c,
		health:        health,
		probeInterval: probeInterval,
		baseDelay:     DefaultBaseDelay,
		maxDelay:      DefaultMaxDelay,
	}
}

// Run probes on the configured interval until the context is cancelled.
// Keeper failures are never surfaced to requests; they only drive the state
// machine and the log.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			k.Probe(ctx)
		}
	}
}

// Probe performs one keep-alive cycle: an identity check, and on failure
// with the client reporting disconnected, a bounded-backoff reconnect loop.
func (k *Keeper) Probe(ctx context.Context) {
	if k.health.State() == Exhausted {
		return
	}

	if err := k.client.CheckAuthorization(ctx); err != nil {
		if k.client.IsConnected() {
			// The transport is still up; treat the failed call as a
			// transient remote hiccup.
			log.Warn().Err(err).Msg("Keep-alive probe failed while still connected")
			return
		}
		log.Warn().Err(err).Msg("Connection lost, attempting to reconnect")
		k.reconnectWithBackoff(ctx)
		return
	}

	k.health.MarkConnected()
	log.Debug().Msg("Keep-alive probe successful")
}

func (k *Keeper) reconnectWithBackoff(ctx context.Context) {
	delay := k.baseDelay
	for {
		err := k.health.TryReconnect(ctx, k.client)
		if err == nil {
			return
		}
		if errors.Is(err, ErrExhausted) {
			return
		}
		log.Warn().Err(err).Dur("retry_in", delay).Msg("Reconnect failed, backing off")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > k.maxDelay {
			delay = k.maxDelay
		}
	}
}
