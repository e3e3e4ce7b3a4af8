// Package conn maintains the shared session's liveness: a process-wide
// health record and a background keep-alive/reconnect state machine.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Sbillxx/telegrabber/tgclient"
)

// State is the connection lifecycle state.
type State int

const (
	// Idle is the state before the first successful connect.
	Idle State = iota

	// Connected means the periodic probe is passing.
	Connected

	// Reconnecting means reconnect attempts are in flight.
	Reconnecting

	// Exhausted is terminal: the attempt cap was hit and automatic
	// recovery has stopped. Only a process restart leaves this state.
	Exhausted
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Exhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

// ErrExhausted is returned once the reconnect attempt cap is reached.
var ErrExhausted = errors.New("reconnect attempts exhausted, restart required")

// Health is the process-wide connection health record. It is the single
// mutation point for the reconnect-attempt counter: every reconnect
// decision, whether from the background keeper or from an in-flight
// download, goes through TryReconnect under one mutex so two concurrent
// attempts can never race on the counter.
type Health struct {
	mu          sync.Mutex
	state       State
	attempts    int
	maxAttempts int
}

// NewHealth creates an Idle health record with the given attempt cap.
func NewHealth(maxAttempts int) *Health {
	return &Health{maxAttempts: maxAttempts}
}

// State returns the current lifecycle state.
func (h *Health) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Attempts returns the current consecutive-failure count.
func (h *Health) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

// MarkConnected records a successful connect or probe: the attempt counter
// resets and the state returns to Connected.
func (h *Health) MarkConnected() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = Connected
	h.attempts = 0
}

// TryReconnect performs one reconnect attempt. It is a no-op when the
// client already reports itself connected, making concurrent calls from the
// keeper and an active download safe. Once the attempt cap is reached the
// state becomes Exhausted and every further call returns ErrExhausted.
func (h *Health) TryReconnect(ctx context.Context, c tgclient.Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.IsConnected() {
		h.state = Connected
		h.attempts = 0
		return nil
	}
	if h.state == Exhausted || h.attempts >= h.maxAttempts {
		h.state = Exhausted
		return ErrExhausted
	}

	h.attempts++
	h.state = Reconnecting
	attempt := h.attempts
	log.Info().Int("attempt", attempt).Int("max_attempts", h.maxAttempts).Msg("Attempting to reconnect")

	if err := c.Connect(ctx); err != nil {
		if h.attempts >= h.maxAttempts {
			h.state = Exhausted
			log.Error().Int("max_attempts", h.maxAttempts).Msg("Max reconnect attempts reached, restart required")
		}
		return fmt.Errorf("reconnect attempt %d/%d failed: %w", attempt, h.maxAttempts, err)
	}

	h.state = Connected
	h.attempts = 0
	log.Info().Msg("Reconnected successfully")
	return nil
}
