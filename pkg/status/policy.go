package status

import (
	"fmt"
	"time"
)

// ReconnectPolicy bounds automatic recovery of the status connection
type ReconnectPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultReconnectPolicy allows 5 reconnects, 5 seconds apart
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		Delay:       5 * time.Second,
	}
}

// Allows reports whether another automatic reconnect may follow attempts
// already made
func (p ReconnectPolicy) Allows(attempts int) bool {
	return attempts < p.MaxAttempts
}

// Status texts set by the channel itself
const (
	ConnectedNotice = "Connected to status updates."
	ErrorNotice     = "Status connection error."
	GiveUpNotice    = "Status connection lost. Please refresh to reconnect."
)

// ReconnectingNotice is shown while a reconnect is scheduled
func ReconnectingNotice(attempt int, p ReconnectPolicy) string {
	return fmt.Sprintf("Status connection lost. Reconnecting in %s (attempt %d/%d)...", p.Delay, attempt, p.MaxAttempts)
}
