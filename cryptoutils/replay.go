package cryptoutils

import (
	"strconv"
	"time"
)

// DefaultReplayWindow bounds the accepted clock skew in either direction.
const DefaultReplayWindow = 60 * time.Second

// ReplayGuard rejects signed requests whose timestamp lies outside a
// symmetric window around the verifier's clock.
type ReplayGuard struct {
	Window time.Duration
}

// IsFresh reports whether timestamp, in epoch milliseconds, is within the
// window of now. Missing or non-numeric timestamps are never fresh.
func (g ReplayGuard) IsFresh(timestamp string, now time.Time) bool {
	if timestamp == "" {
		return false
	}
	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	window := g.Window
	if window <= 0 {
		window = DefaultReplayWindow
	}
	skew := now.Sub(time.UnixMilli(ms))
	return skew >= -window && skew <= window
}

// IsFresh applies DefaultReplayWindow.
func IsFresh(timestamp string, now time.Time) bool {
	return ReplayGuard{Window: DefaultReplayWindow}.IsFresh(timestamp, now)
}
