package queue

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// LoopMode governs how Next and Previous move through the queue.
type LoopMode int

const (
	Off       LoopMode = iota // Play in order once, no wraparound
	RepeatAll                 // Play in order, wrap at both ends
	RepeatOne                 // Keep replaying the current track
	Shuffle                   // Play in a random order, no wraparound
)

// String returns the name used in config files and the control API.
func (m LoopMode) String() string {
	switch m {
	case Off:
		return "none"
	case RepeatAll:
		return "loop"
	case RepeatOne:
		return "one"
	case Shuffle:
		return "shuffle"
	default:
		return "unknown"
	}
}

// ParseLoopMode converts a mode name to a LoopMode.
func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "":
		return Off, nil
	case "loop", "repeat_all", "all":
		return RepeatAll, nil
	case "one", "repeat_one", "single":
		return RepeatOne, nil
	case "shuffle", "random":
		return Shuffle, nil
	default:
		return Off, errors.Newf("unknown loop mode: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m LoopMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *LoopMode) UnmarshalText(text []byte) error {
	parsed, err := ParseLoopMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
