// Package engine provides playback engines that render a track URI.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrNotPlaying = errors.New("engine: not playing")
	ErrNotPaused  = errors.New("engine: not paused")
	ErrEmptyURI   = errors.New("engine: empty uri")
)

type state int

const (
	stateIdle state = iota
	statePlaying
	statePaused
)

// TimerEngine renders nothing: it plays a URI for the track duration using
// wall-clock timers and reports the end of the track. It stands in for an
// audio pipeline on headless hosts and in tests.
type TimerEngine struct {
	mu sync.Mutex

	tick      time.Duration
	uri       string
	total     time.Duration
	remaining time.Duration
	startedAt time.Time
	state     state
	onEnd     func()

	cancel     func()
	generation uint64
}

// NewTimerEngine creates an engine whose clock is checked every tick.
func NewTimerEngine(tick time.Duration) *TimerEngine {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &TimerEngine{tick: tick}
}

// Play starts rendering uri, replacing whatever was playing. onEnd is
// called once from another goroutine when the track runs out; it is not
// called for tracks that were stopped or replaced.
func (e *TimerEngine) Play(ctx context.Context, uri string, duration time.Duration, onEnd func()) error {
	if uri == "" {
		return ErrEmptyURI
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "engine: play cancelled")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	e.uri = uri
	e.total = duration
	e.remaining = duration
	e.onEnd = onEnd
	e.state = statePlaying
	e.scheduleLocked()

	zlog.Debug().Msgf("engine: playing uri=%s duration=%v", uri, duration)
	return nil
}

// Pause suspends the current track, keeping its remaining time.
func (e *TimerEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != statePlaying {
		return ErrNotPlaying
	}
	e.cancelLocked()
	e.remaining -= toWallTime(time.Now()).Sub(e.startedAt)
	if e.remaining < 0 {
		e.remaining = 0
	}
	e.state = statePaused
	zlog.Debug().Msgf("engine: paused uri=%s remaining=%v", e.uri, e.remaining)
	return nil
}

// Resume continues a paused track.
func (e *TimerEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != statePaused {
		return ErrNotPaused
	}
	e.state = statePlaying
	e.scheduleLocked()
	zlog.Debug().Msgf("engine: resumed uri=%s remaining=%v", e.uri, e.remaining)
	return nil
}

// Stop ends playback without reporting the end of the track.
func (e *TimerEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	return nil
}

// Progress returns the current URI, the elapsed time and the total time.
func (e *TimerEngine) Progress() (string, time.Duration, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remaining := e.remaining
	if e.state == statePlaying {
		remaining -= toWallTime(time.Now()).Sub(e.startedAt)
	}
	if remaining < 0 {
		remaining = 0
	}
	if e.state == stateIdle {
		return "", 0, 0
	}
	return e.uri, e.total - remaining, e.total
}

func (e *TimerEngine) stopLocked() {
	e.cancelLocked()
	e.state = stateIdle
	e.uri = ""
	e.onEnd = nil
	e.total = 0
	e.remaining = 0
}

func (e *TimerEngine) cancelLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.generation++
}

// scheduleLocked arms the end-of-track timer for the remaining time.
func (e *TimerEngine) scheduleLocked() {
	e.generation++
	gen := e.generation
	e.startedAt = toWallTime(time.Now())
	e.cancel = e.startWallClockTimer(e.remaining, func() {
		e.mu.Lock()
		if gen != e.generation || e.state != statePlaying {
			e.mu.Unlock()
			return
		}
		onEnd := e.onEnd
		uri := e.uri
		e.cancel = nil
		e.stopLocked()
		e.mu.Unlock()

		zlog.Debug().Msgf("engine: track ended uri=%s", uri)
		if onEnd != nil {
			onEnd()
		}
	})
}

// startWallClockTimer runs callback after duration measured on the wall
// clock. Returns a cancel function.
func (e *TimerEngine) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())
	endTime := toWallTime(time.Now()).Add(duration)

	go func() {
		ticker := time.NewTicker(e.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime strips the monotonic reading so differences follow the wall
// clock.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
