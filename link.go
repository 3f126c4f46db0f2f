package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/lorasend/radio"
)

// Link keeps a radio session open. When a session dies it logs why and
// starts a new one after ReconnectInterval.
type Link struct {
	Config            radio.Config
	ReconnectInterval time.Duration
	Logger            *slog.Logger
	// OnReady is called every time a new session becomes ready.
	OnReady func(*radio.Session)

	mu      sync.Mutex
	session *radio.Session

	readyOnce sync.Once
	ready     chan struct{}
}

// Run opens sessions until ctx is canceled. It always returns nil; a radio
// that cannot be opened is retried forever.
func (l *Link) Run(ctx context.Context) error {
	for {
		s, err := radio.New(ctx, l.Config)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.Logger.Error("Failed to start radio session", "error", err)
		} else {
			l.setSession(s)
			l.Logger.Info("Radio session ready", "radio", s)
			if l.OnReady != nil {
				l.OnReady(s)
			}

			select {
			case <-ctx.Done():
				if err := s.Close(); err != nil && !errors.Is(err, radio.ErrAlreadyClosed) {
					l.Logger.Error("Failed to close radio", "error", err)
				}
				return nil
			case <-s.Done():
				l.logLoss(s)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.ReconnectInterval):
		}
	}
}

func (l *Link) logLoss(s *radio.Session) {
	err := s.Err()
	attrs := []any{"error", err, "radio", s}

	var pe *radio.PartialTransmitError
	if errors.As(err, &pe) {
		attrs = append(attrs,
			"step", pe.Step,
			"command", pe.Command,
			"last_response", pe.LastResponse,
			"pin_asserted", pe.PinAsserted,
		)
	}
	l.Logger.Error("Radio session lost", attrs...)
}

func (l *Link) setSession(s *radio.Session) {
	l.mu.Lock()
	l.session = s
	l.mu.Unlock()
	l.readyOnce.Do(func() { close(l.readyChan()) })
}

func (l *Link) current() *radio.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

func (l *Link) readyChan() chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready == nil {
		l.ready = make(chan struct{})
	}
	return l.ready
}

// Ready is closed once the first session is up.
func (l *Link) Ready() <-chan struct{} {
	return l.readyChan()
}

// Transmit sends payload on the current session.
func (l *Link) Transmit(payload []byte) (uint64, error) {
	s := l.current()
	if s == nil {
		return 0, radio.ErrDisconnected
	}
	return s.Transmit(payload)
}

// Snapshot reports the current session, or a disconnected one before the
// first session came up.
func (l *Link) Snapshot() radio.Snapshot {
	s := l.current()
	if s == nil {
		return radio.Snapshot{State: radio.StateDisconnected.String()}
	}
	return s.Snapshot()
}
