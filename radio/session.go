package radio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"i4.energy/across/lorasend/at"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateInitializing
	StateReady
	StateTransmitting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTransmitting:
		return "transmitting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionState holds the counters of one session.
type SessionState struct {
	// FrameCount is the number of completed transmissions.
	FrameCount uint64
	// ControlPinAsserted is the last pin level the session commanded.
	ControlPinAsserted bool
}

// RadioInfo is what the module reported about itself during startup. Fields
// stay empty when the module did not answer within the pacing window.
type RadioInfo struct {
	Version         string `json:"version,omitempty"`
	Modulation      string `json:"modulation,omitempty"`
	Frequency       string `json:"frequency,omitempty"`
	SpreadingFactor string `json:"spreading_factor,omitempty"`
}

// Snapshot is a consistent copy of the session status.
type Snapshot struct {
	State              string    `json:"state"`
	FrameCount         uint64    `json:"frame_count"`
	ControlPinAsserted bool      `json:"control_pin_asserted"`
	Info               RadioInfo `json:"info"`
	LastResponse       string    `json:"last_response,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// connection is the open link to the radio. The reader goroutine may mark it
// dead; everything else about the session is owned by the control side.
type connection struct {
	Transport

	mu      sync.Mutex
	live    bool
	lastErr error
	closed  bool
}

func (c *connection) markDead(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live {
		return
	}
	c.live = false
	c.lastErr = err
}

func (c *connection) status() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live, c.lastErr
}

// Close closes the transport once.
func (c *connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.live = false
	c.mu.Unlock()
	return c.Transport.Close()
}

// Session is a connected RN2483-style LoRa radio.
//
// New runs the startup sequence and returns a Ready session. Transmit sends
// one payload at a time; concurrent callers queue behind each other. Any
// transport failure, and any failed transmit step, moves the session to
// Disconnected for good. Reconnecting means calling New again.
type Session struct {
	config  Config
	logger  *slog.Logger
	conn    *connection
	channel *Channel

	// txMu serializes Transmit.
	txMu sync.Mutex

	mu           sync.Mutex
	state        State
	counters     SessionState
	info         RadioInfo
	lastResponse string
	err          error
	closed       bool

	done chan struct{}
}

// New dials the radio, starts the reader and runs the startup sequence:
// control pin low, version, modulation, frequency and spreading factor
// queries, mac pause, transmit power, control pin low again.
//
// Returns an error if the transport connection or any startup step fails;
// the transport is closed in that case.
func New(ctx context.Context, config Config) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial radio: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	logger := config.logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		config:  config,
		logger:  logger,
		conn:    &connection{Transport: transport, live: true},
		channel: NewChannel(transport, logger, config.ackTimeout),
		state:   StateInitializing,
		done:    make(chan struct{}),
	}
	logger.Debug("radio state", "state", StateInitializing.String())

	go s.readLoop()

	initCtx := ctx
	if config.initTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, config.initTimeout)
		defer cancel()
	}

	if err := s.init(initCtx); err != nil {
		s.disconnect(err)
		return nil, fmt.Errorf("initialize radio: %w", err)
	}

	return s, nil
}

// readLoop is the only goroutine reading from the transport. It classifies
// and logs lines and hands them to the channel queue; it never touches the
// session counters.
func (s *Session) readLoop() {
	for line, err := range at.Lines(s.conn) {
		if err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				err = ErrLineTooLong
			}
			s.readFailed(&TransportError{Err: fmt.Errorf("read: %w", err)})
			return
		}
		if line == "" {
			continue
		}

		resp := s.channel.Deliver(line)
		switch resp.Kind {
		case at.KindAck:
		case at.KindUnsolicited:
			s.logger.Info("RECV unsolicited", "line", resp.Text)
		default:
			s.logger.Info("RECV", "line", resp.Text, "kind", resp.Kind.String(), "command", resp.Command)
		}
	}
	s.readFailed(&TransportError{Err: fmt.Errorf("read: %w", io.EOF)})
}

func (s *Session) readFailed(err error) {
	if live, _ := s.conn.status(); !live {
		// We closed it ourselves.
		return
	}
	s.conn.markDead(err)
	s.disconnect(err)
}

// init issues the startup sequence. Info is captured from the Data lines
// correlated with each query.
func (s *Session) init(ctx context.Context) error {
	var info RadioInfo
	pinLow := at.PinDig(s.config.controlPin, false)

	steps := []struct {
		cmd     string
		capture *string
	}{
		{cmd: pinLow},
		{cmd: at.CmdVersion, capture: &info.Version},
		{cmd: at.CmdGetModulation, capture: &info.Modulation},
		{cmd: at.CmdGetFrequency, capture: &info.Frequency},
		{cmd: at.CmdGetSpreadFactor, capture: &info.SpreadingFactor},
		{cmd: at.CmdMacPause},
		{cmd: at.SetPower(s.config.txPower)},
		{cmd: pinLow},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("before %q: %w", step.cmd, err)
		}
		if err := s.exec(step.cmd); err != nil {
			return err
		}
		for _, line := range s.collect() {
			if line.Command != step.cmd {
				continue
			}
			if line.Kind == at.KindError {
				return &ProtocolError{Command: step.cmd, Response: line.Text}
			}
			if step.capture != nil && *step.capture == "" {
				*step.capture = line.Text
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return ErrDisconnected
	}
	s.info = info
	s.counters = SessionState{}
	s.state = StateReady
	s.logger.Debug("radio state", "state", StateReady.String(), "version", info.Version)
	return nil
}

// exec sends one command with the default pacing.
func (s *Session) exec(cmd string) error {
	if live, err := s.conn.status(); !live {
		if err == nil {
			err = ErrDisconnected
		}
		return err
	}
	return s.channel.Send(NewCommand(cmd, s.config.commandDelay))
}

// collect drains the inbound queue and remembers the newest line.
func (s *Session) collect() []ResponseLine {
	lines := s.channel.Drain()
	if len(lines) > 0 {
		s.mu.Lock()
		s.lastResponse = lines[len(lines)-1].Text
		s.mu.Unlock()
	}
	return lines
}

// setState moves between live states. Disconnected is terminal and only
// reachable through disconnect.
func (s *Session) setState(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return false
	}
	s.state = state
	s.logger.Debug("radio state", "state", state.String())
	return true
}

// disconnect tears the session down once. cause is nil for an explicit
// Close.
func (s *Session) disconnect(cause error) error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateDisconnected
	s.err = cause
	s.mu.Unlock()

	if cause != nil {
		s.logger.Error("radio session lost", "error", cause)
	} else {
		s.logger.Debug("radio state", "state", StateDisconnected.String())
	}

	err := s.conn.Close()
	if cause == nil {
		cause = ErrDisconnected
	}
	s.channel.Break(cause)
	close(s.done)
	return err
}

// Close shuts the session down and closes the transport. After calling
// Close the session cannot be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.closed = true
	s.mu.Unlock()

	return s.disconnect(nil)
}

// Done is closed when the session reaches Disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the fatal error that ended the session, nil while it is alive
// or after a clean Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) FrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters.FrameCount
}

func (s *Session) PinAsserted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters.ControlPinAsserted
}

func (s *Session) Info() RadioInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *Session) LastResponse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponse
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:              s.state.String(),
		FrameCount:         s.counters.FrameCount,
		ControlPinAsserted: s.counters.ControlPinAsserted,
		Info:               s.info,
		LastResponse:       s.lastResponse,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

func (s *Session) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf("radio(%s, frames=%d, version=%q)", snap.State, snap.FrameCount, snap.Info.Version)
}

// LogValue implements slog.LogValuer.
func (s *Session) LogValue() slog.Value {
	snap := s.Snapshot()
	return slog.GroupValue(
		slog.String("state", snap.State),
		slog.Uint64("frames", snap.FrameCount),
		slog.Bool("pin", snap.ControlPinAsserted),
		slog.String("version", snap.Info.Version),
	)
}
