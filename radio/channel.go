package radio

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/lorasend/at"
)

// Command is an outbound instruction paired with the time the radio is
// given to process it.
type Command struct {
	text  string
	delay time.Duration
}

// NewCommand returns an immutable Command.
func NewCommand(text string, delay time.Duration) Command {
	return Command{text: text, delay: delay}
}

func (c Command) Text() string         { return c.text }
func (c Command) Delay() time.Duration { return c.delay }
func (c Command) String() string       { return c.text }

// ResponseLine is one classified inbound line.
type ResponseLine struct {
	Text string
	Kind at.Kind
	// Command is the text of the command the line answered, empty when the
	// line was unsolicited.
	Command string
}

// pending tracks the single outstanding command.
type pending struct {
	cmd  string
	resp chan ResponseLine
}

// Channel issues one command at a time over a Transport and correlates the
// next inbound line with it.
//
// By default Send paces the radio with a fixed delay and does not look at the
// answer. With an ack timeout Send waits for the correlated line instead.
// Either way the reader goroutine hands every line to Deliver, and the lines
// that carry information are queued until the control goroutine calls Drain.
type Channel struct {
	w          io.Writer
	logger     *slog.Logger
	ackTimeout time.Duration

	// sendMu keeps exactly one command outstanding.
	sendMu sync.Mutex

	mu      sync.Mutex
	current *pending
	queue   []ResponseLine
	broken  bool
	cause   error
	done    chan struct{}
}

// NewChannel returns a Channel writing to w. A zero ackTimeout selects fixed
// pacing.
func NewChannel(w io.Writer, logger *slog.Logger, ackTimeout time.Duration) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		w:          w,
		logger:     logger,
		ackTimeout: ackTimeout,
		done:       make(chan struct{}),
	}
}

// Send writes cmd and blocks until the radio had its time to process it.
// The wait cannot be interrupted; closing the connection is the only way to
// stop a session. A write failure breaks the channel for good.
func (c *Channel) Send(cmd Command) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if c.broken {
		c.mu.Unlock()
		return ErrChannelBroken
	}
	p := &pending{cmd: cmd.Text(), resp: make(chan ResponseLine, 1)}
	c.current = p
	c.mu.Unlock()

	c.logger.Debug("SEND", "command", cmd.Text())
	if _, err := c.w.Write(at.EncodeLine(cmd.Text())); err != nil {
		err = &TransportError{Command: cmd.Text(), Err: err}
		c.Break(err)
		return err
	}

	if c.ackTimeout <= 0 {
		time.Sleep(cmd.Delay())
		return nil
	}

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()

	select {
	case line := <-p.resp:
		if line.Kind == at.KindError {
			return &ProtocolError{Command: cmd.Text(), Response: line.Text}
		}
		return nil
	case <-c.done:
		cause := c.brokenCause()
		var te *TransportError
		if errors.As(cause, &te) {
			return cause
		}
		return &TransportError{Command: cmd.Text(), Err: cause}
	case <-timer.C:
		c.mu.Lock()
		if c.current == p {
			c.current = nil
		}
		c.mu.Unlock()
		return &ProtocolError{Command: cmd.Text(), Err: ErrResponseTimeout}
	}
}

// Deliver classifies one decoded line against the outstanding command. It
// is called from the reader goroutine for every non-empty line, in wire
// order.
func (c *Channel) Deliver(text string) ResponseLine {
	c.mu.Lock()
	p := c.current
	line := ResponseLine{Text: text, Kind: at.Classify(text, p != nil)}
	if p != nil {
		line.Command = p.cmd
		c.current = nil
	}
	if line.Kind != at.KindAck {
		c.queue = append(c.queue, line)
	}
	c.mu.Unlock()

	if p != nil {
		p.resp <- line
	}
	return line
}

// Drain returns the queued Data, Error and Unsolicited lines in arrival
// order and empties the queue.
func (c *Channel) Drain() []ResponseLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.queue
	c.queue = nil
	return lines
}

// Break marks the channel unusable and releases a Send waiting for an
// answer. Only the first cause is kept.
func (c *Channel) Break(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return
	}
	c.broken = true
	c.cause = cause
	c.current = nil
	close(c.done)
}

// Broken reports whether the channel can no longer be used.
func (c *Channel) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

func (c *Channel) brokenCause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cause == nil {
		return ErrChannelBroken
	}
	return c.cause
}
