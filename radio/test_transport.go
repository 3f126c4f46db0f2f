package radio

import (
	"context"
	"io"
	"strings"
	"sync"

	"i4.energy/across/lorasend/at"
)

// TestTransport is a test helper that simulates a blocking serial port using
// channels. Reads block until data is queued, like a real port would, which
// the session's reader goroutine depends on.
//
// Every written line is recorded. A responder can answer commands the way
// the module would, and a write hook can inject failures.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	closed   bool
	commands []string
	respond  func(cmd string) []string
	failOn   func(cmd string) error

	// pending holds the tail of a chunk larger than the caller's buffer.
	// Only the reading goroutine touches it.
	pending []byte
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 64),
	}
}

// RespondWith installs fn as the radio side: each line it returns is queued
// for reading, CRLF terminated, right after the command is written.
func (t *TestTransport) RespondWith(fn func(cmd string) []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.respond = fn
}

// FailWrite makes Write return the error fn reports for a command.
func (t *TestTransport) FailWrite(fn func(cmd string) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failOn = fn
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}

	cmd := strings.TrimSuffix(string(p), at.CRLF)
	if t.failOn != nil {
		if err := t.failOn(cmd); err != nil {
			return 0, err
		}
	}
	t.commands = append(t.commands, cmd)

	if t.respond != nil {
		for _, line := range t.respond(cmd) {
			t.readChan <- []byte(line + at.CRLF)
		}
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	if len(t.pending) == 0 {
		data, ok := <-t.readChan
		if !ok {
			return 0, io.EOF
		}
		t.pending = data
	}
	n = copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the radio.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Commands returns the lines written so far, without terminators.
func (t *TestTransport) Commands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.commands...)
}

// Closed reports whether Close was called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Dial lets a TestTransport act as its own Dialer.
func (t *TestTransport) Dial(context.Context) (Transport, error) {
	return t, nil
}

// RN2483Responder answers like an RN2483 running LoRa at 868.1 MHz, SF12.
func RN2483Responder(cmd string) []string {
	switch {
	case cmd == at.CmdVersion:
		return []string{"RN2483 1.0.5 Oct 31 2018 15:06:52"}
	case cmd == at.CmdGetModulation:
		return []string{"lora"}
	case cmd == at.CmdGetFrequency:
		return []string{"868100000"}
	case cmd == at.CmdGetSpreadFactor:
		return []string{"sf12"}
	case cmd == at.CmdMacPause:
		return []string{"4294967245"}
	case strings.HasPrefix(cmd, "radio tx "):
		return []string{at.OK, at.RadioTxOK}
	default:
		return []string{at.OK}
	}
}
