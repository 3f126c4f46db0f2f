package radio_test

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/lorasend/at"
	"i4.energy/across/lorasend/radio"
)

// sentAfterInit returns the commands written after the startup sequence.
func sentAfterInit(tr *radio.TestTransport) []string {
	return tr.Commands()[len(initCommands):]
}

func TestTransmit(t *testing.T) {
	t.Run("Sends pin high, hex payload, pin low", func(t *testing.T) {
		tr := radio.NewTestTransport()
		tr.RespondWith(radio.RN2483Responder)
		s := newTestSession(t, tr)

		frame, err := s.Transmit([]byte("hi"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if frame != 1 {
			t.Errorf("expected frame 1, got %d", frame)
		}

		want := []string{
			"sys set pindig GPIO11 1",
			"radio tx 6869",
			"sys set pindig GPIO11 0",
		}
		if got := sentAfterInit(tr); !slices.Equal(got, want) {
			t.Errorf("unexpected transmit sequence:\nexpected: %q\ngot:      %q", want, got)
		}
		if s.FrameCount() != 1 {
			t.Errorf("expected frame count 1, got %d", s.FrameCount())
		}
		if s.PinAsserted() {
			t.Error("expected control pin released")
		}
		if s.State() != radio.StateReady {
			t.Errorf("expected Ready, got %v", s.State())
		}
	})

	t.Run("Empty payload", func(t *testing.T) {
		tr := radio.NewTestTransport()
		tr.RespondWith(radio.RN2483Responder)
		s := newTestSession(t, tr)

		frame, err := s.Transmit(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if frame != 1 {
			t.Errorf("expected frame 1, got %d", frame)
		}
		if got := sentAfterInit(tr)[1]; got != "radio tx " {
			t.Errorf("expected bare radio tx, got %q", got)
		}
	})

	t.Run("Frames count up", func(t *testing.T) {
		tr := radio.NewTestTransport()
		tr.RespondWith(radio.RN2483Responder)
		s := newTestSession(t, tr)

		for i := uint64(1); i <= 3; i++ {
			frame, err := s.Transmit([]byte{byte(i)})
			if err != nil {
				t.Fatalf("frame %d: unexpected error: %v", i, err)
			}
			if frame != i {
				t.Errorf("expected frame %d, got %d", i, frame)
			}
		}
	})

	t.Run("Waits for the settle delay before releasing the pin", func(t *testing.T) {
		tr := radio.NewTestTransport()
		tr.RespondWith(radio.RN2483Responder)
		s := newTestSession(t, tr, func(b *radio.ConfigBuilder) {
			b.WithSettleDelay(30 * time.Millisecond)
		})

		start := time.Now()
		if _, err := s.Transmit([]byte("hi")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("expected settle delay to be honoured, took %v", elapsed)
		}
	})

	t.Run("Payload over the limit is refused", func(t *testing.T) {
		tr := radio.NewTestTransport()
		tr.RespondWith(radio.RN2483Responder)
		s := newTestSession(t, tr, func(b *radio.ConfigBuilder) {
			b.WithMaxPayload(4)
		})

		if _, err := s.Transmit([]byte("hello")); !errors.Is(err, radio.ErrPayloadTooLarge) {
			t.Errorf("expected ErrPayloadTooLarge, got: %v", err)
		}
		if got := sentAfterInit(tr); len(got) != 0 {
			t.Errorf("expected nothing written, got %q", got)
		}
		if s.State() != radio.StateReady {
			t.Errorf("expected session to stay Ready, got %v", s.State())
		}
	})

	t.Run("Zero limit disables the check", func(t *testing.T) {
		tr := radio.NewTestTransport()
		tr.RespondWith(radio.RN2483Responder)
		s := newTestSession(t, tr, func(b *radio.ConfigBuilder) {
			b.WithMaxPayload(0)
		})

		if _, err := s.Transmit(make([]byte, 1024)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

// failAfterInit makes the transport fail writes matching match once the
// startup sequence is done.
func failAfterInit(tr *radio.TestTransport, match func(cmd string) bool, err error) {
	var n atomic.Int32
	tr.FailWrite(func(cmd string) error {
		if int(n.Add(1)) <= len(initCommands) {
			return nil
		}
		if match(cmd) {
			return err
		}
		return nil
	})
}

func TestTransmitFailure(t *testing.T) {
	writeErr := errors.New("device unplugged")

	t.Run("Failure after pin high is partial", func(t *testing.T) {
		tr := radio.NewTestTransport()
		tr.RespondWith(radio.RN2483Responder)
		failAfterInit(tr, func(cmd string) bool { return strings.HasPrefix(cmd, "radio tx") }, writeErr)
		s := newTestSession(t, tr)

		_, err := s.Transmit([]byte("hi"))

		var pe *radio.PartialTransmitError
		if !errors.As(err, &pe) {
			t.Fatalf("expected PartialTransmitError, got: %v", err)
		}
		if pe.Step != 3 || pe.Command != "radio tx 6869" || !pe.PinAsserted {
			t.Errorf("unexpected error context: %+v", pe)
		}
		if !errors.Is(err, writeErr) {
			t.Errorf("expected write error to be wrapped, got: %v", err)
		}

		if s.State() != radio.StateDisconnected {
			t.Errorf("expected Disconnected, got %v", s.State())
		}
		if s.FrameCount() != 0 {
			t.Errorf("expected frame not to be counted, got %d", s.FrameCount())
		}
		if !s.PinAsserted() {
			t.Error("expected pin to be reported as asserted")
		}
		if !tr.Closed() {
			t.Error("expected transport to be closed")
		}
		if _, err := s.Transmit([]byte("hi")); !errors.Is(err, radio.ErrDisconnected) {
			t.Errorf("expected ErrDisconnected on retry, got: %v", err)
		}
	})

	t.Run("Failure releasing the pin is partial", func(t *testing.T) {
		tr := radio.NewTestTransport()
		tr.RespondWith(radio.RN2483Responder)
		failAfterInit(tr, func(cmd string) bool { return cmd == "sys set pindig GPIO11 0" }, writeErr)
		s := newTestSession(t, tr)

		_, err := s.Transmit([]byte("hi"))

		var pe *radio.PartialTransmitError
		if !errors.As(err, &pe) || pe.Step != 5 {
			t.Fatalf("expected PartialTransmitError at step 5, got: %v", err)
		}
		if s.FrameCount() != 0 {
			t.Errorf("expected frame not to be counted, got %d", s.FrameCount())
		}
	})

	t.Run("Failure asserting the pin is not partial", func(t *testing.T) {
		tr := radio.NewTestTransport()
		tr.RespondWith(radio.RN2483Responder)
		failAfterInit(tr, func(cmd string) bool { return cmd == "sys set pindig GPIO11 1" }, writeErr)
		s := newTestSession(t, tr)

		_, err := s.Transmit([]byte("hi"))

		var pe *radio.PartialTransmitError
		if errors.As(err, &pe) {
			t.Errorf("expected plain failure before the pin went high, got: %v", err)
		}
		var te *radio.TransportError
		if !errors.As(err, &te) {
			t.Errorf("expected TransportError, got: %v", err)
		}
		if s.PinAsserted() {
			t.Error("expected pin deasserted")
		}
		if s.State() != radio.StateDisconnected {
			t.Errorf("expected Disconnected, got %v", s.State())
		}
	})

	t.Run("Radio rejecting the frame", func(t *testing.T) {
		tr := radio.NewTestTransport()
		tr.RespondWith(func(cmd string) []string {
			if strings.HasPrefix(cmd, "radio tx") {
				return []string{at.InvalidDataLen}
			}
			return radio.RN2483Responder(cmd)
		})
		s := newTestSession(t, tr, ackMode)

		_, err := s.Transmit([]byte("hi"))

		var pe *radio.PartialTransmitError
		if !errors.As(err, &pe) || pe.Step != 3 {
			t.Fatalf("expected PartialTransmitError at step 3, got: %v", err)
		}
		var proto *radio.ProtocolError
		if !errors.As(err, &proto) || proto.Response != at.InvalidDataLen {
			t.Errorf("expected ProtocolError with the radio answer, got: %v", err)
		}
	})

	t.Run("Mock transport failing the frame", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s, _ := newMockSession(t, ctrl, func(tr *radio.MockTransport) []any {
			return append(NewMockSequence(tr).
				PinHigh().
				Fail("radio tx 6869", writeErr).
				Build(),
				tr.EXPECT().Close().Return(nil),
			)
		})

		_, err := s.Transmit([]byte("hi"))

		var pe *radio.PartialTransmitError
		if !errors.As(err, &pe) || pe.Step != 3 {
			t.Fatalf("expected PartialTransmitError at step 3, got: %v", err)
		}
		select {
		case <-s.Done():
		default:
			t.Error("expected session to be done")
		}
	})
}

func TestTransmitConcurrent(t *testing.T) {
	const callers = 8

	tr := radio.NewTestTransport()
	tr.RespondWith(radio.RN2483Responder)
	s := newTestSession(t, tr)

	var wg sync.WaitGroup
	frames := make(chan uint64, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frame, err := s.Transmit([]byte{byte(i)})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			frames <- frame
		}()
	}
	wg.Wait()
	close(frames)

	var got []uint64
	for f := range frames {
		got = append(got, f)
	}
	slices.Sort(got)
	for i, f := range got {
		if f != uint64(i+1) {
			t.Fatalf("expected frames 1..%d, got %v", callers, got)
		}
	}
	if s.FrameCount() != callers {
		t.Errorf("expected frame count %d, got %d", callers, s.FrameCount())
	}

	// Sequences must not interleave.
	sent := sentAfterInit(tr)
	if len(sent) != 3*callers {
		t.Fatalf("expected %d commands, got %d", 3*callers, len(sent))
	}
	for i := 0; i < len(sent); i += 3 {
		if sent[i] != "sys set pindig GPIO11 1" || !strings.HasPrefix(sent[i+1], "radio tx ") || sent[i+2] != "sys set pindig GPIO11 0" {
			t.Errorf("interleaved transmit at %d: %q", i, sent[i:i+3])
		}
	}
}
