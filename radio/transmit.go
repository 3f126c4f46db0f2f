package radio

import (
	"fmt"
	"time"

	"i4.energy/across/lorasend/at"
)

// Transmit sends payload as one LoRa frame and returns its frame index.
//
// The sequence is fixed and runs to completion once started: control pin
// high, radio tx with the payload in lowercase hex, settle delay, control
// pin low. Concurrent calls are serialized. Payloads over the configured
// maximum are refused without touching the radio.
//
// Any failing step tears the session down. A failure after the pin went
// high is reported as *PartialTransmitError with the pin still asserted.
// The frame is only counted when every step succeeded.
func (s *Session) Transmit(payload []byte) (uint64, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	switch state := s.State(); state {
	case StateReady:
	case StateDisconnected:
		if err := s.Err(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
		return 0, ErrDisconnected
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotReady, state)
	}

	if limit := s.config.maxPayload; limit > 0 && len(payload) > limit {
		return 0, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(payload), limit)
	}

	if !s.setState(StateTransmitting) {
		return 0, ErrDisconnected
	}

	pin := s.config.controlPin

	// 1. assert the control pin
	if err := s.step(1, at.PinDig(pin, true)); err != nil {
		return 0, s.abort(err)
	}
	s.setPin(true)

	// 2-3. hex encode and send
	if err := s.step(3, at.RadioTx(payload)); err != nil {
		return 0, s.abort(err)
	}

	// 4. air time
	time.Sleep(s.config.settleDelay)

	// 5. release the control pin
	if err := s.step(5, at.PinDig(pin, false)); err != nil {
		return 0, s.abort(err)
	}

	// 6. count the frame
	s.mu.Lock()
	s.counters.ControlPinAsserted = false
	s.counters.FrameCount++
	frame := s.counters.FrameCount
	if s.state == StateTransmitting {
		s.state = StateReady
	}
	s.mu.Unlock()

	s.logger.Info("frame sent", "frame", frame, "bytes", len(payload))
	return frame, nil
}

// step sends one transmit command and checks the lines it produced. Once the
// pin is asserted every failure becomes a *PartialTransmitError.
func (s *Session) step(n int, cmd string) error {
	err := s.exec(cmd)
	if err == nil {
		for _, line := range s.collect() {
			if line.Command == cmd && line.Kind == at.KindError {
				err = &ProtocolError{Command: cmd, Response: line.Text}
				break
			}
		}
	}
	if err == nil {
		return nil
	}

	if !s.PinAsserted() {
		return err
	}
	return &PartialTransmitError{
		Step:         n,
		Command:      cmd,
		LastResponse: s.LastResponse(),
		PinAsserted:  true,
		Err:          err,
	}
}

func (s *Session) abort(err error) error {
	s.disconnect(err)
	return err
}

func (s *Session) setPin(high bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.ControlPinAsserted = high
}
