package radio

//go:generate mockgen -source=transport.go -destination=mock_transport.go -package=radio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate is the fixed line speed of the RN2483 family.
const DefaultBaudRate = 57600

// Transport represents an established, bidirectional byte stream to a LoRa
// radio module.
//
// A Transport is assumed to be already connected and ready for use. Reads
// block until data is available and may return partial lines. Typical
// implementations include serial ports, TCP bridges to a remote module, or
// in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a radio module.
//
// Dialer abstracts how the connection is created and is used during session
// construction only. Once a Transport is obtained, the Dialer is no longer
// needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport.
	// It should respect cancellation provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens the radio over a local serial port.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyUSB0" or "COM3".
	PortName string
	// Mode overrides the line settings. Nil means 57600 8N1.
	Mode *serial.Mode
}

// Dial opens the configured serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("radio: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("radio: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: DefaultBaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("radio: open %s: %w", d.PortName, err)
	}

	// Discard whatever the module printed before we were listening.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("radio: reset input buffer on %s: %w", d.PortName, err)
	}

	return port, nil
}
