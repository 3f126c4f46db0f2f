package at

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// Terminal Control
	CRLF = "\r\n"

	// MaxLineLength bounds a single response line. The radio never sends
	// anything close to it; longer input means framing is lost.
	MaxLineLength = 1024

	// Response Codes
	OK             = "ok"
	InvalidParam   = "invalid_param"
	Err            = "err"
	Busy           = "busy"
	RadioErr       = "radio_err"
	InvalidDataLen = "invalid_data_len"
	NoFreeChannel  = "no_free_ch"
	KeysNotInit    = "keys_not_init"
	NotJoined      = "not_joined"
	Silent         = "silent"
	FrameCountErr  = "frame_counter_err_rejoin_needed"

	// Asynchronous notifications
	RadioTxOK = "radio_tx_ok"
	RadioRx   = "radio_rx"

	// Commands
	CmdVersion         = "sys get ver"
	CmdGetModulation   = "radio get mod"
	CmdGetFrequency    = "radio get freq"
	CmdGetSpreadFactor = "radio get sf"
	CmdMacPause        = "mac pause"

	// DefaultControlPin is the GPIO toggled around each transmission.
	DefaultControlPin = "GPIO11"
)

// errorTokens are matched as exact lines or as line prefixes.
var errorTokens = []string{
	InvalidParam,
	InvalidDataLen,
	RadioErr,
	Busy,
	NoFreeChannel,
	KeysNotInit,
	NotJoined,
	Silent,
	FrameCountErr,
	Err,
}

// Kind labels an inbound line.
type Kind int

const (
	KindAck         Kind = iota // bare "ok"
	KindData                    // answer to the outstanding command
	KindError                   // firmware rejected the outstanding command
	KindUnsolicited             // arrived with no command outstanding
)

func (k Kind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindData:
		return "data"
	case KindError:
		return "error"
	case KindUnsolicited:
		return "unsolicited"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PinDig builds the digital pin command, e.g. "sys set pindig GPIO11 1".
func PinDig(pin string, high bool) string {
	state := "0"
	if high {
		state = "1"
	}
	return "sys set pindig " + pin + " " + state
}

// SetPower builds "radio set pwr <dBm>".
func SetPower(dBm int) string {
	return fmt.Sprintf("radio set pwr %d", dBm)
}

const radioTxPrefix = "radio tx "

// RadioTx builds the transmit command carrying payload as lowercase hex with
// no separators. An empty payload yields "radio tx ".
func RadioTx(payload []byte) string {
	return radioTxPrefix + hex.EncodeToString(payload)
}

// ParseRadioTx extracts the payload from a command built by RadioTx.
func ParseRadioTx(cmd string) ([]byte, error) {
	s, ok := strings.CutPrefix(cmd, radioTxPrefix)
	if !ok {
		return nil, fmt.Errorf("not a radio tx command: %q", cmd)
	}
	return hex.DecodeString(s)
}
