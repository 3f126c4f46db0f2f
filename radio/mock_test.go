package radio_test

import (
	"i4.energy/across/lorasend/at"
	"i4.energy/across/lorasend/radio"
)

type MockSequenceBuilder struct {
	transport *radio.MockTransport
	calls     []any
}

func NewMockSequence(transport *radio.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Command expects cmd to be written once, CRLF terminated.
func (b *MockSequenceBuilder) Command(cmd string) *MockSequenceBuilder {
	wire := cmd + "\r\n"
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(wire)).Return(len(wire), nil),
	)
	return b
}

// Fail expects cmd to be written and the write to fail with err.
func (b *MockSequenceBuilder) Fail(cmd string, err error) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd+"\r\n")).Return(0, err),
	)
	return b
}

func (b *MockSequenceBuilder) PinLow() *MockSequenceBuilder {
	return b.Command(at.PinDig(at.DefaultControlPin, false))
}

func (b *MockSequenceBuilder) PinHigh() *MockSequenceBuilder {
	return b.Command(at.PinDig(at.DefaultControlPin, true))
}

func (b *MockSequenceBuilder) Version() *MockSequenceBuilder {
	return b.Command(at.CmdVersion)
}

func (b *MockSequenceBuilder) Modulation() *MockSequenceBuilder {
	return b.Command(at.CmdGetModulation)
}

func (b *MockSequenceBuilder) Frequency() *MockSequenceBuilder {
	return b.Command(at.CmdGetFrequency)
}

func (b *MockSequenceBuilder) SpreadingFactor() *MockSequenceBuilder {
	return b.Command(at.CmdGetSpreadFactor)
}

func (b *MockSequenceBuilder) MacPause() *MockSequenceBuilder {
	return b.Command(at.CmdMacPause)
}

func (b *MockSequenceBuilder) TxPower(dBm int) *MockSequenceBuilder {
	return b.Command(at.SetPower(dBm))
}

// Init expects the full startup sequence with default settings.
func (b *MockSequenceBuilder) Init() *MockSequenceBuilder {
	return b.
		PinLow().
		Version().
		Modulation().
		Frequency().
		SpreadingFactor().
		MacPause().
		TxPower(radio.DefaultTxPower).
		PinLow()
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

func initMockCalls(transport *radio.MockTransport) []any {
	return NewMockSequence(transport).Init().Build()
}
