package at_test

import (
	"bytes"
	"testing"

	"i4.energy/across/lorasend/at"
)

func TestPinDig(t *testing.T) {
	if got := at.PinDig("GPIO11", true); got != "sys set pindig GPIO11 1" {
		t.Errorf("unexpected high command: %q", got)
	}
	if got := at.PinDig("GPIO11", false); got != "sys set pindig GPIO11 0" {
		t.Errorf("unexpected low command: %q", got)
	}
}

func TestSetPower(t *testing.T) {
	if got := at.SetPower(10); got != "radio set pwr 10" {
		t.Errorf("unexpected power command: %q", got)
	}
}

func TestRadioTx(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected string
	}{
		{name: "Text payload", payload: []byte("hi"), expected: "radio tx 6869"},
		{name: "Empty payload", payload: []byte{}, expected: "radio tx "},
		{name: "Nil payload", payload: nil, expected: "radio tx "},
		{name: "Binary payload is lowercase", payload: []byte{0x00, 0xAB, 0xFF}, expected: "radio tx 00abff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := at.RadioTx(tt.payload); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseRadioTx(t *testing.T) {
	if _, err := at.ParseRadioTx("sys get ver"); err == nil {
		t.Error("expected error for non-transmit command")
	}
	if _, err := at.ParseRadioTx("radio tx 6"); err == nil {
		t.Error("expected error for odd-length hex")
	}
	p, err := at.ParseRadioTx("radio tx ")
	if err != nil || len(p) != 0 {
		t.Errorf("expected empty payload, got %q (%v)", p, err)
	}
}

func FuzzRadioTxRoundTrip(f *testing.F) {
	f.Add([]byte("hi"))
	f.Add([]byte{})
	f.Add([]byte{0x00, 0x7f, 0x80, 0xff})

	f.Fuzz(func(t *testing.T, payload []byte) {
		cmd := at.RadioTx(payload)
		if cmd != at.RadioTx(payload) {
			t.Fatal("encoding is not deterministic")
		}
		got, err := at.ParseRadioTx(cmd)
		if err != nil {
			t.Fatalf("decode %q: %v", cmd, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round trip mismatch: %x != %x", got, payload)
		}
	})
}
