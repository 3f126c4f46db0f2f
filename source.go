package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Transmitter sends one payload as one radio frame.
type Transmitter interface {
	Transmit(payload []byte) (uint64, error)
}

// FileSource sends the contents of a file at a fixed interval. The file is
// re-read every time so it can be updated while running.
type FileSource struct {
	Path     string
	Interval time.Duration
	Radio    Transmitter
	Logger   *slog.Logger
}

// Run sends immediately and then every Interval until ctx is canceled.
// Failed reads and transmissions are logged and retried on the next tick.
func (f *FileSource) Run(ctx context.Context) error {
	if f.Interval <= 0 {
		return fmt.Errorf("file source: interval must be positive, got %v", f.Interval)
	}

	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		f.sendOnce()

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (f *FileSource) sendOnce() {
	payload, err := ReadPayload(f.Path)
	if err != nil {
		f.Logger.Warn("Failed to read payload file", "path", f.Path, "error", err)
		return
	}

	frame, err := f.Radio.Transmit(payload)
	if err != nil {
		f.Logger.Warn("Failed to transmit payload", "path", f.Path, "error", err)
		return
	}
	f.Logger.Info("Payload sent", "path", f.Path, "frame", frame, "bytes", len(payload))
}

// ReadPayload reads a payload file with its line breaks removed.
func ReadPayload(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.ReplaceAll(data, []byte("\r"), nil)
	return bytes.ReplaceAll(data, []byte("\n"), nil), nil
}

// MQTTSource sends every message published on Topic as one frame.
type MQTTSource struct {
	Broker   string
	ClientID string
	Topic    string
	Radio    Transmitter
	Logger   *slog.Logger
}

// Run connects to the broker and subscribes on every (re)connect. It blocks
// until ctx is canceled.
func (m *MQTTSource) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.Broker)
	opts.SetClientID(m.ClientID)
	opts.SetOrderMatters(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.Logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		m.Logger.Info("MQTT connected", "broker", m.Broker, "topic", m.Topic)
		if token := c.Subscribe(m.Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			m.handle(msg.Payload())
		}); token.Wait() && token.Error() != nil {
			m.Logger.Error("MQTT subscribe failed", "topic", m.Topic, "error", token.Error())
		}
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	defer client.Disconnect(500)

	// With connect retry the token only completes once connected.
	select {
	case <-ctx.Done():
		return nil
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect mqtt broker %s: %w", m.Broker, err)
		}
	}

	<-ctx.Done()
	return nil
}

func (m *MQTTSource) handle(payload []byte) {
	if len(payload) == 0 {
		m.Logger.Warn("Ignoring empty MQTT payload", "topic", m.Topic)
		return
	}

	frame, err := m.Radio.Transmit(payload)
	if err != nil {
		m.Logger.Error("Failed to transmit MQTT payload", "topic", m.Topic, "error", err)
		return
	}
	m.Logger.Info("MQTT payload sent", "topic", m.Topic, "frame", frame, "bytes", len(payload))
}
