package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"i4.energy/across/lorasend/at"
	"i4.energy/across/lorasend/radio"
)

// Config holds the application configuration
type Config struct {
	// SerialPort is the path to the radio's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the radio (e.g. 57600)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// ControlPin is the GPIO toggled around every transmission (e.g. "GPIO11")
	ControlPin string
	// TxPower is the radio output power in dBm
	TxPower int
	// ReconnectInterval is the wait between attempts to reopen the radio
	ReconnectInterval time.Duration

	// PayloadFile is re-read and sent every TxInterval. Empty disables it.
	PayloadFile string
	// TxInterval is the period of the payload file source
	TxInterval time.Duration

	// BindAddress is the address the HTTP server listens on. Empty disables it.
	BindAddress string

	// MQTTBroker is the broker URL (e.g. "tcp://localhost:1883"). Empty disables MQTT.
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = radio.DefaultBaudRate
		c.LogLevel = "info"
		c.ControlPin = at.DefaultControlPin
		c.TxPower = radio.DefaultTxPower
		c.ReconnectInterval = 5 * time.Second
		c.TxInterval = 10 * time.Second
		c.MQTTClientID = "lorasend"
		c.MQTTTopic = "lora/tx"
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		for _, key := range []string{
			"SERIAL_PORT", "BAUD_RATE", "LOG_LEVEL", "CONTROL_PIN", "TX_POWER",
			"RECONNECT_INTERVAL", "PAYLOAD_FILE", "TX_INTERVAL", "BIND_ADDRESS",
			"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_TOPIC",
		} {
			if v, ok := os.LookupEnv(key); ok {
				if err := c.set(key, v); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// WithFlags loads configuration from command-line flags. Only flags given
// on the command line override earlier options.
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			if key, ok := flagKeys[f.Name]; ok && err == nil {
				err = c.set(key, f.Value.String())
			}
		})
		return err
	}
}

var flagKeys = map[string]string{
	"serial-port":        "SERIAL_PORT",
	"baud-rate":          "BAUD_RATE",
	"log-level":          "LOG_LEVEL",
	"control-pin":        "CONTROL_PIN",
	"tx-power":           "TX_POWER",
	"reconnect-interval": "RECONNECT_INTERVAL",
	"payload-file":       "PAYLOAD_FILE",
	"tx-interval":        "TX_INTERVAL",
	"bind-address":       "BIND_ADDRESS",
	"mqtt-broker":        "MQTT_BROKER",
	"mqtt-client-id":     "MQTT_CLIENT_ID",
	"mqtt-topic":         "MQTT_TOPIC",
}

// RegisterFlags declares the command-line flags WithFlags understands.
func RegisterFlags(fSet *flag.FlagSet) {
	fSet.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the radio")
	fSet.Int("baud-rate", radio.DefaultBaudRate, "Baud rate for serial communication")
	fSet.String("log-level", "info", "Log level (debug, info, warn, error)")
	fSet.String("control-pin", at.DefaultControlPin, "GPIO raised while transmitting")
	fSet.Int("tx-power", radio.DefaultTxPower, "Radio output power in dBm")
	fSet.Duration("reconnect-interval", 5*time.Second, "Wait between reconnect attempts")
	fSet.String("payload-file", "", "File whose contents are sent periodically")
	fSet.Duration("tx-interval", 10*time.Second, "Interval between payload file transmissions")
	fSet.String("bind-address", "", "Bind address for the HTTP server (empty disables it)")
	fSet.String("mqtt-broker", "", "MQTT broker URL (empty disables MQTT)")
	fSet.String("mqtt-client-id", "lorasend", "MQTT client id")
	fSet.String("mqtt-topic", "lora/tx", "MQTT topic carrying payloads")
}

func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "SERIAL_PORT":
		c.SerialPort = value
	case "BAUD_RATE":
		c.BaudRate, err = strconv.Atoi(value)
	case "LOG_LEVEL":
		c.LogLevel = value
	case "CONTROL_PIN":
		c.ControlPin = value
	case "TX_POWER":
		c.TxPower, err = strconv.Atoi(value)
	case "RECONNECT_INTERVAL":
		c.ReconnectInterval, err = time.ParseDuration(value)
	case "PAYLOAD_FILE":
		c.PayloadFile = value
	case "TX_INTERVAL":
		c.TxInterval, err = time.ParseDuration(value)
	case "BIND_ADDRESS":
		c.BindAddress = value
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC":
		c.MQTTTopic = value
	}
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return nil
}
