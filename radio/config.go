package radio

import (
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/lorasend/at"
)

const (
	DefaultCommandDelay = 500 * time.Millisecond
	DefaultSettleDelay  = 300 * time.Millisecond
	DefaultTxPower      = 10
	// DefaultMaxPayload is the RN2483 limit for a single radio tx frame.
	DefaultMaxPayload = 255
)

// Config holds the session settings. Build one with NewConfigBuilder.
type Config struct {
	dialer       Dialer
	commandDelay time.Duration
	settleDelay  time.Duration
	ackTimeout   time.Duration
	initTimeout  time.Duration
	controlPin   string
	txPower      int
	maxPayload   int
	logger       *slog.Logger
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if c.commandDelay < 0 || c.settleDelay < 0 || c.ackTimeout < 0 || c.initTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	if c.controlPin == "" {
		return fmt.Errorf("%w: control pin is required", ErrInvalidConfig)
	}
	if c.txPower < -3 || c.txPower > 20 {
		return fmt.Errorf("%w: tx power %d out of range -3..20", ErrInvalidConfig, c.txPower)
	}
	if c.maxPayload < 0 {
		return fmt.Errorf("%w: max payload must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ConfigBuilder assembles a Config starting from the defaults.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder preloaded with the default pacing of the
// RN2483 sender: 500ms after every command, 300ms settle after radio tx.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: Config{
			commandDelay: DefaultCommandDelay,
			settleDelay:  DefaultSettleDelay,
			controlPin:   at.DefaultControlPin,
			txPower:      DefaultTxPower,
			maxPayload:   DefaultMaxPayload,
		},
	}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithCommandDelay sets the pause after each command.
func (b *ConfigBuilder) WithCommandDelay(d time.Duration) *ConfigBuilder {
	b.config.commandDelay = d
	return b
}

// WithSettleDelay sets the pause between radio tx and releasing the pin.
func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.settleDelay = d
	return b
}

// WithAckTimeout switches the channel from fixed pacing to waiting for the
// line that answers each command, failing after d. Zero keeps fixed pacing.
func (b *ConfigBuilder) WithAckTimeout(d time.Duration) *ConfigBuilder {
	b.config.ackTimeout = d
	return b
}

// WithInitTimeout bounds the startup sequence. Zero means no bound.
func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

func (b *ConfigBuilder) WithControlPin(pin string) *ConfigBuilder {
	b.config.controlPin = pin
	return b
}

// WithTxPower sets the output power in dBm sent with radio set pwr.
func (b *ConfigBuilder) WithTxPower(dBm int) *ConfigBuilder {
	b.config.txPower = dBm
	return b
}

// WithMaxPayload caps the payload size in bytes. Zero disables the check.
func (b *ConfigBuilder) WithMaxPayload(n int) *ConfigBuilder {
	b.config.maxPayload = n
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// Build validates and returns the Config.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
