package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
	"i4.energy/across/lorasend/radio"
)

func main() {
	RegisterFlags(flag.CommandLine)
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	radioConfig, err := radio.NewConfigBuilder().
		WithCommandDelay(radio.DefaultCommandDelay).
		WithSettleDelay(radio.DefaultSettleDelay).
		WithInitTimeout(30 * time.Second).
		WithControlPin(config.ControlPin).
		WithTxPower(config.TxPower).
		WithLogger(logger.With("component", "radio")).
		WithDialer(radio.SerialDialer{
			PortName: config.SerialPort,
			Mode: &serial.Mode{
				BaudRate: config.BaudRate,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			},
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create radio config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, radioConfig, logger); err != nil {
		logger.Error("LoRa sender failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, config *Config, radioConfig radio.Config, logger *slog.Logger) error {
	link := &Link{
		Config:            radioConfig,
		ReconnectInterval: config.ReconnectInterval,
		Logger:            logger.With("component", "link"),
		OnReady: func(s *radio.Session) {
			notify(logger, fmt.Sprintf("STATUS=%s", s))
		},
	}

	logger.Info("Starting LoRa sender",
		"serial_port", config.SerialPort,
		"http", config.BindAddress != "",
		"mqtt", config.MQTTBroker != "",
		"payload_file", config.PayloadFile)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return link.Run(ctx) })

	g.Go(func() error {
		select {
		case <-link.Ready():
			notify(logger, daemon.SdNotifyReady)
		case <-ctx.Done():
		}
		return nil
	})

	if config.PayloadFile != "" {
		source := &FileSource{
			Path:     config.PayloadFile,
			Interval: config.TxInterval,
			Radio:    link,
			Logger:   logger.With("component", "source", "source", "file"),
		}
		g.Go(func() error {
			select {
			case <-link.Ready():
			case <-ctx.Done():
				return nil
			}
			return source.Run(ctx)
		})
	}

	if config.MQTTBroker != "" {
		source := &MQTTSource{
			Broker:   config.MQTTBroker,
			ClientID: config.MQTTClientID,
			Topic:    config.MQTTTopic,
			Radio:    link,
			Logger:   logger.With("component", "source", "source", "mqtt"),
		}
		g.Go(func() error { return source.Run(ctx) })
	}

	if config.BindAddress != "" {
		httpServer := &http.Server{
			Addr: config.BindAddress,
			Handler: &Server{
				Logger: logger.With("component", "server"),
				Radio:  link,
			},
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", "address", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			logger.Info("Closing HTTP server")
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	notify(logger, daemon.SdNotifyStopping)

	return g.Wait()
}

// notify reports state to systemd. Outside systemd it does nothing.
func notify(logger *slog.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logger.Warn("Failed to notify systemd", "state", state, "error", err)
	}
}
