// Command heating-control runs the multi-zone heating controller. It reads
// zone temperatures from MQTT, drives zone pumps and the boiler, and serves
// its status over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/heating-control/internal/config"
	"github.com/sweeney/heating-control/internal/gpio"
	"github.com/sweeney/heating-control/internal/heating"
	"github.com/sweeney/heating-control/internal/logger"
	"github.com/sweeney/heating-control/internal/mqtt"
	"github.com/sweeney/heating-control/internal/repository"
	"github.com/sweeney/heating-control/internal/status"
	"github.com/sweeney/heating-control/internal/web"
)

const (
	defaultConfigPath = "heating_config.yaml"
	defaultEnvFile    = ".env"
	shutdownTimeout   = 10 * time.Second
)

type options struct {
	configPath  string
	envFile     string
	printConfig bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses args and binds the overriding flags into v.
func parseFlags(args []string, v *viper.Viper) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("heating-control", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "YAML configuration file")
	fs.StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file with MQTT credentials (ignored if missing)")
	fs.BoolVar(&opts.printConfig, "print-config", false, "Print the effective configuration and exit")
	fs.String("broker", config.DefaultBroker, "MQTT broker address")
	fs.String("http", config.DefaultHTTPAddr, "HTTP status address (empty to disable)")
	fs.String("db", "", "SQLite event history path (empty to disable)")
	fs.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn or error")
	fs.Int("boiler-gpio-pin", -1, "BCM pin driving a local boiler relay (negative to disable)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	for key, name := range map[string]string{
		"mqtt.broker":     "broker",
		"http_addr":       "http",
		"db_path":         "db",
		"log_level":       "log-level",
		"boiler_gpio_pin": "boiler-gpio-pin",
	} {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return options{}, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return opts, nil
}

func loadConfig(args []string) (config.Config, options, error) {
	v := config.NewViper()
	opts, err := parseFlags(args, v)
	if err != nil {
		return config.Config{}, options{}, err
	}
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return config.Config{}, options{}, err
	}
	cfg, err := config.Load(v, opts.configPath)
	if err != nil {
		return config.Config{}, options{}, err
	}
	return cfg, opts, nil
}

func run(args []string, stdout io.Writer) error {
	cfg, opts, err := loadConfig(args)
	if err != nil {
		return err
	}
	if opts.printConfig {
		return cfg.Write(stdout)
	}

	log := logger.NewWithWriter(cfg.LogLevel, stdout)
	defer func() { _ = log.Sync() }()

	topics := mqtt.NewTopics(cfg.TopicPrefix)
	client := mqtt.NewClient(mqtt.Options{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		BufferSize:  cfg.MQTT.BufferSize,
		WillTopic:   topics.SystemStatus(),
		WillPayload: status.FormatOfflineEvent("connection lost"),
		Logger:      log.Named("mqtt"),
	})
	defer client.Close()

	// Interfaces stay nil when the feature is disabled.
	var (
		events heating.EventRecorder
		lister web.EventLister
	)
	if cfg.DBPath != "" {
		db, err := repository.InitDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("init event history: %w", err)
		}
		defer db.Close()
		store := repository.NewEventStore(db)
		events, lister = store, store
		log.Infow("event history enabled", "path", cfg.DBPath)
	}

	var relay gpio.Relay
	if cfg.BoilerGPIOPin >= 0 {
		r, err := gpio.NewRealRelay(cfg.GPIOChip, cfg.BoilerGPIOPin, cfg.BoilerGPIOActiveLow)
		if err != nil {
			return fmt.Errorf("init boiler relay: %w", err)
		}
		defer r.Close()
		relay = r
		log.Infow("boiler relay enabled", "chip", cfg.GPIOChip, "pin", cfg.BoilerGPIOPin)
	}

	svc, err := heating.New(heating.Options{
		Config:    cfg,
		Transport: client,
		Relay:     relay,
		Events:    events,
		Logger:    log.Named("heating"),
	})
	if err != nil {
		return err
	}
	client.SetOnConnect(svc.NotifyConnected)
	svc.PublishStartup()

	if cfg.HTTPAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := web.New(cfg.HTTPAddr, svc.Tracker(), lister, log.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server error", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warnw("http server shutdown", "error", err)
			}
		}()
		log.Infow("http status server listening", "addr", cfg.HTTPAddr)
	}

	log.Infow("started",
		"broker", cfg.MQTT.Broker,
		"zones", len(cfg.Zones),
		"control_interval", cfg.ControlInterval,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"window_detection", cfg.WindowDetection,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(svc, sigCh, log)
}

// runLoop runs the service until a signal arrives or the loop fails, then
// puts the plant into its safe state.
func runLoop(svc *heating.Service, sig <-chan os.Signal, log *logger.Logger) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	var reason string
	select {
	case s := <-sig:
		reason = signalName(s)
		log.Infow("received signal, shutting down", "signal", reason)
		cancel(fmt.Errorf("signal %s", reason))
		if err := <-done; err != nil {
			log.Warnw("control loop stopped with error", "error", err)
		}
	case err := <-done:
		svc.Shutdown("ERROR")
		if err != nil {
			return fmt.Errorf("control loop: %w", err)
		}
		return nil
	}

	svc.Shutdown(reason)
	return nil
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
