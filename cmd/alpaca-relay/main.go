package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"alpacarelay/pkg/alpaca"
	"alpacarelay/pkg/config"
	"alpacarelay/pkg/drivers/relay"
	"alpacarelay/templates"

	"github.com/hashicorp/go-metrics"
	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"
)

func setupLogging(c *cli.Context, cfg config.LoggingConfig) {
	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	if c.Bool("debug") {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("discovery-port") {
		cfg.Server.DiscoveryPort = c.Int("discovery-port")
	}
	if c.IsSet("hardware-id") {
		cfg.HardwareID = c.String("hardware-id")
	}
	if c.IsSet("db") {
		cfg.Database.Path = c.String("db")
	}

	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	setupLogging(c, cfg.Logging)

	log.Info(cfg.Server.Name)

	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	sig := metrics.DefaultInmemSignal(sink)
	defer sig.Stop()

	tmpl, err := templates.LoadTemplates()
	if err != nil {
		return fmt.Errorf("failed to load templates: %v", err)
	}

	db, err := bolt.Open(cfg.Database.Path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	store, err := alpaca.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create store: %v", err)
	}

	hwID, err := alpaca.ResolveHardwareID(store, cfg.HardwareID, alpaca.HostHardwareID, log.WithField("component", "store"))
	if err != nil {
		return fmt.Errorf("failed to resolve hardware identifier: %v", err)
	}

	var sw relay.Switcher = relay.LogSwitcher{Logger: log.WithField("component", "relay")}
	if cfg.MQTT.Enabled {
		mqttSw, err := relay.NewMQTTSwitcher(cfg.MQTT, log.WithField("component", "mqtt"))
		if err != nil {
			return fmt.Errorf("failed to create MQTT switcher: %v", err)
		}
		defer mqttSw.Close()
		sw = mqttSw
	}

	var counter alpaca.TransactionCounter
	responder := alpaca.NewResponder(&counter, log.WithField("component", "response"), sink)
	pages := alpaca.NewPageRenderer(tmpl, cfg.Server.Name, log.WithField("component", "setup"))

	serverDesc := alpaca.ServerDescription{
		Name:                cfg.Server.Name,
		Manufacturer:        cfg.Server.Manufacturer,
		ManufacturerVersion: cfg.Server.ManufacturerVersion,
		Location:            cfg.Server.Location,
	}
	server := alpaca.NewServer(serverDesc, responder, pages, log.WithField("component", "server"))

	for _, dc := range cfg.Devices {
		devCfg := alpaca.DeviceConfig{
			Type:             dc.Type,
			Number:           dc.Number,
			Description:      dc.Description,
			DriverInfo:       dc.DriverInfo,
			DriverVersion:    dc.DriverVersion,
			InterfaceVersion: dc.InterfaceVersion,
			SupportedActions: dc.SupportedActions,
		}
		logger := log.WithField("device", fmt.Sprintf("%s/%d", dc.Type, dc.Number))

		dev, err := relay.NewDevice(devCfg, dc.RelayTopic, hwID, sw, logger)
		if err != nil {
			return fmt.Errorf("failed to create device %s %d: %v", dc.Type, dc.Number, err)
		}
		if err := server.AddDevice(dev); err != nil {
			return err
		}
	}

	router := alpaca.NewRouter(log.WithField("component", "http"), sink)
	server.AddRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rootURL := alpaca.RootURL(cfg.Server.Host, cfg.Server.Port)
	log.Infof("Use this URL to connect: %s", rootURL)
	log.Infof("Setup page: %ssetup", rootURL)

	// Channel to listen for interrupt or terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Debugf("Server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", srv.Addr, err)
			stop()
		}
	}()

	dr := alpaca.NewDiscoveryResponder(cfg.Server.Host, cfg.Server.DiscoveryPort, cfg.Server.Port,
		log.WithField("component", "discovery"), sink)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dr.Run(ctx); err != nil {
			log.Errorf("Discovery responder failed: %v", err)
			stop()
		}
		log.Debug("Discovery responder stopped")
	}()

	<-ctx.Done()

	log.Info("Shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("server forced to shutdown: %v", err)
	}

	wg.Wait()
	log.Info("Server stopped")
	return nil
}

func main() {
	app := cli.App{
		Name:  "alpaca-relay",
		Usage: "ASCOM Alpaca server for relay driven devices",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				Value:   false,
				EnvVars: []string{"DEBUG"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "alpaca.yaml",
				EnvVars: []string{"ALPACA_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP port to listen on",
				Value:   11111,
			},
			&cli.IntFlag{
				Name:  "discovery-port",
				Usage: "UDP port for Alpaca discovery",
				Value: alpaca.DefaultDiscoveryPort,
			},
			&cli.StringFlag{
				Name:  "hardware-id",
				Usage: "Hardware address used to derive device unique ids",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the settings database",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
