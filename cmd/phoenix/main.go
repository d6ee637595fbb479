package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bugsnag/bugsnag-go"
	"github.com/eljojo/phoenix"
	"github.com/eljojo/phoenix/types"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load(".env")

	defaults := phoenix.DefaultConfig()

	configPtr := flag.String("config", getEnv("PHOENIX_CONFIG", ""), "path to a YAML config file")
	feedIdPtr := flag.String("feed-id", getEnv("PHOENIX_FEED_ID", ""), "local identity (feed id)")
	dataDirPtr := flag.String("data-dir", getEnv("PHOENIX_DATA_DIR", defaults.DataDir), "directory holding the log")
	httpAddrPtr := flag.String("http-addr", getEnv("HTTP_ADDR", ""), "http server address (e.g. :8080)")
	mqttHostPtr := flag.String("mqtt-host", getEnv("MQTT_HOST", ""), "mqtt server hostname, empty to disable")
	mqttUserPtr := flag.String("mqtt-user", getEnv("MQTT_USER", ""), "mqtt server username")
	mqttPassPtr := flag.String("mqtt-pass", getEnv("MQTT_PASS", ""), "mqtt server password")
	mqttTopicPtr := flag.String("mqtt-topic", getEnv("MQTT_TOPIC", defaults.MQTTTopic), "mqtt topic prefix")
	bugsnagKeyPtr := flag.String("bugsnag-key", getEnv("BUGSNAG_API_KEY", ""), "bugsnag api key, empty to disable")
	showNamesPtr := flag.Bool("show-names", false, "show table with name bindings")
	refreshRatePtr := flag.Int("refresh-rate", 600, "refresh rate in seconds for the names table")
	verbosePtr := flag.Bool("verbose", false, "log debug stuff")

	flag.Parse()

	if *verbosePtr {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := defaults
	if *configPtr != "" {
		var err error
		if cfg, err = phoenix.LoadConfigFile(*configPtr, cfg); err != nil {
			logrus.Fatalf("failed to load config: %v", err)
		}
	}

	// explicitly set flags and env win over the config file
	overrideString(&cfg.DataDir, *dataDirPtr, defaults.DataDir)
	overrideString(&cfg.HTTPAddr, *httpAddrPtr, "")
	overrideString(&cfg.MQTTHost, *mqttHostPtr, "")
	overrideString(&cfg.MQTTUser, *mqttUserPtr, "")
	overrideString(&cfg.MQTTPass, *mqttPassPtr, "")
	overrideString(&cfg.MQTTTopic, *mqttTopicPtr, defaults.MQTTTopic)
	overrideString(&cfg.BugsnagAPIKey, *bugsnagKeyPtr, "")
	if *feedIdPtr != "" {
		cfg.FeedID = types.FeedID(*feedIdPtr)
	}

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}

	if cfg.BugsnagAPIKey != "" {
		bugsnag.Configure(bugsnag.Configuration{
			APIKey:          cfg.BugsnagAPIKey,
			ProjectPackages: []string{"main", "github.com/eljojo/phoenix"},
		})
	}

	log, err := phoenix.OpenPebbleLog(cfg.DataDir)
	if err != nil {
		logrus.Fatalf("failed to open log: %v", err)
	}
	defer log.Close()

	node := phoenix.New(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(node.Run(gCtx))
	})

	g.Go(func() error {
		if err := node.Processor.WaitDrained(gCtx); err != nil {
			return ignoreCanceled(err)
		}
		logrus.Infof("🔥 %s is up, %d posts indexed", cfg.FeedID, node.Query.PostCount())
		return ignoreCanceled(node.EnsureInit(gCtx))
	})

	if cfg.HTTPAddr != "" {
		server := phoenix.NewHTTPServer(node)
		if err := server.Listen(cfg.HTTPAddr); err != nil {
			logrus.Fatalf("failed to start http server: %v", err)
		}
		g.Go(func() error {
			return server.Serve(gCtx)
		})
	}

	if cfg.MQTTHost != "" {
		bridge := phoenix.NewMQTTBridge(cfg, node.Query.Events())
		g.Go(func() error {
			return bridge.Run(gCtx)
		})
	}

	if *showNamesPtr {
		go node.Query.PrintNamesForever(gCtx, os.Stdout, time.Duration(*refreshRatePtr)*time.Second)
	}

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Error("phoenix stopped")
		log.Close()
		os.Exit(1)
	}
	logrus.Info("babaayyy")
}

func overrideString(dst *string, value, fallback string) {
	if value != fallback || *dst == "" {
		*dst = value
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
