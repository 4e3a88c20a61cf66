package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/log-monitoring/log-generator/catalog"
	"github.com/log-monitoring/log-generator/reporter"
	"github.com/relistan/rubberneck"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Mode               string        `envconfig:"MODE" default:"continuous"`
	LoggingLevel       string        `envconfig:"LEVEL" default:"info"`
	GenerationInterval time.Duration `envconfig:"GENERATION_INTERVAL" default:"1s"`
	BurstInterval      int           `envconfig:"BURST_INTERVAL" default:"10"`
	Namespace          string        `envconfig:"POD_NAMESPACE" default:"mock-logs"`
	PodName            string        `envconfig:"POD_NAME" default:"mock-log-generator"`
	NodeName           string        `envconfig:"NODE_NAME" default:"unknown-node"`
	KafkaBrokers       []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic         string        `envconfig:"KAFKA_TOPIC" default:"application-logs"`
	KafkaDialTimeout   time.Duration `envconfig:"KAFKA_DIAL_TIMEOUT" default:"10s"`
	PatternFile        string        `envconfig:"PATTERN_FILE"`
	RateLimit          int           `envconfig:"RATE_LIMIT" default:"0"`
	StatsURL           string        `envconfig:"STATS_URL"`
	StatsInsertKey     string        `envconfig:"STATS_INSERT_KEY"`
	StatusAddress      string        `envconfig:"STATUS_ADDRESS" default:":8080"`
}

var (
	modeFlag     = flag.String("mode", "", "Generation mode: continuous or test (overrides LOG_MODE)")
	brokerFlag   = flag.String("kafka-broker", "", "Kafka broker address (overrides KAFKA_BROKERS)")
	topicFlag    = flag.String("topic", "", "Kafka topic to publish to (overrides KAFKA_TOPIC)")
	dumpPatterns = flag.String("dump-patterns", "", "Write the active pattern catalog to this path and exit")
)

// applyFlagOverrides copies command line settings over the environment
// config. Flags win when both are set.
func applyFlagOverrides(config *Config, mode string, broker string, topic string) {
	if mode != "" {
		config.Mode = mode
	}

	if broker != "" {
		config.KafkaBrokers = strings.Split(broker, ",")
	}

	if topic != "" {
		config.KafkaTopic = topic
	}
}

// configureLoggingLevel sets the stderr logging level. Record levels are
// unrelated, they come from the patterns.
func configureLoggingLevel(levelName string) error {
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("invalid logging level '%s': %s", levelName, err)
	}

	log.SetLevel(level)

	return nil
}

// configureSink picks where records go: a Kafka producer when brokers are
// configured, otherwise stdout for a node-level collector to pick up
func configureSink(config *Config) (Sink, error) {
	if len(config.KafkaBrokers) > 0 {
		return NewKafkaSink(config.KafkaBrokers, config.KafkaTopic, config.KafkaDialTimeout)
	}

	log.Info("No Kafka brokers configured, publishing to stdout")

	return NewStreamSink(os.Stdout), nil
}

// handleSignals catches SIGINT and SIGTERM so Kubernetes can stop the
// generator cleanly
func handleSignals(gen *Generator) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Infof("Received %s, shutting down...", sig)
		gen.Stop()
	}()
}

func main() {
	flag.Parse()

	// Records own stdout, everything we say goes to stderr
	log.SetOutput(os.Stderr)

	var config Config
	err := envconfig.Process("log", &config)
	if err != nil {
		log.Fatal(err.Error())
	}

	applyFlagOverrides(&config, *modeFlag, *brokerFlag, *topicFlag)

	err = configureLoggingLevel(config.LoggingLevel)
	if err != nil {
		log.Fatal(err.Error())
	}

	rubberneck.Print(config)

	if config.Mode != ModeContinuous && config.Mode != ModeTest {
		log.Fatalf("Invalid mode '%s', must be '%s' or '%s'", config.Mode, ModeContinuous, ModeTest)
	}

	if config.BurstInterval < 1 {
		log.Fatalf("Burst interval must be positive, got %d", config.BurstInterval)
	}

	patterns := catalog.Default()
	if config.PatternFile != "" {
		err = patterns.Load(config.PatternFile)
		if err != nil {
			log.Fatal(err.Error())
		}

		log.Infof("Merged patterns from %s, %d patterns active", config.PatternFile, patterns.Len())
	}

	if *dumpPatterns != "" {
		err = patterns.Persist(*dumpPatterns)
		if err != nil {
			log.Fatal(err.Error())
		}

		log.Infof("Wrote %d patterns to %s", patterns.Len(), *dumpPatterns)
		return
	}

	sink, err := configureSink(&config)
	if err != nil {
		log.Fatal(err.Error())
	}

	rptr := reporter.NewEmissionReporter(config.StatsURL, config.StatsInsertKey)
	if config.StatsURL != "" {
		rptr.Run()
	}

	if config.RateLimit > 0 {
		sink = NewRateLimitedSink(rptr, config.RateLimit, 1*time.Second, sink)
	}

	synth := NewSynthesizer(patterns, config.Namespace, config.NodeName, config.Mode == ModeTest)
	gen := NewGenerator(
		config.Mode, patterns, synth, sink, rptr,
		config.GenerationInterval, config.BurstInterval,
	)

	gen.ServeHTTP(config.StatusAddress)
	handleSignals(gen)

	log.Infof("Starting mock log generator in namespace: %s", config.Namespace)
	log.Infof("  Pod name: %s", config.PodName)
	log.Infof("  Node name: %s", config.NodeName)

	switch config.Mode {
	case ModeTest:
		log.Info("Running in E2E test mode - will generate prioritized test patterns")
		gen.RunTestPass()
	case ModeContinuous:
		go gen.RunContinuous()

		err = gen.Wait()
		if err != nil {
			log.Error(err.Error())
		}
	}

	err = sink.Close()
	if err != nil {
		log.Errorf("Failed to close sink: %s", err)
	}

	log.Info("Generator shut down cleanly")
}
