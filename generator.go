package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/log-monitoring/log-generator/catalog"
	"github.com/log-monitoring/log-generator/reporter"
	director "github.com/relistan/go-director"
	log "github.com/sirupsen/logrus"
)

const (
	ModeContinuous = "continuous"
	ModeTest       = "test"
)

// prioritizedPatterns is the order the e2e suite asserts patterns in. These
// go first during a test pass so the suite can start matching before the
// whole pass has finished.
var prioritizedPatterns = []string{
	"high_error_rate",
	"high_warn_rate",
	"database_errors",
	"authentication_failures",
	"checkout_payment_failed",
	"inventory_stock_unavailable",
	"email_smtp_failed",
	"redis_connection_refused",
	"message_queue_full",
	"timeout_any_service",
	"slow_query",
	"deadlock_detected",
}

// A Generator orchestrates the synthesizer and the sink: it decides when
// records are made and paces them out, either as a continuous trickle with
// periodic bursts or as a one-shot pass over every pattern.
type Generator struct {
	Mode string

	patterns *catalog.Catalog
	synth    *Synthesizer
	sink     Sink
	rptr     *reporter.EmissionReporter
	looper   director.Looper

	generationInterval time.Duration
	burstInterval      int

	// Pacing knobs, fixed in production and shortened in tests
	burstPacing    time.Duration
	burstCooldown  time.Duration
	errorBackoff   time.Duration
	testPatternGap time.Duration

	running atomic.Bool

	cycles         uint64
	normalEmitted  uint64
	patternEmitted map[string]uint64
	statsLock      sync.RWMutex
}

// NewGenerator configures a Generator for use, assigning the synthesizer and
// sink it will drive and making sure the stats map is made.
func NewGenerator(mode string, patterns *catalog.Catalog, synth *Synthesizer, sink Sink,
	rptr *reporter.EmissionReporter, generationInterval time.Duration, burstInterval int) *Generator {

	return &Generator{
		Mode:               mode,
		patterns:           patterns,
		synth:              synth,
		sink:               sink,
		rptr:               rptr,
		looper:             director.NewFreeLooper(director.FOREVER, make(chan error)),
		generationInterval: generationInterval,
		burstInterval:      burstInterval,
		burstPacing:        100 * time.Millisecond,
		burstCooldown:      5 * time.Second,
		errorBackoff:       10 * time.Second,
		testPatternGap:     1 * time.Second,
		patternEmitted:     make(map[string]uint64, 20),
	}
}

// EmitBurst publishes a run of records for the named pattern, enough to trip
// the matching alert rule. A count below 1 means size it automatically:
// always 2 in test mode, where every rule runs with threshold 1, otherwise
// the pattern's own threshold plus a small buffer.
func (g *Generator) EmitBurst(name string, count int) error {
	pattern := g.patterns.Get(name)
	if pattern == nil {
		return fmt.Errorf("unknown pattern: %s", name)
	}

	if count < 1 {
		count = g.burstSize(pattern)
	}

	log.Infof("Generating %d logs for pattern: %s", count, name)

	for i := 0; i < count; i++ {
		entry, err := g.synth.PatternRecord(name)
		if err != nil {
			return err
		}

		if g.publish(entry) {
			g.countPattern(name)
		}

		// Small delay between logs in a burst
		time.Sleep(g.burstPacing)
	}

	return nil
}

// RunContinuous drives the steady-state behavior: a trickle of normal
// records with an alert-tripping burst every burstInterval-th cycle. Blocks
// until Stop() is called.
func (g *Generator) RunContinuous() {
	log.Infof(
		"Starting continuous log generation (interval: %s, burst_interval: %d)",
		g.generationInterval, g.burstInterval,
	)

	g.running.Store(true)

	g.looper.Loop(func() error {
		err := g.cycle()
		// A bad cycle gets logged and backed off, never kills the loop
		if err != nil {
			log.Errorf("Error in continuous generation: %s", err)
			time.Sleep(g.errorBackoff)
		}

		return nil
	})
}

// cycle is one round of continuous generation: five normal records at the
// generation interval, then every burstInterval-th time through, a burst for
// a randomly chosen pattern followed by a cooldown.
func (g *Generator) cycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()

	for i := 0; i < 5; i++ {
		if !g.running.Load() {
			return nil
		}

		if g.publish(g.synth.NormalRecord()) {
			g.countNormal()
		}
		time.Sleep(g.generationInterval)
	}

	if g.bumpCycles()%uint64(g.burstInterval) == 0 {
		name := g.synth.choice(g.patterns.Names())

		err := g.EmitBurst(name, 0)
		if err != nil {
			return err
		}

		// Let the burst land before resuming normal generation
		time.Sleep(g.burstCooldown)
	}

	return nil
}

// RunTestPass bursts every pattern once: the prioritized e2e set first in
// fixed order, then whatever else the catalog holds. One pass, then returns.
func (g *Generator) RunTestPass() {
	log.Infof("Testing all %d alert patterns...", g.patterns.Len())

	g.running.Store(true)

	prioritized := make(map[string]bool, len(prioritizedPatterns))
	for _, name := range prioritizedPatterns {
		prioritized[name] = true
	}

	for _, name := range prioritizedPatterns {
		if !g.running.Load() {
			return
		}
		if g.patterns.Get(name) == nil {
			continue
		}

		log.Infof("Testing e2e pattern: %s", name)
		err := g.EmitBurst(name, 0)
		if err != nil {
			log.Errorf("Failed to emit burst for %s: %s", name, err)
		}
		time.Sleep(g.testPatternGap)
	}

	remaining := make(map[string]bool, g.patterns.Len())
	for _, name := range g.patterns.Names() {
		if !prioritized[name] {
			remaining[name] = true
		}
	}

	for name := range remaining {
		if !g.running.Load() {
			return
		}

		log.Infof("Testing additional pattern: %s", name)
		err := g.EmitBurst(name, 0)
		if err != nil {
			log.Errorf("Failed to emit burst for %s: %s", name, err)
		}
		time.Sleep(g.testPatternGap)
	}

	log.Info("All pattern tests completed")
}

// Stop flags the drivers to wind down and quits the continuous loop
func (g *Generator) Stop() {
	log.Info("Stopping generator...")
	g.running.Store(false)
	g.looper.Quit()
}

// Wait blocks until the continuous loop has shut down
func (g *Generator) Wait() error {
	return g.looper.Wait()
}

// publish sends one record to the sink. Failures are logged and counted as
// drops so the drivers keep going.
func (g *Generator) publish(entry *LogEntry) bool {
	err := g.sink.Publish(entry)
	if err != nil {
		log.Errorf("Failed to publish record: %s", err)
		g.rptr.IncrDropped()
		return false
	}

	g.rptr.Incr()

	return true
}

// burstSize picks how many records one burst needs to reliably cross the
// pattern's alert threshold
func (g *Generator) burstSize(pattern *catalog.Pattern) int {
	if g.Mode == ModeTest {
		return 2
	}

	threshold := pattern.Conditions.Threshold
	if threshold < 1 {
		threshold = 5
	}

	return threshold + g.synth.intBetween(1, 3)
}

func (g *Generator) countNormal() {
	g.withLock(func() { g.normalEmitted++ })
}

func (g *Generator) countPattern(name string) {
	g.withLock(func() { g.patternEmitted[name]++ })
}

func (g *Generator) bumpCycles() uint64 {
	var cycles uint64
	g.withLock(func() {
		g.cycles++
		cycles = g.cycles
	})

	return cycles
}

func (g *Generator) withReadLock(fn func()) {
	g.statsLock.RLock()
	fn()
	g.statsLock.RUnlock()
}

func (g *Generator) withLock(fn func()) {
	g.statsLock.Lock()
	fn()
	g.statsLock.Unlock()
}

// generatorState is what /state serves, for debugging a running deployment
type generatorState struct {
	Mode           string            `json:"mode"`
	Running        bool              `json:"running"`
	Cycles         uint64            `json:"cycles"`
	NormalEmitted  uint64            `json:"normal_emitted"`
	PatternEmitted map[string]uint64 `json:"pattern_emitted"`
}

func (g *Generator) stateHandler(w http.ResponseWriter, r *http.Request) {
	var current generatorState

	g.withReadLock(func() {
		emitted := make(map[string]uint64, len(g.patternEmitted))
		for name, count := range g.patternEmitted {
			emitted[name] = count
		}

		current = generatorState{
			Mode:           g.Mode,
			Running:        g.running.Load(),
			Cycles:         g.cycles,
			NormalEmitted:  g.normalEmitted,
			PatternEmitted: emitted,
		}
	})

	// Set the Content-Type header.
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(current)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (g *Generator) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

// ServeHTTP starts a background state server so the Deployment has a
// liveness surface and something to point a browser at.
func (g *Generator) ServeHTTP(address string) {
	go func() {
		// Set up the routes and handlers.
		http.HandleFunc("/state", g.stateHandler)
		http.HandleFunc("/health", g.healthHandler)

		// Start the server.
		log.Infof("State server starting on %s...", address)
		err := http.ListenAndServe(address, nil)
		if err != nil {
			log.Error(err.Error())
		}
	}()
}
