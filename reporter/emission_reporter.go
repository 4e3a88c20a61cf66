package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	cleanhttp "github.com/hashicorp/go-cleanhttp"
	loghttp "github.com/motemen/go-loghttp"
	director "github.com/relistan/go-director"
	log "github.com/sirupsen/logrus"
)

// An EmissionReporter tracks how many records the generator has published
// and how many were dropped on the floor, and ships the counts to a stats
// endpoint on a 1 minute basis so demo clusters are easy to eyeball.
type EmissionReporter struct {
	client    *http.Client
	BaseURL   string
	InsertKey string
	RunID     string

	emittedCount uint64
	droppedCount uint64
	ReportLooper director.Looper
	hostname     string
}

// NewEmissionReporter returns a properly configured reporter with a fresh
// run ID. The ID ties all events from one generator process together.
func NewEmissionReporter(url, insertKey string) *EmissionReporter {
	client := cleanhttp.DefaultClient()

	if log.IsLevelEnabled(log.DebugLevel) {
		client.Transport = &loghttp.Transport{
			LogRequest: func(req *http.Request) {
				log.Debugf("---> %s %s", req.Method, req.URL)
			},
			LogResponse: func(resp *http.Response) {
				log.Debugf("<--- %d %s", resp.StatusCode, resp.Request.URL)
			},
			Transport: client.Transport,
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatal("Unable to determine hostname! Can't continue")
	}

	return &EmissionReporter{
		client:       client,
		BaseURL:      url,
		InsertKey:    insertKey,
		RunID:        uuid.New().String(),
		ReportLooper: director.NewTimedLooper(director.FOREVER, 1*time.Minute, make(chan error)),
		hostname:     hostname,
	}
}

// Incr atomically increments the published record count
func (r *EmissionReporter) Incr() {
	atomic.AddUint64(&r.emittedCount, 1)
}

// IncrDropped atomically increments the dropped record count
func (r *EmissionReporter) IncrDropped() {
	atomic.AddUint64(&r.droppedCount, 1)
}

// Run starts up a background goroutine that reports the counters on a 1
// minute basis
func (r *EmissionReporter) Run() {
	log.Infof("Starting up emission reporter for run '%s'", r.RunID)

	url := fmt.Sprintf("%s/events", r.BaseURL)

	go r.ReportLooper.Loop(func() error {
		// Get the current counts, subtract them from the totals using
		// atomic operations. This makes sure we don't lose any increments.
		emitted := atomic.LoadUint64(&r.emittedCount)
		atomic.AddUint64(&r.emittedCount, 0-emitted)

		dropped := atomic.LoadUint64(&r.droppedCount)
		atomic.AddUint64(&r.droppedCount, 0-dropped)

		if emitted > 0 || dropped > 0 {
			err := r.sendEvent(url, emitted, dropped)
			// We _don't_ want to exit on error
			if err != nil {
				log.Errorf("Error reporting emission stats: %s", err)
			}
		}

		return nil
	})
}

// sendEvent serializes JSON and sends it to the stats endpoint
func (r *EmissionReporter) sendEvent(url string, emitted, dropped uint64) error {
	data, err := json.Marshal(struct {
		Time         string
		Hostname     string
		RunID        string
		EmittedCount uint64
		DroppedCount uint64
		EventType    string `json:"eventType"`
	}{
		Time:         time.Now().UTC().Format(time.RFC3339),
		Hostname:     r.hostname,
		RunID:        r.RunID,
		EmittedCount: emitted,
		DroppedCount: dropped,
		EventType:    "LogGeneratorEmissionStats",
	})
	if err != nil {
		return fmt.Errorf("Unable to encode JSON event: %s", err)
	}

	buf := bytes.NewBuffer(data)
	req, err := http.NewRequest("POST", url, buf)
	if err != nil {
		return fmt.Errorf("Unable to create http request: %s", err)
	}
	if r.InsertKey != "" {
		req.Header.Add("X-Insert-Key", r.InsertKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("Failed making HTTP request to stats endpoint: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Bad response from stats endpoint: %s", string(body))
	}

	return nil
}
