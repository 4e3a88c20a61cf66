package reporter

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	director "github.com/relistan/go-director"
	log "github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewEmissionReporter(t *testing.T) {
	Convey("NewEmissionReporter() returns a properly configured struct", t, func() {
		url := "http://example.com"
		key := "mykey"
		reporter := NewEmissionReporter(url, key)

		So(reporter.BaseURL, ShouldEqual, url)
		So(reporter.InsertKey, ShouldEqual, key)
		So(reporter.ReportLooper, ShouldNotBeNil)
		So(len(reporter.hostname), ShouldBeGreaterThan, 0)
		So(reporter.client, ShouldNotBeNil)

		_, err := uuid.Parse(reporter.RunID)
		So(err, ShouldBeNil)
	})
}

func Test_Incr(t *testing.T) {
	Convey("Incr() and IncrDropped() increment their counts", t, func() {
		reporter := NewEmissionReporter("http://example.com", "mykey")

		reporter.Incr()
		reporter.Incr()
		reporter.IncrDropped()

		So(reporter.emittedCount, ShouldEqual, 2)
		So(reporter.droppedCount, ShouldEqual, 1)
	})
}

func Test_Run(t *testing.T) {
	Convey("Run()", t, func() {
		Reset(func() {
			httpmock.DeactivateAndReset()
			log.SetOutput(io.Discard)
		})

		capture := &bytes.Buffer{}
		log.SetOutput(capture)

		url := "http://example.com"
		key := "mykey"
		reporter := NewEmissionReporter(url, key)
		httpmock.ActivateNonDefault(reporter.client)

		reporter.Incr()
		reporter.Incr()
		reporter.IncrDropped()

		reporter.ReportLooper = director.NewFreeLooper(1, make(chan error))

		fullURL := url + "/events"

		var (
			hasHeader bool
			sentEvent struct {
				RunID        string
				EmittedCount uint64
				DroppedCount uint64
				EventType    string `json:"eventType"`
			}
		)

		httpmock.RegisterResponder("POST", fullURL, func(req *http.Request) (*http.Response, error) {
			if req.Header["X-Insert-Key"][0] == key {
				hasHeader = true
			}
			_ = json.NewDecoder(req.Body).Decode(&sentEvent)
			return httpmock.NewStringResponse(200, `OK`), nil
		})

		Convey("Resets the counters", func() {
			So(reporter.emittedCount, ShouldEqual, 2)
			So(reporter.droppedCount, ShouldEqual, 1)
			reporter.Run()

			err := reporter.ReportLooper.Wait()
			So(err, ShouldBeNil)
			So(reporter.emittedCount, ShouldEqual, 0)
			So(reporter.droppedCount, ShouldEqual, 0)
		})

		Convey("Sends the event", func() {
			reporter.Run()
			err := reporter.ReportLooper.Wait()
			So(err, ShouldBeNil)

			httpmock.GetTotalCallCount()

			info := httpmock.GetCallCountInfo()
			So(info["POST "+fullURL], ShouldEqual, 1)
			So(hasHeader, ShouldBeTrue)
			So(sentEvent.RunID, ShouldEqual, reporter.RunID)
			So(sentEvent.EmittedCount, ShouldEqual, 2)
			So(sentEvent.DroppedCount, ShouldEqual, 1)
			So(sentEvent.EventType, ShouldEqual, "LogGeneratorEmissionStats")
		})

		Convey("Doesn't send an event if the counts are 0", func() {
			Reset(func() {
				// Don't interfere with the other tests
				reporter.Incr()
				reporter.Incr()
				reporter.IncrDropped()
			})
			reporter.emittedCount = 0
			reporter.droppedCount = 0
			reporter.Run()
			err := reporter.ReportLooper.Wait()
			So(err, ShouldBeNil)

			httpmock.GetTotalCallCount()

			info := httpmock.GetCallCountInfo()
			So(info["POST "+fullURL], ShouldEqual, 0)
		})

		Convey("Handles errors when the stats endpoint is broken", func() {
			httpmock.RegisterResponder("POST", fullURL, func(req *http.Request) (*http.Response, error) {
				return httpmock.NewStringResponse(503, `Uh-oh`), nil
			})

			reporter.Run()
			err := reporter.ReportLooper.Wait()
			So(err, ShouldBeNil)

			So(capture.String(), ShouldContainSubstring, "Uh-oh")

			httpmock.GetTotalCallCount()

			info := httpmock.GetCallCountInfo()
			So(info["POST "+fullURL], ShouldEqual, 1)
		})
	})
}
