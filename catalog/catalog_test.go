package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func Test_Default(t *testing.T) {
	Convey("Default()", t, func() {
		patterns := Default()

		Convey("contains the full supported pattern table", func() {
			So(patterns.Len(), ShouldEqual, 19)
			So(patterns.Get("high_error_rate"), ShouldNotBeNil)
			So(patterns.Get("cross_service_errors"), ShouldNotBeNil)
			So(patterns.Get("nonsense_pattern"), ShouldBeNil)
		})

		Convey("every pattern can actually be synthesized from", func() {
			for _, name := range patterns.Names() {
				pattern := patterns.Get(name)
				So(len(pattern.Keywords), ShouldBeGreaterThan, 0)
				So(len(pattern.Services), ShouldBeGreaterThan, 0)
				So(pattern.Conditions.Threshold, ShouldBeGreaterThan, 0)
			}
		})

		Convey("single-service patterns carry the expected definitions", func() {
			redis := patterns.Get("redis_connection_refused")
			So(redis.Conditions.Service, ShouldEqual, "redis-cache")
			So(redis.Conditions.Threshold, ShouldEqual, 1)
			So(redis.Keywords, ShouldResemble, []string{
				"connection refused", "redis unavailable", "cache connection failed",
			})
			So(redis.Services, ShouldResemble, []string{"redis-cache"})
		})

		Convey("level-pinned patterns carry their condition level", func() {
			So(patterns.Get("high_error_rate").Conditions.LogLevel, ShouldEqual, "ERROR")
			So(patterns.Get("high_error_rate").Conditions.Threshold, ShouldEqual, 10)
			So(patterns.Get("high_error_rate").Conditions.TimeWindow, ShouldEqual, 300)
			So(patterns.Get("high_warn_rate").Conditions.LogLevel, ShouldEqual, "WARN")
			So(patterns.Get("critical_namespace_alerts").Conditions.LogLevel, ShouldEqual, "CRITICAL")
		})

		Convey("Names() is sorted", func() {
			names := patterns.Names()
			So(len(names), ShouldEqual, 19)
			So(sort.StringsAreSorted(names), ShouldBeTrue)
		})
	})
}

func Test_LoadAndPersist(t *testing.T) {
	Convey("Working with persisted catalogs", t, func() {
		patternFile, err := os.CreateTemp("", "patterns*.json")
		So(err, ShouldBeNil)
		Reset(func() { os.Remove(patternFile.Name()) })

		Convey("a catalog can write and reload from disk", func() {
			origCatalog := Default()
			err := origCatalog.Persist(patternFile.Name())
			So(err, ShouldBeNil)

			newCatalog := New()
			err = newCatalog.Load(patternFile.Name())
			So(err, ShouldBeNil)

			So(newCatalog.Len(), ShouldEqual, origCatalog.Len())
			So(newCatalog.Get("deadlock_detected"), ShouldResemble, origCatalog.Get("deadlock_detected"))
		})

		Convey("loading merges over existing entries", func() {
			err := os.WriteFile(patternFile.Name(), []byte(`{
				"redis_connection_refused": {
					"conditions": {"service": "redis-cache", "threshold": 3},
					"keywords": ["connection refused"],
					"services": ["redis-cache"]
				},
				"disk_pressure": {
					"conditions": {"log_level": "WARN", "threshold": 4},
					"keywords": ["disk pressure", "volume full"],
					"services": ["database-service"]
				}
			}`), 0644)
			So(err, ShouldBeNil)

			patterns := Default()
			err = patterns.Load(patternFile.Name())
			So(err, ShouldBeNil)

			So(patterns.Len(), ShouldEqual, 20)
			So(patterns.Get("redis_connection_refused").Conditions.Threshold, ShouldEqual, 3)
			So(patterns.Get("disk_pressure").Keywords, ShouldResemble, []string{"disk pressure", "volume full"})
		})
	})
}

func Test_Load(t *testing.T) {
	Convey("Load()", t, func() {
		Convey("errors when the file can't be read", func() {
			patterns := New()

			err := patterns.Load("/does/not/exist")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to load patterns from /does/not/exist")
		})

		Convey("errors when the file can't be parsed", func() {
			patternFile, err := os.CreateTemp("", "patterns*.json")
			So(err, ShouldBeNil)
			Reset(func() { os.Remove(patternFile.Name()) })

			err = os.WriteFile(patternFile.Name(), []byte("not json"), 0644)
			So(err, ShouldBeNil)

			patterns := New()
			err = patterns.Load(patternFile.Name())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to parse patterns from")
		})

		Convey("errors when a pattern has no keywords", func() {
			patternFile, err := os.CreateTemp("", "patterns*.json")
			So(err, ShouldBeNil)
			Reset(func() { os.Remove(patternFile.Name()) })

			err = os.WriteFile(patternFile.Name(), []byte(
				`{"broken": {"conditions": {"threshold": 1}, "keywords": [], "services": ["payment-service"]}}`,
			), 0644)
			So(err, ShouldBeNil)

			patterns := New()
			err = patterns.Load(patternFile.Name())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, `pattern "broken"`)
			So(err.Error(), ShouldContainSubstring, "no keywords")
		})

		Convey("errors when a pattern has no services", func() {
			patternFile, err := os.CreateTemp("", "patterns*.json")
			So(err, ShouldBeNil)
			Reset(func() { os.Remove(patternFile.Name()) })

			err = os.WriteFile(patternFile.Name(), []byte(
				`{"broken": {"conditions": {"threshold": 1}, "keywords": ["boom"], "services": []}}`,
			), 0644)
			So(err, ShouldBeNil)

			patterns := New()
			err = patterns.Load(patternFile.Name())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no services")
		})
	})
}

func Test_Persist(t *testing.T) {
	Convey("Persist()", t, func() {
		Convey("errors when the file can't be written", func() {
			patterns := Default()

			err := patterns.Persist(filepath.Join("/does/not/exist", "patterns.json"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to persist patterns to")
		})
	})
}
