package main

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/log-monitoring/log-generator/catalog"
)

// Services is the roster of fake workloads that records are attributed to.
// The downstream e2e rules match on these names, so the list is fixed.
var Services = []string{
	"payment-service", "user-service", "database-service",
	"authentication-api", "inventory-service", "notification-service",
	"order-service", "shipping-service", "billing-service", "audit-service",
	"checkout-service", "email-service", "redis-cache", "message-queue",
}

var (
	patternLevels = []string{"ERROR", "WARN", "INFO", "FATAL"}
	normalLevels  = []string{"INFO", "DEBUG"}
	podSuffixes   = []string{"abc", "def", "xyz"}
)

type patternOverride struct {
	Level   string
	Service string
}

// testOverrides pin the level and service for the patterns the e2e suite
// asserts on exactly. These take effect after the usual random selection and
// only when running in test mode. Note high_warn_rate deliberately lands on
// user-service even though that pattern normally rotates through the order
// fleet, because that is the fixture the e2e suite was written against.
var testOverrides = map[string]patternOverride{
	"high_error_rate":         {Level: "ERROR", Service: "payment-service"},
	"high_warn_rate":          {Level: "WARN", Service: "user-service"},
	"database_errors":         {Level: "FATAL", Service: "database-service"},
	"authentication_failures": {Level: "ERROR", Service: "authentication-api"},
}

// A Synthesizer fabricates LogEntry records that look like they were scraped
// off a real OpenShift cluster. It is driven from a single goroutine by the
// Generator and is not safe for concurrent use.
type Synthesizer struct {
	Namespace string
	NodeName  string
	TestMode  bool

	patterns *catalog.Catalog
	rnd      *rand.Rand
}

// NewSynthesizer returns a Synthesizer over the given pattern catalog,
// stamping records with the configured namespace and node name.
func NewSynthesizer(patterns *catalog.Catalog, namespace, nodeName string, testMode bool) *Synthesizer {
	return &Synthesizer{
		Namespace: namespace,
		NodeName:  nodeName,
		TestMode:  testMode,
		patterns:  patterns,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Record builds the common envelope for a record from the given service and
// level: timestamps, classification fields, and a freshly invented pod
// identity. The message and raw fields are left for the caller.
func (s *Synthesizer) Record(service, level string) *LogEntry {
	// Spread records over our own namespace plus the usual cluster ones
	namespace := s.choice([]string{s.Namespace, "production", "staging", "development"})
	podID := fmt.Sprintf("%s-%d-%s", service, s.intBetween(10000, 99999), s.choice(podSuffixes))

	now := utcTimestamp()

	return &LogEntry{
		Timestamp:   now,
		AtTimestamp: now,
		Level:       level,
		Service:     service,
		Namespace:   namespace,
		Host:        s.NodeName,
		Hostname:    s.NodeName,
		LogSource:   "application",
		LogType:     "structured",
		Kubernetes: KubernetesInfo{
			Namespace:     namespace,
			NamespaceName: namespace,
			Pod:           podID,
			PodName:       podID,
			Container:     service,
			ContainerName: service,
			Labels: map[string]string{
				"app":          service,
				"version":      fmt.Sprintf("v%d.%d.%d", s.intBetween(1, 3), s.intBetween(0, 9), s.intBetween(0, 9)),
				"environment":  namespace,
				"component":    componentFor(service),
				"generated-by": "mock-log-generator",
			},
			Annotations: map[string]string{
				"deployment.kubernetes.io/revision":                strconv.Itoa(s.intBetween(1, 10)),
				"kubectl.kubernetes.io/last-applied-configuration": "{...}",
				"openshift.io/generated-by":                        "OpenShiftNewApp",
			},
			ContainerID: "cri-o://" + s.randHex(12),
			PodIP:       fmt.Sprintf("10.%d.%d.%d", s.intBetween(128, 255), s.intBetween(1, 254), s.intBetween(1, 254)),
			PodOwner:    fmt.Sprintf("ReplicaSet/%s-%s", service, s.randHex(8)),
		},
	}
}

// PatternRecord synthesizes one record for the named alert pattern: a service
// from the pattern's roster, the pattern's level when it pins one, and a
// message built around one of the pattern's keywords. Errors only when the
// pattern is unknown.
func (s *Synthesizer) PatternRecord(name string) (*LogEntry, error) {
	pattern := s.patterns.Get(name)
	if pattern == nil {
		return nil, fmt.Errorf("unknown pattern: %s", name)
	}

	service := s.choice(pattern.Services)

	level := pattern.Conditions.LogLevel
	if level == "" {
		level = s.choice(patternLevels)
	}

	if s.TestMode {
		if override, ok := testOverrides[name]; ok {
			if override.Level != "" {
				level = override.Level
			}
			if override.Service != "" {
				service = override.Service
			}
		}
	}

	entry := s.Record(service, level)

	keyword := s.choice(pattern.Keywords)
	entry.Message = s.patternMessage(name, service, keyword)
	entry.AttachRaw()

	return entry, nil
}

// NormalRecord synthesizes a benign record that no alert rule should match.
func (s *Synthesizer) NormalRecord() *LogEntry {
	service := s.choice(Services)
	entry := s.Record(service, s.choice(normalLevels))

	switch s.rnd.Intn(10) {
	case 0:
		entry.Message = fmt.Sprintf("Request processed successfully for user %d", s.intBetween(1000, 9999))
	case 1:
		entry.Message = fmt.Sprintf("Service %s started successfully", service)
	case 2:
		entry.Message = fmt.Sprintf("Database query completed in %dms", s.intBetween(10, 500))
	case 3:
		entry.Message = fmt.Sprintf("Cache hit for key user:%d", s.intBetween(1000, 9999))
	case 4:
		entry.Message = fmt.Sprintf("Health check passed for %s", service)
	case 5:
		entry.Message = fmt.Sprintf("Processing batch job with %d items", s.intBetween(10, 100))
	case 6:
		entry.Message = fmt.Sprintf("User session created for user %d", s.intBetween(1000, 9999))
	case 7:
		entry.Message = "Configuration loaded successfully"
	case 8:
		entry.Message = "Metrics published to monitoring system"
	case 9:
		entry.Message = "Background task completed successfully"
	}

	entry.AttachRaw()

	return entry
}

// patternMessage picks the contextual message template for a pattern. Test
// mode uses phrasings the e2e suite greps for; continuous mode uses the
// production-style ones. Patterns without a template, such as entries merged
// in from a pattern file, get a generic message that still carries a keyword.
func (s *Synthesizer) patternMessage(pattern, service, keyword string) string {
	var (
		message string
		found   bool
	)

	if s.TestMode {
		message, found = s.testMessage(pattern, keyword)
	} else {
		message, found = s.productionMessage(pattern, service, keyword)
	}

	if !found {
		return fmt.Sprintf("Service log: %s", keyword)
	}

	return message
}

func (s *Synthesizer) testMessage(pattern, keyword string) (string, bool) {
	switch pattern {
	case "high_error_rate":
		return fmt.Sprintf("Payment service error: %s - transaction processing failed for user %d", keyword, s.intBetween(1000, 9999)), true
	case "high_warn_rate":
		return fmt.Sprintf("User service warning: %s - memory usage approaching limits", keyword), true
	case "database_errors":
		return fmt.Sprintf("Database fatal error: %s - connection lost to primary database", keyword), true
	case "authentication_failures":
		return fmt.Sprintf("Authentication API error: %s - invalid token for user %d", keyword, s.intBetween(1000, 9999)), true
	case "checkout_payment_failed":
		return fmt.Sprintf("Checkout process: %s for order #%d", keyword, s.intBetween(10000, 99999)), true
	case "inventory_stock_unavailable":
		return fmt.Sprintf("Inventory alert: %s for item SKU-%d", keyword, s.intBetween(1000, 9999)), true
	case "email_smtp_failed":
		return fmt.Sprintf("Email service: %s while connecting to mail server", keyword), true
	case "redis_connection_refused":
		return fmt.Sprintf("Redis cache: %s - unable to establish connection", keyword), true
	case "message_queue_full":
		return fmt.Sprintf("Message queue: %s - broker capacity exceeded", keyword), true
	case "timeout_any_service":
		return fmt.Sprintf("Service operation: %s after 30 seconds waiting for response", keyword), true
	case "slow_query":
		return fmt.Sprintf("Database query: %s detected - execution time 2.5 seconds", keyword), true
	case "deadlock_detected":
		return fmt.Sprintf("Database transaction: %s between user operations", keyword), true
	}

	return "", false
}

func (s *Synthesizer) productionMessage(pattern, service, keyword string) (string, bool) {
	switch pattern {
	case "high_error_rate":
		return fmt.Sprintf("Service %s encountered an error: %s during request processing", service, keyword), true
	case "payment_failures":
		return fmt.Sprintf("Payment processing failed: %s for transaction ID %d", keyword, s.intBetween(10000, 99999)), true
	case "database_errors":
		return fmt.Sprintf("Database operation failed: %s on table users_table", keyword), true
	case "authentication_failures":
		return fmt.Sprintf("User authentication failed: %s for user ID %d", keyword, s.intBetween(1000, 9999)), true
	case "service_timeouts":
		return fmt.Sprintf("Service request timeout: %s after 30 seconds waiting for response", keyword), true
	case "critical_namespace_alerts":
		return fmt.Sprintf("Critical system failure: %s - immediate attention required", keyword), true
	case "inventory_warnings":
		return fmt.Sprintf("Inventory alert: %s for product SKU-%d", keyword, s.intBetween(1000, 9999)), true
	case "notification_failures":
		return fmt.Sprintf("Notification delivery failed: %s to user %d", keyword, s.intBetween(1000, 9999)), true
	case "high_warn_rate":
		return fmt.Sprintf("Performance warning: %s detected in service operation", keyword), true
	case "audit_issues":
		return fmt.Sprintf("Security audit issue: %s detected in user action", keyword), true
	case "cross_service_errors":
		return fmt.Sprintf("Service communication error: %s when calling downstream service", keyword), true
	case "checkout_payment_failed":
		return fmt.Sprintf("Checkout process failed: %s for order #%d", keyword, s.intBetween(10000, 99999)), true
	case "inventory_stock_unavailable":
		return fmt.Sprintf("Inventory management: %s for item SKU-%d", keyword, s.intBetween(1000, 9999)), true
	case "email_smtp_failed":
		return fmt.Sprintf("Email service error: %s while sending notification", keyword), true
	case "redis_connection_refused":
		return fmt.Sprintf("Cache service error: %s - unable to connect to Redis", keyword), true
	case "message_queue_full":
		return fmt.Sprintf("Message broker alert: %s - unable to enqueue message", keyword), true
	case "timeout_any_service":
		return fmt.Sprintf("Service operation: %s after waiting 30 seconds", keyword), true
	case "slow_query":
		return fmt.Sprintf("Database performance: %s detected - execution time exceeded threshold", keyword), true
	case "deadlock_detected":
		return fmt.Sprintf("Database concurrency issue: %s in transaction processing", keyword), true
	}

	return "", false
}

// componentFor derives the label component from the first segment of the
// service name, so payment-service and payment-gateway group together.
func componentFor(service string) string {
	return strings.SplitN(service, "-", 2)[0]
}

func (s *Synthesizer) choice(list []string) string {
	return list[s.rnd.Intn(len(list))]
}

// intBetween returns a uniform int in the inclusive range [lo, hi].
func (s *Synthesizer) intBetween(lo, hi int) int {
	return lo + s.rnd.Intn(hi-lo+1)
}

func (s *Synthesizer) randHex(chars int) string {
	buf := make([]byte, (chars+1)/2)
	_, _ = s.rnd.Read(buf)

	return hex.EncodeToString(buf)[:chars]
}
