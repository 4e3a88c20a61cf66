package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Conditions describe what the downstream alert engine counts before a
// pattern is considered firing. The generator only reads LogLevel (to pin
// record levels) and Threshold (to size bursts); the rest is carried so a
// persisted catalog stays usable as rule-engine input.
type Conditions struct {
	LogLevel   string   `json:"log_level,omitempty"`
	Service    string   `json:"service,omitempty"`
	Namespace  string   `json:"namespace,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Threshold  int      `json:"threshold"`
	TimeWindow int      `json:"time_window,omitempty"`
}

// A Pattern is one named alert shape: the conditions the consumer matches on,
// the keyword phrases that make a message match, and the services allowed to
// emit it.
type Pattern struct {
	Conditions Conditions `json:"conditions"`
	Keywords   []string   `json:"keywords"`
	Services   []string   `json:"services"`
}

// A Catalog is the lookup table of alert patterns the generator can fabricate
// records for. It is assembled once at startup and read-only afterward, so
// unlike a runtime cache it carries no locking.
type Catalog struct {
	patterns map[string]*Pattern
}

// New returns an empty Catalog ready to be loaded from a file.
func New() *Catalog {
	return &Catalog{patterns: make(map[string]*Pattern, 20)}
}

// Get returns the named pattern, or nil when we don't know it.
func (c *Catalog) Get(name string) *Pattern {
	return c.patterns[name]
}

// Names returns all pattern names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.patterns))
	for name := range c.patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (c *Catalog) Len() int {
	return len(c.patterns)
}

// Load merges pattern definitions from a JSON file over the current table.
// This is how the generator is kept in sync with an externally-managed rule
// config without a rebuild. Entries must carry at least one keyword and one
// service or the synthesizer would have nothing to select from.
func (c *Catalog) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load patterns from %s: %s", path, err)
	}

	loaded := make(map[string]*Pattern)
	err = json.Unmarshal(data, &loaded)
	if err != nil {
		return fmt.Errorf("failed to parse patterns from %s: %s", path, err)
	}

	for name, pattern := range loaded {
		if len(pattern.Keywords) < 1 {
			return fmt.Errorf("pattern %q from %s has no keywords", name, path)
		}
		if len(pattern.Services) < 1 {
			return fmt.Errorf("pattern %q from %s has no services", name, path)
		}
		c.patterns[name] = pattern
	}

	return nil
}

// Persist writes the active table out as JSON, the same shape Load reads.
// Used to dump the built-in catalog as a starting template for hand edits.
func (c *Catalog) Persist(path string) error {
	data, err := json.MarshalIndent(c.patterns, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal patterns: %s", err)
	}

	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to persist patterns to %s: %s", path, err)
	}

	return nil
}

// Default returns the built-in table of the 19 alert patterns the downstream
// engine supports. Thresholds and keywords mirror the e2e rule config so a
// burst sized off a threshold here reliably trips the matching rule there.
func Default() *Catalog {
	return &Catalog{patterns: map[string]*Pattern{
		"high_error_rate": {
			Conditions: Conditions{LogLevel: "ERROR", Threshold: 10, TimeWindow: 300},
			Keywords:   []string{"error", "failed", "exception", "timeout"},
			Services:   []string{"payment-service", "user-service", "database-service"},
		},
		"payment_failures": {
			Conditions: Conditions{Service: "payment-service", Keywords: []string{"payment failed"}, Threshold: 5},
			Keywords:   []string{"payment failed", "transaction declined", "payment timeout"},
			Services:   []string{"payment-service"},
		},
		"database_errors": {
			Conditions: Conditions{Service: "database-service", LogLevel: "ERROR", Threshold: 3},
			Keywords:   []string{"connection refused", "deadlock detected", "query timeout"},
			Services:   []string{"database-service"},
		},
		"authentication_failures": {
			Conditions: Conditions{Service: "authentication-api", Keywords: []string{"authentication failed"}, Threshold: 10},
			Keywords:   []string{"authentication failed", "invalid credentials", "token expired"},
			Services:   []string{"authentication-api"},
		},
		"service_timeouts": {
			Conditions: Conditions{Keywords: []string{"timeout"}, Threshold: 5, TimeWindow: 300},
			Keywords:   []string{"timeout", "connection timeout", "request timeout", "gateway timeout"},
			Services:   []string{"payment-service", "user-service", "inventory-service"},
		},
		"critical_namespace_alerts": {
			Conditions: Conditions{Namespace: "production", LogLevel: "CRITICAL", Threshold: 1},
			Keywords:   []string{"critical", "fatal", "emergency", "disaster"},
			Services:   []string{"order-service", "payment-service", "user-service"},
		},
		"inventory_warnings": {
			Conditions: Conditions{Service: "inventory-service", LogLevel: "WARN", Threshold: 15},
			Keywords:   []string{"low stock", "inventory warning", "stock alert", "out of stock"},
			Services:   []string{"inventory-service"},
		},
		"notification_failures": {
			Conditions: Conditions{Service: "notification-service", Keywords: []string{"notification failed"}, Threshold: 8},
			Keywords:   []string{"notification failed", "email failed", "sms failed", "push notification failed"},
			Services:   []string{"notification-service"},
		},
		"high_warn_rate": {
			Conditions: Conditions{LogLevel: "WARN", Threshold: 25, TimeWindow: 600},
			Keywords:   []string{"warning", "deprecated", "slow response", "performance"},
			Services:   []string{"order-service", "shipping-service", "billing-service"},
		},
		"audit_issues": {
			Conditions: Conditions{Service: "audit-service", Keywords: []string{"audit"}, Threshold: 5},
			Keywords:   []string{"audit trail", "security audit", "access violation", "unauthorized access"},
			Services:   []string{"audit-service"},
		},
		"checkout_payment_failed": {
			Conditions: Conditions{Service: "checkout-service", Keywords: []string{"payment failed"}, Threshold: 1},
			Keywords:   []string{"payment failed", "payment declined", "checkout failed"},
			Services:   []string{"checkout-service"},
		},
		"inventory_stock_unavailable": {
			Conditions: Conditions{Service: "inventory-service", Keywords: []string{"stock unavailable"}, Threshold: 1},
			Keywords:   []string{"stock unavailable", "out of stock", "inventory depleted"},
			Services:   []string{"inventory-service"},
		},
		"email_smtp_failed": {
			Conditions: Conditions{Service: "email-service", Keywords: []string{"SMTP connection failed"}, Threshold: 1},
			Keywords:   []string{"SMTP connection failed", "email server down", "mail delivery failed"},
			Services:   []string{"email-service"},
		},
		"redis_connection_refused": {
			Conditions: Conditions{Service: "redis-cache", Keywords: []string{"connection refused"}, Threshold: 1},
			Keywords:   []string{"connection refused", "redis unavailable", "cache connection failed"},
			Services:   []string{"redis-cache"},
		},
		"message_queue_full": {
			Conditions: Conditions{Service: "message-queue", Keywords: []string{"queue full"}, Threshold: 1},
			Keywords:   []string{"queue full", "message queue overflow", "queue capacity exceeded"},
			Services:   []string{"message-queue"},
		},
		"timeout_any_service": {
			Conditions: Conditions{Keywords: []string{"timeout"}, Threshold: 1},
			Keywords:   []string{"timeout", "request timeout", "connection timeout"},
			Services:   []string{"payment-service", "user-service", "inventory-service", "order-service"},
		},
		"slow_query": {
			Conditions: Conditions{Keywords: []string{"slow query"}, Threshold: 1},
			Keywords:   []string{"slow query", "query timeout", "database performance"},
			Services:   []string{"database-service", "order-service", "user-service"},
		},
		"deadlock_detected": {
			Conditions: Conditions{Keywords: []string{"deadlock detected"}, Threshold: 1},
			Keywords:   []string{"deadlock detected", "database deadlock", "transaction deadlock"},
			Services:   []string{"database-service"},
		},
		"cross_service_errors": {
			Conditions: Conditions{Keywords: []string{"service unavailable"}, Threshold: 3, TimeWindow: 180},
			Keywords:   []string{"service unavailable", "dependency failed", "circuit breaker", "upstream error"},
			Services:   []string{"payment-service", "user-service", "inventory-service", "order-service"},
		},
	}}
}
