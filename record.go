package main

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
)

// TimestampLayout renders UTC times the way the ingestion pipeline expects
// them: ISO-8601 with a fixed six-digit fractional second and a literal Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// A LogEntry is one synthesized application log record. The field set and
// JSON names are the wire contract with the downstream alert engine's
// models, so changes here have to be coordinated with that repo.
type LogEntry struct {
	Timestamp   string         `json:"timestamp"`
	AtTimestamp string         `json:"@timestamp"`
	Level       string         `json:"level"`
	Service     string         `json:"service"`
	Namespace   string         `json:"namespace"`
	Host        string         `json:"host"`
	Hostname    string         `json:"hostname"`
	LogSource   string         `json:"log_source"`
	LogType     string         `json:"log_type"`
	Kubernetes  KubernetesInfo `json:"kubernetes"`
	Message     string         `json:"message"`
	Raw         string         `json:"raw,omitempty"`
}

// KubernetesInfo carries the pod metadata block. Both the legacy names and
// the OpenShift names are populated with the same values because collectors
// in the wild disagree about which ones to read.
type KubernetesInfo struct {
	Namespace     string            `json:"namespace"`
	NamespaceName string            `json:"namespace_name"`
	Pod           string            `json:"pod"`
	PodName       string            `json:"pod_name"`
	Container     string            `json:"container"`
	ContainerName string            `json:"container_name"`
	Labels        map[string]string `json:"labels"`
	Annotations   map[string]string `json:"annotations"`
	ContainerID   string            `json:"container_id"`
	PodIP         string            `json:"pod_ip"`
	PodOwner      string            `json:"pod_owner"`
}

// rawRecord is the original-format view embedded in the raw field
type rawRecord struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Service   string `json:"service"`
}

// AttachRaw freezes the current timestamp, level, message, and service into
// the raw field as compact JSON. Call it after the message is final.
func (e *LogEntry) AttachRaw() {
	data, err := json.Marshal(&rawRecord{
		Timestamp: e.Timestamp,
		Level:     e.Level,
		Message:   e.Message,
		Service:   e.Service,
	})
	if err != nil {
		log.Errorf("Unable to encode raw view: %s", err)
		return
	}

	e.Raw = string(data)
}

func utcTimestamp() string {
	return time.Now().UTC().Format(TimestampLayout)
}
