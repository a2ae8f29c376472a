package websocket

import (
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/caresight/docguard/internal/pii"
)

// EventType identifies a hub event.
type EventType string

const (
	// EventTypeDetection reports a PII screening outcome.
	EventTypeDetection EventType = "pii_detection"
	// EventTypeRouting reports a cloud-routing decision.
	EventTypeRouting EventType = "routing_decision"
	// EventTypeSystemStatus reports service health.
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection reports client connect/disconnect.
	EventTypeConnection EventType = "connection"
)

// Event is one message sent to monitoring clients. Event payloads carry
// category names and hashes only, never query text or PII matches.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DetectionEvent reports what categories were found in a screened query.
type DetectionEvent struct {
	RequestID     string         `json:"request_id"`
	QueryHash     string         `json:"query_hash"`
	Role          string         `json:"role"`
	Categories    []pii.Category `json:"categories"`
	TotalFindings int            `json:"total_findings"`
	ProcessingMS  float64        `json:"processing_ms"`
}

// RoutingEvent reports a cloud-eligibility decision.
type RoutingEvent struct {
	RequestID   string `json:"request_id"`
	QueryHash   string `json:"query_hash"`
	Role        string `json:"role"`
	Allowed     bool   `json:"allowed"`
	Anonymized  bool   `json:"anonymized"`
	Reason      string `json:"reason"`
	CloudRouted bool   `json:"cloud_routed"`
}

// SystemStatusEvent reports service health.
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRequests    int64  `json:"total_requests"`
	TotalDetections  int64  `json:"total_detections"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent reports client connect/disconnect.
type ConnectionEvent struct {
	Action   string `json:"action"`
	ClientID string `json:"client_id"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage is a message from a monitoring client.
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows the event types a client receives.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client is one connected monitoring session.
type Client struct {
	ID           string
	Conn         *ws.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
