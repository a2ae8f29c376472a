package websocket

import (
	"encoding/base64"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func TestShouldBroadcastEvent(t *testing.T) {
	tests := []struct {
		name      string
		config    *HubConfig
		eventType EventType
		expected  bool
	}{
		{
			name:      "disabled hub broadcasts nothing",
			config:    &HubConfig{Enabled: false, BroadcastDetections: true},
			eventType: EventTypeDetection,
			expected:  false,
		},
		{
			name:      "nil config broadcasts nothing",
			config:    nil,
			eventType: EventTypeDetection,
			expected:  false,
		},
		{
			name:      "detection enabled",
			config:    &HubConfig{Enabled: true, BroadcastDetections: true},
			eventType: EventTypeDetection,
			expected:  true,
		},
		{
			name:      "detection disabled",
			config:    &HubConfig{Enabled: true, BroadcastDetections: false},
			eventType: EventTypeDetection,
			expected:  false,
		},
		{
			name:      "routing enabled",
			config:    &HubConfig{Enabled: true, BroadcastRouting: true},
			eventType: EventTypeRouting,
			expected:  true,
		},
		{
			name:      "unknown event type",
			config:    &HubConfig{Enabled: true, BroadcastDetections: true, BroadcastRouting: true},
			eventType: EventType("unknown"),
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(tt.config, testLogger())
			if got := hub.shouldBroadcastEvent(tt.eventType); got != tt.expected {
				t.Errorf("shouldBroadcastEvent(%q) = %v, want %v", tt.eventType, got, tt.expected)
			}
		})
	}
}

func TestShouldSendToClient(t *testing.T) {
	hub := NewHub(&HubConfig{Enabled: true}, testLogger())
	event := Event{Type: EventTypeRouting, Timestamp: time.Now()}

	t.Run("no subscription receives everything", func(t *testing.T) {
		client := &Client{ID: "c1"}
		if !hub.shouldSendToClient(client, event) {
			t.Error("client without subscription should receive all events")
		}
	})

	t.Run("matching subscription", func(t *testing.T) {
		client := &Client{
			ID:           "c2",
			Subscription: &SubscriptionRequest{Events: []EventType{EventTypeRouting}},
		}
		if !hub.shouldSendToClient(client, event) {
			t.Error("subscribed client should receive matching event")
		}
	})

	t.Run("non-matching subscription", func(t *testing.T) {
		client := &Client{
			ID:           "c3",
			Subscription: &SubscriptionRequest{Events: []EventType{EventTypeDetection}},
		}
		if hub.shouldSendToClient(client, event) {
			t.Error("client should not receive event outside its subscription")
		}
	})
}

func TestBroadcastEventRespectsConfig(t *testing.T) {
	hub := NewHub(&HubConfig{Enabled: true, BroadcastDetections: false}, testLogger())

	hub.BroadcastEvent(Event{Type: EventTypeDetection, Timestamp: time.Now()})

	select {
	case ev := <-hub.broadcast:
		t.Errorf("disabled event type should not be queued, got %v", ev.Type)
	default:
	}
}

func TestParseCredentials(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		data := base64.StdEncoding.EncodeToString([]byte("admin:secret"))
		user, pass, ok := parseCredentials(data)
		if !ok || user != "admin" || pass != "secret" {
			t.Errorf("parseCredentials = (%q, %q, %v), want (admin, secret, true)", user, pass, ok)
		}
	})

	t.Run("password containing colon", func(t *testing.T) {
		data := base64.StdEncoding.EncodeToString([]byte("admin:se:cret"))
		user, pass, ok := parseCredentials(data)
		if !ok || user != "admin" || pass != "se:cret" {
			t.Errorf("parseCredentials = (%q, %q, %v), want (admin, se:cret, true)", user, pass, ok)
		}
	})

	t.Run("not base64", func(t *testing.T) {
		if _, _, ok := parseCredentials("!!not-base64!!"); ok {
			t.Error("expected failure for invalid base64")
		}
	})

	t.Run("missing separator", func(t *testing.T) {
		data := base64.StdEncoding.EncodeToString([]byte("adminsecret"))
		if _, _, ok := parseCredentials(data); ok {
			t.Error("expected failure for credentials without colon")
		}
	})
}

func TestGetStats(t *testing.T) {
	hub := NewHub(&HubConfig{Enabled: true}, testLogger())
	client := &Client{ID: "c1", Send: make(chan Event, 1)}
	hub.registerClient(client)

	stats := hub.GetStats()
	if stats.TotalConnections != 1 {
		t.Errorf("TotalConnections = %d, want 1", stats.TotalConnections)
	}
	if stats.ActiveConnections != 1 {
		t.Errorf("ActiveConnections = %d, want 1", stats.ActiveConnections)
	}

	hub.unregisterClient(client)
	stats = hub.GetStats()
	if stats.ActiveConnections != 0 {
		t.Errorf("ActiveConnections after unregister = %d, want 0", stats.ActiveConnections)
	}
}
