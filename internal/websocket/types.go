package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaihank/doc-sentinel/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRedaction is sent when a document has been redacted
	EventTypeRedaction EventType = "redaction"
	// EventTypeReview is sent for each review step on a session
	EventTypeReview EventType = "review"
	// EventTypeConfirmed is sent when a review session is confirmed
	EventTypeConfirmed EventType = "confirmed"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"

	eventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients. Payloads carry labels
// and counts, never document text or redacted values.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// RedactionEvent describes one redaction run
type RedactionEvent struct {
	DocumentID   string               `json:"document_id"`
	Source       string               `json:"source"` // api, review or cli
	Counts       []privacy.LabelCount `json:"counts"`
	Total        int                  `json:"total"`
	ProcessingMS float64              `json:"processing_ms"`
}

// ReviewEvent describes one step of an interactive review. The search query
// is deliberately absent: reviewers search for the values they want removed.
type ReviewEvent struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"` // search, navigate, delete, replace
	State     string `json:"state"`
	Matches   int    `json:"matches"`
	Ordinal   int    `json:"ordinal,omitempty"`
}

// ConfirmedEvent is sent once a review session is confirmed
type ConfirmedEvent struct {
	SessionID string               `json:"session_id"`
	Counts    []privacy.LabelCount `json:"counts"`
	Chars     int                  `json:"chars"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRedactions  int64  `json:"total_redactions"`
	ActiveSessions   int64  `json:"active_sessions"`
	ConnectedClients int    `json:"connected_clients"`
	Summarizer       string `json:"summarizer,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // connected, disconnected
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscriptionRequest narrows the events a client receives
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	IP           string
	UserAgent    string
}
