package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/pkg/logger"
	"github.com/wonny/fluxscan/pkg/redis"
)

// Event types pushed to stream subscribers.
const (
	EventProgress = "scan_progress"
	EventComplete = "scan_complete"
)

// Event is a progress or completion notice for one scan.
type Event struct {
	Type         string  `json:"type"`
	ScanID       string  `json:"scan_id"`
	Status       string  `json:"status,omitempty"`
	Progress     float64 `json:"progress"`
	Symbol       string  `json:"symbol,omitempty"`
	TotalScanned int     `json:"total_scanned,omitempty"`
	SignalsFound int     `json:"signals_found,omitempty"`
	Error        string  `json:"error,omitempty"`

	// Per-symbol failures of a finished scan.
	ErrorCount   int                   `json:"error_count,omitempty"`
	SymbolErrors []scanner.SymbolError `json:"symbol_errors,omitempty"`
}

// Publisher receives scan events. Implementations must not block for long.
type Publisher interface {
	Publish(ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(ev Event) { f(ev) }

// Publishers fans an event out to several publishers.
type Publishers []Publisher

// Publish implements Publisher.
func (p Publishers) Publish(ev Event) {
	for _, pub := range p {
		if pub != nil {
			pub.Publish(ev)
		}
	}
}

// ScanEventsChannel is the Redis channel scan events are mirrored to.
const ScanEventsChannel = "fluxscan:scan_events"

// RedisPublisher mirrors events to a Redis pub/sub channel so other
// processes can follow scans.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *logger.Logger
}

// NewRedisPublisher creates a RedisPublisher. A disabled client drops events.
func NewRedisPublisher(client *redis.Client, log *logger.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: ScanEventsChannel,
		logger:  log.WithField("module", "scan_events"),
	}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ev Event) {
	if !p.client.Enabled() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload); err != nil {
		p.logger.WithError(err).Warn("Failed to publish scan event")
	}
}
