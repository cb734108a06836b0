// Package dispatch delivers registry events to registered webhook
// endpoints so external indexers (the off-chain backend, dashboards) can
// build read-optimized projections. Payloads are HMAC-SHA256 signed;
// consumers that miss deliveries resynchronize from the event log.
package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medchain/registry/internal/registry"
)

// Endpoint is a registered webhook destination.
type Endpoint struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events"`
	Status    string    `json:"status"` // "active" or "paused"
	CreatedAt time.Time `json:"created_at"`
}

// Delivery records a single delivery attempt.
type Delivery struct {
	ID         string        `json:"id"`
	EndpointID string        `json:"endpoint_id"`
	EventType  string        `json:"event_type"`
	EventSeq   uint64        `json:"event_seq"`
	Payload    []byte        `json:"payload"`
	Signature  string        `json:"signature"`
	StatusCode int           `json:"status_code"`
	Duration   time.Duration `json:"duration_ns"`
	Status     string        `json:"status"` // "success" or "failed"
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// EndpointStore is the persistence interface for endpoints and deliveries.
type EndpointStore interface {
	CreateEndpoint(ctx context.Context, ep *Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	ListEndpoints(ctx context.Context) ([]*Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, endpointID string, limit, offset int) ([]*Delivery, int, error)
}

// MemEndpointStore is a thread-safe in-memory EndpointStore.
type MemEndpointStore struct {
	mu            sync.RWMutex
	endpoints     map[string]*Endpoint
	deliveries    map[string]*Delivery
	endpointOrder []string
	deliveryOrder []string
}

// NewMemEndpointStore creates an empty store.
func NewMemEndpointStore() *MemEndpointStore {
	return &MemEndpointStore{
		endpoints:  make(map[string]*Endpoint),
		deliveries: make(map[string]*Delivery),
	}
}

func (s *MemEndpointStore) CreateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[ep.ID] = ep
	s.endpointOrder = append(s.endpointOrder, ep.ID)
	return nil
}

func (s *MemEndpointStore) GetEndpoint(_ context.Context, id string) (*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, fmt.Errorf("endpoint %s not found", id)
	}
	return ep, nil
}

func (s *MemEndpointStore) ListEndpoints(_ context.Context) ([]*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Endpoint, 0, len(s.endpointOrder))
	for _, id := range s.endpointOrder {
		if ep := s.endpoints[id]; ep != nil {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (s *MemEndpointStore) UpdateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[ep.ID]; !ok {
		return fmt.Errorf("endpoint %s not found", ep.ID)
	}
	s.endpoints[ep.ID] = ep
	return nil
}

func (s *MemEndpointStore) DeleteEndpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[id]; !ok {
		return fmt.Errorf("endpoint %s not found", id)
	}
	delete(s.endpoints, id)
	for i, eid := range s.endpointOrder {
		if eid == id {
			s.endpointOrder = append(s.endpointOrder[:i], s.endpointOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemEndpointStore) RecordDelivery(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID] = d
	s.deliveryOrder = append(s.deliveryOrder, d.ID)
	return nil
}

func (s *MemEndpointStore) ListDeliveries(_ context.Context, endpointID string, limit, offset int) ([]*Delivery, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []*Delivery
	for _, id := range s.deliveryOrder {
		d := s.deliveries[id]
		if d != nil && d.EndpointID == endpointID {
			filtered = append(filtered, d)
		}
	}
	total := len(filtered)
	if offset >= total {
		return []*Delivery{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

// SignPayload computes the hex-encoded HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the HMAC-SHA256 of
// payload under secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithLogger sets the logger for delivery failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// Dispatcher fans registry events out to matching endpoints.
type Dispatcher struct {
	store      EndpointStore
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with a 10s delivery timeout.
func NewDispatcher(store EndpointStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func validateEndpointURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// RegisterEndpoint validates and persists a new endpoint. If secret is
// empty a cryptographically random one is generated.
func (d *Dispatcher) RegisterEndpoint(ctx context.Context, rawURL, secret string, events []string) (*Endpoint, error) {
	if err := validateEndpointURL(rawURL); err != nil {
		return nil, err
	}
	if secret == "" {
		s, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}
		secret = s
	}

	ep := &Endpoint{
		ID:        uuid.New().String(),
		URL:       rawURL,
		Secret:    secret,
		Events:    events,
		Status:    "active",
		CreatedAt: time.Now(),
	}
	if err := d.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// eventMatches reports whether an event type matches a subscription
// pattern. Patterns are exact ("record.added"), suffix wildcards
// ("record.*"), prefix wildcards ("*.added"), or "*".
func eventMatches(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(eventType, pattern[1:])
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func endpointMatches(ep *Endpoint, eventType string) bool {
	for _, pat := range ep.Events {
		if eventMatches(pat, eventType) {
			return true
		}
	}
	return false
}

// Dispatch delivers one event to every matching active endpoint.
func (d *Dispatcher) Dispatch(ctx context.Context, ev registry.Event) {
	endpoints, err := d.store.ListEndpoints(ctx)
	if err != nil {
		d.logger.Error().Err(err).Uint64("seq", ev.Seq).Msg("failed to list endpoints")
		return
	}
	for _, ep := range endpoints {
		if ep.Status != "active" {
			continue
		}
		if !endpointMatches(ep, string(ev.Type)) {
			continue
		}
		d.deliver(ctx, ep, ev)
	}
}

// deliver signs the event payload and POSTs it, recording the attempt.
func (d *Dispatcher) deliver(ctx context.Context, ep *Endpoint, ev registry.Event) *Delivery {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error().Err(err).Uint64("seq", ev.Seq).Str("endpoint_id", ep.ID).
			Msg("failed to marshal event payload")
		return nil
	}
	sig := SignPayload(payload, ep.Secret)
	now := time.Now()

	attempt := &Delivery{
		ID:         uuid.New().String(),
		EndpointID: ep.ID,
		EventType:  string(ev.Type),
		EventSeq:   ev.Seq,
		Payload:    payload,
		Signature:  sig,
		CreatedAt:  now,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		attempt.Status = "failed"
		attempt.Error = err.Error()
		d.store.RecordDelivery(ctx, attempt)
		return attempt
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Registry-Signature", "sha256="+sig)
	req.Header.Set("X-Registry-Event", string(ev.Type))
	req.Header.Set("X-Registry-Timestamp", now.UTC().Format(time.RFC3339))

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	attempt.Duration = time.Since(start)

	if err != nil {
		attempt.Status = "failed"
		attempt.Error = err.Error()
		d.store.RecordDelivery(ctx, attempt)
		return attempt
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		attempt.Status = "success"
	} else {
		attempt.Status = "failed"
		attempt.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}

	d.store.RecordDelivery(ctx, attempt)
	return attempt
}

// Run consumes events until the channel closes or ctx is done. It is meant
// to be started as a goroutine against an event log subscription.
func (d *Dispatcher) Run(ctx context.Context, events <-chan registry.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Dispatch(ctx, ev)
		}
	}
}
