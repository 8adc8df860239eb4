package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockGateway implements Gateway in memory for tests and local runs without
// Stripe keys.  It records every expiration and refund it is asked for.
type MockGateway struct {
	config *MockGatewayConfig

	mu        sync.Mutex
	sessions  map[string]*mockSession
	expired   []string
	refunded  []string
	failNext  map[string]error
	createSeq int
}

type mockSession struct {
	req     CheckoutRequest
	session CheckoutSession
	state   string
}

// MockGatewayConfig holds configuration for the mock gateway.
type MockGatewayConfig struct {
	// BaseURL prefixes the redirect URL of every session.
	BaseURL string
	// SessionLifetime is how long a session stays open.
	SessionLifetime time.Duration
}

// DefaultMockGatewayConfig returns default configuration.
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{
		BaseURL:         "https://checkout.mock.local/pay",
		SessionLifetime: 30 * time.Minute,
	}
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}
	return &MockGateway{
		config:   config,
		sessions: make(map[string]*mockSession),
		failNext: make(map[string]error),
	}
}

// FailNext makes the next call of the named operation ("create", "expire" or
// "refund") return err.
func (g *MockGateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext[op] = err
}

func (g *MockGateway) takeFailure(op string) error {
	err, ok := g.failNext[op]
	if ok {
		delete(g.failNext, op)
	}
	return err
}

// CreateCheckoutSession returns a session with a cs_mock_ id.
func (g *MockGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	if req == nil {
		return nil, fmt.Errorf("checkout request is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("create"); err != nil {
		return nil, err
	}
	g.createSeq++
	id := "cs_mock_" + uuid.New().String()
	sess := CheckoutSession{
		ID:        id,
		URL:       fmt.Sprintf("%s/%s", g.config.BaseURL, id),
		ExpiresAt: time.Now().Add(g.config.SessionLifetime).UTC(),
	}
	g.sessions[id] = &mockSession{req: *req, session: sess, state: "open"}
	return &sess, nil
}

// ExpireCheckoutSession marks the session expired.
func (g *MockGateway) ExpireCheckoutSession(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("expire"); err != nil {
		return err
	}
	s, ok := g.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.state == "open" {
		s.state = "expired"
	}
	g.expired = append(g.expired, sessionID)
	return nil
}

// Refund records a refund for the session.
func (g *MockGateway) Refund(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("refund"); err != nil {
		return err
	}
	if _, ok := g.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	g.refunded = append(g.refunded, sessionID)
	return nil
}

// Request returns the checkout request a session was created for.
func (g *MockGateway) Request(sessionID string) (CheckoutRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return CheckoutRequest{}, false
	}
	return s.req, true
}

// Sessions returns the number of sessions created.
func (g *MockGateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createSeq
}

// Expired lists the session ids passed to ExpireCheckoutSession, in order.
func (g *MockGateway) Expired() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.expired...)
}

// Refunded lists the session ids passed to Refund, in order.
func (g *MockGateway) Refunded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.refunded...)
}

// Name returns the gateway name.
func (g *MockGateway) Name() string {
	return "mock"
}
