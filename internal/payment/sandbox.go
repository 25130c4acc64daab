package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type holdState string

const (
	holdAuthorized holdState = "authorized"
	holdCaptured   holdState = "captured"
	holdReleased   holdState = "released"
)

type hold struct {
	amountCents int64
	payer       string
	payee       string
	state       holdState
}

// SandboxGateway is an in-memory processor for local runs and tests. Failures can be injected per operation.
type SandboxGateway struct {
	mu    sync.Mutex
	holds map[string]*hold

	FailAuthorize error
	FailCapture   error
	FailRelease   error
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{holds: make(map[string]*hold)}
}

func (g *SandboxGateway) Authorize(ctx context.Context, amountCents int64, payer, payee string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailAuthorize != nil {
		return "", g.FailAuthorize
	}
	if amountCents <= 0 {
		return "", errors.New("amount must be positive")
	}
	id := "auth_" + uuid.NewString()
	g.holds[id] = &hold{amountCents: amountCents, payer: payer, payee: payee, state: holdAuthorized}
	return id, nil
}

func (g *SandboxGateway) Capture(ctx context.Context, authorizationID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailCapture != nil {
		return "", g.FailCapture
	}
	h, ok := g.holds[authorizationID]
	if !ok {
		return "", fmt.Errorf("unknown authorization %s", authorizationID)
	}
	if h.state != holdAuthorized {
		return "", fmt.Errorf("authorization %s is %s", authorizationID, h.state)
	}
	h.state = holdCaptured
	return "tr_" + uuid.NewString(), nil
}

func (g *SandboxGateway) Release(ctx context.Context, authorizationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailRelease != nil {
		return g.FailRelease
	}
	h, ok := g.holds[authorizationID]
	if !ok {
		return fmt.Errorf("unknown authorization %s", authorizationID)
	}
	switch h.state {
	case holdReleased:
		return nil
	case holdCaptured:
		return fmt.Errorf("authorization %s already captured", authorizationID)
	}
	h.state = holdReleased
	return nil
}

// SetFailures swaps the injected failures under the gateway lock.
func (g *SandboxGateway) SetFailures(authorize, capture, release error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.FailAuthorize, g.FailCapture, g.FailRelease = authorize, capture, release
}

// State returns the hold state for an authorization, or "" when unknown.
func (g *SandboxGateway) State(authorizationID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.holds[authorizationID]; ok {
		return string(h.state)
	}
	return ""
}
