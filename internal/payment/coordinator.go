// Package payment wraps the external processor behind bounded, classified authorize/capture/release calls.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hostbook/internal/domain"
	"hostbook/internal/metrics"

	"github.com/rs/zerolog"
)

var (
	ErrDeclined      = errors.New("payment authorization declined")
	ErrCaptureFailed = errors.New("payment capture failed")
	ErrReleaseFailed = errors.New("payment release failed")
)

// Coordinator bounds every gateway call by a timeout and maps any failure, a timeout included,
// onto the failure of that operation.
type Coordinator struct {
	gateway domain.PaymentGateway
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewCoordinator(gateway domain.PaymentGateway, timeout time.Duration, logger *zerolog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{gateway: gateway, timeout: timeout, logger: logger}
}

func (c *Coordinator) Authorize(ctx context.Context, amountCents int64, payer, payee string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	authID, err := c.gateway.Authorize(ctx, amountCents, payer, payee)
	if err == nil && authID == "" {
		err = errors.New("empty authorization id")
	}
	metrics.ObservePayment("authorize", started, err)
	if err != nil {
		c.logger.Warn().Err(err).Int64("amount_cents", amountCents).Str("payer", payer).Msg("Authorization failed")
		return "", fmt.Errorf("%w: %v", ErrDeclined, err)
	}
	return authID, nil
}

func (c *Coordinator) Capture(ctx context.Context, authorizationID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	transferID, err := c.gateway.Capture(ctx, authorizationID)
	metrics.ObservePayment("capture", started, err)
	if err != nil {
		c.logger.Error().Err(err).Str("authorization_id", authorizationID).Msg("Capture failed")
		return "", fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	return transferID, nil
}

func (c *Coordinator) Release(ctx context.Context, authorizationID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	err := c.gateway.Release(ctx, authorizationID)
	metrics.ObservePayment("release", started, err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReleaseFailed, err)
	}
	return nil
}
