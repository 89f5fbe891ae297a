package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/config"
)

// DeliveryCache is the fast-path dedup check in front of the delivery-id
// unique constraint. The database stays the source of truth; callers treat
// cache errors as "not seen" when fail-open is configured.
type DeliveryCache interface {
	Seen(ctx context.Context, deliveryID string) (bool, error)
	Mark(ctx context.Context, deliveryID string) error
}

const keyPrefix = "delivery:"

// Valkey implements DeliveryCache on a Valkey instance.
type Valkey struct {
	client valkey.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewValkey connects to the configured Valkey instance.
func NewValkey(cfg *config.Valkey, log *zap.Logger) (*Valkey, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	log.Info("Valkey connection established", zap.String("addr", cfg.Addr))

	return &Valkey{
		client: client,
		ttl:    time.Duration(cfg.IdempotencyTTLSec) * time.Second,
		log:    log,
	}, nil
}

// Seen reports whether the delivery id was marked recently.
func (v *Valkey) Seen(ctx context.Context, deliveryID string) (bool, error) {
	resp := v.client.Do(ctx, v.client.B().Exists().Key(keyPrefix+deliveryID).Build())
	n, err := resp.AsInt64()
	if err != nil {
		return false, fmt.Errorf("valkey exists failed: %w", err)
	}
	return n > 0, nil
}

// Mark records the delivery id with the configured TTL.
func (v *Valkey) Mark(ctx context.Context, deliveryID string) error {
	cmd := v.client.B().Set().Key(keyPrefix + deliveryID).Value("1").
		Ex(v.ttl).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set failed: %w", err)
	}
	return nil
}

// Close releases the client.
func (v *Valkey) Close() {
	v.client.Close()
}

// Noop is the DeliveryCache used when no Valkey address is configured; every
// delivery goes straight to the database constraint.
type Noop struct{}

func (Noop) Seen(ctx context.Context, deliveryID string) (bool, error) { return false, nil }
func (Noop) Mark(ctx context.Context, deliveryID string) error         { return nil }
