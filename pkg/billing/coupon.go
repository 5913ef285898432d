package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/am0414/success-academy-international/pkg/domain"
	"github.com/am0414/success-academy-international/pkg/logger"
)

// CouponID returns the deterministic coupon id for a referral percentage
func CouponID(percent int) string {
	return fmt.Sprintf("referral_%doff", percent)
}

func couponName(percent int) string {
	return fmt.Sprintf("Referral %d%% OFF", percent)
}

// CouponProvisioner makes sure one coupon exists per referral percentage.
// Ids known to exist are remembered until Forget is called for them.
type CouponProvisioner struct {
	provider Provider
	log      logger.Logger

	mu    sync.RWMutex
	known map[int]string
}

// NewCouponProvisioner creates a provisioner over provider
func NewCouponProvisioner(provider Provider, log logger.Logger) *CouponProvisioner {
	return &CouponProvisioner{
		provider: provider,
		log:      log,
		known:    make(map[int]string),
	}
}

// Ensure returns the coupon id for percent, creating the coupon if needed.
// A percent of zero or less means no coupon and returns "".
func (c *CouponProvisioner) Ensure(ctx context.Context, percent int) (string, error) {
	if percent <= 0 {
		return "", nil
	}
	if percent > 100 {
		return "", domain.NewValidationError(fmt.Sprintf("invalid discount percent %d", percent))
	}

	c.mu.RLock()
	id, ok := c.known[percent]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	id = CouponID(percent)
	_, err := c.provider.GetCoupon(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, ErrCouponNotFound):
		if err := c.create(ctx, id, percent); err != nil {
			return "", err
		}
	default:
		return "", domain.NewProviderError("get coupon", err)
	}

	c.mu.Lock()
	c.known[percent] = id
	c.mu.Unlock()

	return id, nil
}

// Forget drops the remembered id for percent so the next Ensure checks the
// provider again
func (c *CouponProvisioner) Forget(percent int) {
	c.mu.Lock()
	delete(c.known, percent)
	c.mu.Unlock()
}

func (c *CouponProvisioner) create(ctx context.Context, id string, percent int) error {
	_, err := c.provider.CreateCoupon(ctx, id, couponName(percent), percent)
	if err == nil {
		c.log.Info("coupon created", "coupon_id", id, "percent_off", percent)
		return nil
	}
	if !errors.Is(err, ErrCouponExists) {
		return domain.NewProviderError("create coupon", err)
	}

	// Another caller created it between our read and write
	if _, err := c.provider.GetCoupon(ctx, id); err != nil {
		return domain.NewProviderError("get coupon", err)
	}
	return nil
}
