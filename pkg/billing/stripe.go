package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProvider implements Provider against the Stripe API. It owns its own
// API client so no package-level key is involved.
type StripeProvider struct {
	api *client.API

	mu     sync.Mutex
	prices map[string]string
}

// NewStripeProvider creates a provider for the given secret key
func NewStripeProvider(secretKey string) *StripeProvider {
	return NewStripeProviderWithBackends(secretKey, nil)
}

// NewStripeProviderWithBackends creates a provider using custom backends
func NewStripeProviderWithBackends(secretKey string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{
		api:    client.New(secretKey, backends),
		prices: make(map[string]string),
	}
}

// CreateCheckoutSession creates a subscription-mode hosted checkout
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail:     stripe.String(in.CustomerEmail),
		ClientReferenceID: stripe.String(in.ClientReferenceID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata,
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	if in.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(in.TrialDays)
	}
	if in.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(in.CouponID)},
		}
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession opens the provider's billing portal for a customer
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return sess.URL, nil
}

func priceLookupKey(spec PriceSpec) string {
	return fmt.Sprintf("tuition_monthly_%d_%s", spec.UnitAmount, strings.ToLower(spec.Currency))
}

// EnsureMonthlyPrice returns the id of the monthly price for spec, creating
// the product and price on first use. Prices are found by lookup key.
func (p *StripeProvider) EnsureMonthlyPrice(ctx context.Context, spec PriceSpec) (string, error) {
	key := priceLookupKey(spec)

	p.mu.Lock()
	if id, ok := p.prices[key]; ok {
		p.mu.Unlock()
		return id, nil
	}
	p.mu.Unlock()

	listParams := &stripe.PriceListParams{
		Active:     stripe.Bool(true),
		LookupKeys: stripe.StringSlice([]string{key}),
	}
	listParams.Context = ctx

	var priceID string
	iter := p.api.Prices.List(listParams)
	for iter.Next() {
		pr := iter.Price()
		if pr.Recurring != nil && pr.Recurring.Interval == stripe.PriceRecurringIntervalMonth {
			priceID = pr.ID
			break
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("failed to list prices: %w", err)
	}

	if priceID == "" {
		params := &stripe.PriceParams{
			Currency:   stripe.String(strings.ToLower(spec.Currency)),
			UnitAmount: stripe.Int64(spec.UnitAmount),
			LookupKey:  stripe.String(key),
			Recurring: &stripe.PriceRecurringParams{
				Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
			},
			ProductData: &stripe.PriceProductDataParams{
				Name: stripe.String(spec.ProductName),
			},
		}
		params.Context = ctx

		pr, err := p.api.Prices.New(params)
		if err != nil {
			return "", fmt.Errorf("failed to create price: %w", err)
		}
		priceID = pr.ID
	}

	p.mu.Lock()
	p.prices[key] = priceID
	p.mu.Unlock()

	return priceID, nil
}

// GetCoupon fetches a coupon, mapping a missing resource to ErrCouponNotFound
func (p *StripeProvider) GetCoupon(ctx context.Context, id string) (*Coupon, error) {
	params := &stripe.CouponParams{}
	params.Context = ctx

	c, err := p.api.Coupons.Get(id, params)
	if err != nil {
		if hasStripeCode(err, stripe.ErrorCodeResourceMissing) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to get coupon %s: %w", id, err)
	}
	return &Coupon{ID: c.ID, Name: c.Name, PercentOff: c.PercentOff}, nil
}

// CreateCoupon creates a forever percent-off coupon with a fixed id
func (p *StripeProvider) CreateCoupon(ctx context.Context, id, name string, percentOff int) (*Coupon, error) {
	params := &stripe.CouponParams{
		ID:         stripe.String(id),
		Name:       stripe.String(name),
		PercentOff: stripe.Float64(float64(percentOff)),
		Duration:   stripe.String(string(stripe.CouponDurationForever)),
	}
	params.Context = ctx

	c, err := p.api.Coupons.New(params)
	if err != nil {
		if hasStripeCode(err, stripe.ErrorCodeResourceAlreadyExists) {
			return nil, ErrCouponExists
		}
		return nil, fmt.Errorf("failed to create coupon %s: %w", id, err)
	}
	return &Coupon{ID: c.ID, Name: c.Name, PercentOff: c.PercentOff}, nil
}

// GetSubscription fetches a subscription
func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	s, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s: %w", id, err)
	}
	return subscriptionFromStripe(s), nil
}

// SetSubscriptionCoupon attaches a coupon to a subscription
func (p *StripeProvider) SetSubscriptionCoupon(ctx context.Context, subscriptionID, couponID string) error {
	params := &stripe.SubscriptionParams{
		Coupon: stripe.String(couponID),
	}
	params.Context = ctx

	if _, err := p.api.Subscriptions.Update(subscriptionID, params); err != nil {
		if hasStripeCode(err, stripe.ErrorCodeResourceMissing) {
			return fmt.Errorf("failed to attach coupon %s to %s: %w: %w", couponID, subscriptionID, ErrCouponNotFound, err)
		}
		return fmt.Errorf("failed to attach coupon %s to %s: %w", couponID, subscriptionID, err)
	}
	return nil
}

// DeleteSubscriptionDiscount removes whatever discount the subscription carries
func (p *StripeProvider) DeleteSubscriptionDiscount(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionDeleteDiscountParams{}
	params.Context = ctx

	if _, err := p.api.Subscriptions.DeleteDiscount(subscriptionID, params); err != nil {
		if hasStripeCode(err, stripe.ErrorCodeResourceMissing) {
			return nil
		}
		return fmt.Errorf("failed to remove discount from %s: %w", subscriptionID, err)
	}
	return nil
}

// ListPendingInvoiceItems lists items not yet attached to an invoice
func (p *StripeProvider) ListPendingInvoiceItems(ctx context.Context, customerID string) ([]InvoiceItem, error) {
	params := &stripe.InvoiceItemListParams{
		Customer: stripe.String(customerID),
		Pending:  stripe.Bool(true),
	}
	params.Context = ctx

	items := []InvoiceItem{}
	iter := p.api.InvoiceItems.List(params)
	for iter.Next() {
		ii := iter.InvoiceItem()
		items = append(items, InvoiceItem{ID: ii.ID, Description: ii.Description, Amount: ii.Amount})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list invoice items: %w", err)
	}
	return items, nil
}

// CreateInvoiceItem adds a one-off charge for the customer
func (p *StripeProvider) CreateInvoiceItem(ctx context.Context, in InvoiceItemInput) (*InvoiceItem, error) {
	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(in.CustomerID),
		Amount:      stripe.Int64(in.Amount),
		Currency:    stripe.String(strings.ToLower(in.Currency)),
		Description: stripe.String(in.Description),
	}
	if in.InvoiceID != "" {
		params.Invoice = stripe.String(in.InvoiceID)
	}
	params.Context = ctx

	ii, err := p.api.InvoiceItems.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice item: %w", err)
	}
	return &InvoiceItem{ID: ii.ID, Description: ii.Description, Amount: ii.Amount}, nil
}

// DeleteInvoiceItem removes a pending invoice item
func (p *StripeProvider) DeleteInvoiceItem(ctx context.Context, id string) error {
	params := &stripe.InvoiceItemParams{}
	params.Context = ctx

	if _, err := p.api.InvoiceItems.Del(id, params); err != nil {
		return fmt.Errorf("failed to delete invoice item %s: %w", id, err)
	}
	return nil
}

func hasStripeCode(err error, code stripe.ErrorCode) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Code == code
	}
	return false
}
