package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeProvider is an in-memory Provider that records every call
type fakeProvider struct {
	mu sync.Mutex

	coupons       map[string]*Coupon
	subscriptions map[string]*Subscription
	pending       map[string][]InvoiceItem // by customer
	invoiceItems  []InvoiceItemInput
	sessions      []CheckoutSessionInput

	calls map[string]int

	// failures keyed by method name; consumed once
	failNext map[string]error
	// creates the coupon concurrently right before CreateCoupon runs
	raceCouponCreate bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		coupons:       make(map[string]*Coupon),
		subscriptions: make(map[string]*Subscription),
		pending:       make(map[string][]InvoiceItem),
		calls:         make(map[string]int),
		failNext:      make(map[string]error),
	}
}

func (f *fakeProvider) record(method string) error {
	f.calls[method]++
	if err, ok := f.failNext[method]; ok {
		delete(f.failNext, method)
		return err
	}
	return nil
}

func (f *fakeProvider) failOnce(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[method] = err
}

func (f *fakeProvider) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeProvider) addSubscription(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.subscriptions[s.ID] = &cp
}

func (f *fakeProvider) subscription(id string) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.subscriptions[id]
}

func (f *fakeProvider) pendingItems(customerID string) []InvoiceItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]InvoiceItem(nil), f.pending[customerID]...)
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCheckoutSession"); err != nil {
		return nil, err
	}
	f.sessions = append(f.sessions, in)
	id := fmt.Sprintf("cs_test_%d", len(f.sessions))
	return &CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (f *fakeProvider) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreatePortalSession"); err != nil {
		return "", err
	}
	return "https://billing.stripe.test/p/" + customerID, nil
}

func (f *fakeProvider) EnsureMonthlyPrice(_ context.Context, spec PriceSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("EnsureMonthlyPrice"); err != nil {
		return "", err
	}
	return fmt.Sprintf("price_%d_%s", spec.UnitAmount, spec.Currency), nil
}

func (f *fakeProvider) GetCoupon(_ context.Context, id string) (*Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetCoupon"); err != nil {
		return nil, err
	}
	c, ok := f.coupons[id]
	if !ok {
		return nil, ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeProvider) CreateCoupon(_ context.Context, id, name string, percentOff int) (*Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCoupon"); err != nil {
		return nil, err
	}
	if f.raceCouponCreate {
		f.coupons[id] = &Coupon{ID: id, Name: name, PercentOff: float64(percentOff)}
	}
	if _, ok := f.coupons[id]; ok {
		return nil, ErrCouponExists
	}
	c := &Coupon{ID: id, Name: name, PercentOff: float64(percentOff)}
	f.coupons[id] = c
	cp := *c
	return &cp, nil
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetSubscription"); err != nil {
		return nil, err
	}
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, errors.New("no such subscription: " + id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeProvider) SetSubscriptionCoupon(_ context.Context, subscriptionID, couponID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetSubscriptionCoupon"); err != nil {
		return err
	}
	s, ok := f.subscriptions[subscriptionID]
	if !ok {
		return errors.New("no such subscription: " + subscriptionID)
	}
	if _, ok := f.coupons[couponID]; !ok {
		return fmt.Errorf("no such coupon %s: %w", couponID, ErrCouponNotFound)
	}
	s.CouponID = couponID
	return nil
}

func (f *fakeProvider) DeleteSubscriptionDiscount(_ context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteSubscriptionDiscount"); err != nil {
		return err
	}
	if s, ok := f.subscriptions[subscriptionID]; ok {
		s.CouponID = ""
	}
	return nil
}

func (f *fakeProvider) ListPendingInvoiceItems(_ context.Context, customerID string) ([]InvoiceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListPendingInvoiceItems"); err != nil {
		return nil, err
	}
	return append([]InvoiceItem(nil), f.pending[customerID]...), nil
}

func (f *fakeProvider) CreateInvoiceItem(_ context.Context, in InvoiceItemInput) (*InvoiceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateInvoiceItem"); err != nil {
		return nil, err
	}
	f.invoiceItems = append(f.invoiceItems, in)
	item := InvoiceItem{ID: fmt.Sprintf("ii_%d", len(f.invoiceItems)), Description: in.Description, Amount: in.Amount}
	if in.InvoiceID == "" {
		f.pending[in.CustomerID] = append(f.pending[in.CustomerID], item)
	}
	return &item, nil
}

func (f *fakeProvider) DeleteInvoiceItem(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteInvoiceItem"); err != nil {
		return err
	}
	for customer, items := range f.pending {
		kept := items[:0]
		for _, it := range items {
			if it.ID != id {
				kept = append(kept, it)
			}
		}
		f.pending[customer] = kept
	}
	return nil
}
