package billing

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v76"
)

var (
	// ErrCouponNotFound is returned by Provider.GetCoupon and
	// Provider.SetSubscriptionCoupon for an unknown coupon id
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponExists is returned by Provider.CreateCoupon when the id is already taken
	ErrCouponExists = errors.New("coupon already exists")
)

// Provider is the subset of the payment provider the billing engine talks to
type Provider interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	EnsureMonthlyPrice(ctx context.Context, spec PriceSpec) (string, error)

	GetCoupon(ctx context.Context, id string) (*Coupon, error)
	CreateCoupon(ctx context.Context, id, name string, percentOff int) (*Coupon, error)

	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	SetSubscriptionCoupon(ctx context.Context, subscriptionID, couponID string) error
	DeleteSubscriptionDiscount(ctx context.Context, subscriptionID string) error

	ListPendingInvoiceItems(ctx context.Context, customerID string) ([]InvoiceItem, error)
	CreateInvoiceItem(ctx context.Context, in InvoiceItemInput) (*InvoiceItem, error)
	DeleteInvoiceItem(ctx context.Context, id string) error
}

// CheckoutSessionInput describes a hosted subscription checkout
type CheckoutSessionInput struct {
	CustomerEmail     string
	ClientReferenceID string
	PriceID           string
	CouponID          string
	TrialDays         int64
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

// CheckoutSession is a created hosted checkout
type CheckoutSession struct {
	ID  string
	URL string
}

// PriceSpec identifies the recurring monthly price
type PriceSpec struct {
	UnitAmount  int64
	Currency    string
	ProductName string
}

// Coupon is a percent-off coupon
type Coupon struct {
	ID         string
	Name       string
	PercentOff float64
}

// Subscription is the provider's view of a subscription
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CouponID          string
	CancelAt          int64
	CancelAtPeriodEnd bool
	TrialStart        int64
	TrialEnd          int64
	Metadata          map[string]string
}

// CancelScheduled reports whether the subscription is set to end
func (s *Subscription) CancelScheduled() bool {
	return s.CancelAt > 0 || s.CancelAtPeriodEnd
}

// InvoiceItem is a one-off charge waiting for (or attached to) an invoice
type InvoiceItem struct {
	ID          string
	Description string
	Amount      int64
}

// InvoiceItemInput describes a one-off charge. An empty InvoiceID leaves the
// item pending so it lands on the customer's next invoice.
type InvoiceItemInput struct {
	CustomerID  string
	InvoiceID   string
	Amount      int64
	Currency    string
	Description string
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	if s == nil {
		return nil
	}
	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAt:          s.CancelAt,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialStart:        s.TrialStart,
		TrialEnd:          s.TrialEnd,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Discount != nil && s.Discount.Coupon != nil {
		out.CouponID = s.Discount.Coupon.ID
	}
	return out
}
