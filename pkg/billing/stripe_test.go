package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

// newTestStripeProvider points a StripeProvider at an httptest server
func newTestStripeProvider(t *testing.T, handler http.HandlerFunc) *StripeProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeProviderWithBackends("sk_test_123", &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
}

func writeStripeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"` + code + `","message":"` + code + `"}}`))
}

func TestStripeProvider_GetCoupon(t *testing.T) {
	p := newTestStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/coupons/referral_40off":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"referral_40off","object":"coupon","name":"Referral 40% OFF","percent_off":40,"duration":"forever"}`))
		default:
			writeStripeError(w, http.StatusNotFound, "resource_missing")
		}
	})

	t.Run("Success - existing coupon", func(t *testing.T) {
		c, err := p.GetCoupon(context.Background(), "referral_40off")
		require.NoError(t, err)
		assert.Equal(t, "referral_40off", c.ID)
		assert.Equal(t, float64(40), c.PercentOff)
	})

	t.Run("Error - missing coupon maps to ErrCouponNotFound", func(t *testing.T) {
		_, err := p.GetCoupon(context.Background(), "referral_60off")
		assert.ErrorIs(t, err, ErrCouponNotFound)
	})
}

func TestStripeProvider_CreateCoupon_AlreadyExists(t *testing.T) {
	p := newTestStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "referral_20off", r.PostForm.Get("id"))
		assert.Equal(t, "forever", r.PostForm.Get("duration"))
		writeStripeError(w, http.StatusBadRequest, "resource_already_exists")
	})

	_, err := p.CreateCoupon(context.Background(), "referral_20off", "Referral 20% OFF", 20)
	assert.ErrorIs(t, err, ErrCouponExists)
}

func TestStripeProvider_GetSubscription(t *testing.T) {
	p := newTestStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "sub_1",
			"object": "subscription",
			"status": "trialing",
			"customer": "cus_1",
			"cancel_at_period_end": true,
			"trial_start": 1700000000,
			"trial_end": 1701209600,
			"metadata": {"student_id": "stu_1", "enrollment_fee": "4000"},
			"discount": {"id": "di_1", "object": "discount", "coupon": {"id": "referral_20off", "object": "coupon", "percent_off": 20}}
		}`))
	})

	sub, err := p.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "trialing", sub.Status)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "referral_20off", sub.CouponID)
	assert.True(t, sub.CancelScheduled())
	assert.Equal(t, "stu_1", sub.Metadata["student_id"])
}

func TestStripeProvider_EnsureMonthlyPrice_Memoized(t *testing.T) {
	var lists, creates int32
	p := newTestStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/prices":
			atomic.AddInt32(&lists, 1)
			_, _ = w.Write([]byte(`{"object":"list","data":[],"has_more":false,"url":"/v1/prices"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/prices":
			atomic.AddInt32(&creates, 1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "20000", r.PostForm.Get("unit_amount"))
			assert.Equal(t, "month", r.PostForm.Get("recurring[interval]"))
			_, _ = w.Write([]byte(`{"id":"price_123","object":"price","unit_amount":20000,"currency":"usd","recurring":{"interval":"month"}}`))
		default:
			writeStripeError(w, http.StatusNotFound, "resource_missing")
		}
	})

	spec := PriceSpec{UnitAmount: 20000, Currency: "USD", ProductName: "Monthly Tuition"}
	for i := 0; i < 3; i++ {
		id, err := p.EnsureMonthlyPrice(context.Background(), spec)
		require.NoError(t, err)
		assert.Equal(t, "price_123", id)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&lists))
	assert.Equal(t, int32(1), atomic.LoadInt32(&creates))
}

func TestStripeProvider_DeleteSubscriptionDiscount_MissingIsNoop(t *testing.T) {
	p := newTestStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/subscriptions/sub_1/discount", r.URL.Path)
		writeStripeError(w, http.StatusNotFound, "resource_missing")
	})

	assert.NoError(t, p.DeleteSubscriptionDiscount(context.Background(), "sub_1"))
}

func TestStripeProvider_SetSubscriptionCoupon_MissingCoupon(t *testing.T) {
	p := newTestStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "referral_20off", r.PostForm.Get("coupon"))
		writeStripeError(w, http.StatusBadRequest, "resource_missing")
	})

	err := p.SetSubscriptionCoupon(context.Background(), "sub_1", "referral_20off")
	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestHasStripeCode(t *testing.T) {
	err := &stripe.Error{Code: stripe.ErrorCodeResourceMissing}
	assert.True(t, hasStripeCode(err, stripe.ErrorCodeResourceMissing))
	assert.False(t, hasStripeCode(err, stripe.ErrorCodeResourceAlreadyExists))
	assert.False(t, hasStripeCode(errors.New("plain"), stripe.ErrorCodeResourceMissing))
}
