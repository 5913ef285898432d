package billing

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/am0414/success-academy-international/pkg/logger"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/am0414/success-academy-international/pkg/store"
	"github.com/am0414/success-academy-international/pkg/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

const testWebhookSecret = "whsec_test"

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		WebhookSecret:      testWebhookSecret,
		MonthlyPriceCents:  20000,
		EnrollmentFeeCents: 5000,
		TrialDays:          14,
		Currency:           "usd",
		FrontendURL:        "http://localhost:3000",
	}
}

func newTestService(t *testing.T) (*Service, *store.Store, *fakeProvider) {
	t.Helper()
	st := storetest.New(t)
	fp := newFakeProvider()
	svc := NewService(st, fp, st.WebhookEvents(), testConfig(), logger.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, st, fp
}

// subscribedStudent seeds a family whose student has a provider subscription
// known to both the store and the fake provider
func subscribedStudent(t *testing.T, st *store.Store, fp *fakeProvider, status string, opts ...storetest.StudentOption) *models.Student {
	t.Helper()
	suffix := uuid.NewString()[:8]
	customerID, subscriptionID := "cus_"+suffix, "sub_"+suffix

	opts = append([]storetest.StudentOption{storetest.WithSubscription(customerID, subscriptionID, status)}, opts...)
	student := storetest.Student(t, st, storetest.Parent(t, st), opts...)

	providerStatus := "active"
	switch status {
	case models.SubscriptionTrial:
		providerStatus = "trialing"
	case models.SubscriptionPastDue:
		providerStatus = "past_due"
	case models.SubscriptionCancelled:
		providerStatus = "canceled"
	}
	fp.addSubscription(&Subscription{
		ID:         subscriptionID,
		CustomerID: customerID,
		Status:     providerStatus,
		Metadata:   map[string]string{MetaStudentID: student.ID},
	})
	return student
}

func testEvent(t *testing.T, id, eventType string, object any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func checkoutObject(studentID, customerID, subscriptionID string, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":                  "cs_" + uuid.NewString()[:8],
		"object":              "checkout.session",
		"client_reference_id": studentID,
		"customer":            customerID,
		"subscription":        subscriptionID,
		"status":              "complete",
		"metadata":            metadata,
	}
}

func subscriptionObject(id, customerID, status string, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":       id,
		"object":   "subscription",
		"customer": customerID,
		"status":   status,
		"metadata": metadata,
	}
}

func invoiceObject(id, subscriptionID, customerID, billingReason, status string, amountPaid int64) map[string]any {
	return map[string]any{
		"id":             id,
		"object":         "invoice",
		"subscription":   subscriptionID,
		"customer":       customerID,
		"billing_reason": billingReason,
		"status":         status,
		"amount_paid":    amountPaid,
	}
}

type sentEmail struct {
	to      string
	subject string
}

type fakeEmailSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmailSender) SendEmail(toEmail, _, subject, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to: toEmail, subject: subject})
	return nil
}

func (f *fakeEmailSender) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, e := range f.sent {
		out = append(out, e.subject)
	}
	return out
}

type fakeRecorder struct {
	mu       sync.Mutex
	webhooks map[string]int
	checkout map[string]int
	fees     map[string]int
	swaps    int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		webhooks: make(map[string]int),
		checkout: make(map[string]int),
		fees:     make(map[string]int),
	}
}

func (r *fakeRecorder) WebhookEvent(eventType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[eventType+"/"+outcome]++
}

func (r *fakeRecorder) CheckoutSession(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkout[outcome]++
}

func (r *fakeRecorder) CouponSwap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swaps++
}

func (r *fakeRecorder) EnrollmentFee(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fees[outcome]++
}
