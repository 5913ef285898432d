package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/am0414/success-academy-international/pkg/billing"
	"github.com/am0414/success-academy-international/pkg/logger"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/am0414/success-academy-international/pkg/store/storetest"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

type fakeWebhookProcessor struct {
	payload   []byte
	signature string
	err       error
}

func (f *fakeWebhookProcessor) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	f.payload = payload
	f.signature = signature
	return f.err
}

func newWebhookContext(body, signature string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/stripe", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestWebhookHandler_HandleStripe(t *testing.T) {
	t.Run("Success - raw body and signature are forwarded", func(t *testing.T) {
		proc := &fakeWebhookProcessor{}
		h := NewWebhookHandler(proc)
		body := `{"id":"evt_1","type":"invoice.upcoming"}`

		c, rec := newWebhookContext(body, "t=1,v1=abc")
		require.NoError(t, h.HandleStripe(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[models.WebhookAck](t, rec).Received)
		assert.Equal(t, body, string(proc.payload))
		assert.Equal(t, "t=1,v1=abc", proc.signature)
	})

	t.Run("Error - signature problems are 400", func(t *testing.T) {
		for _, sigErr := range []error{
			billing.ErrMissingSignature,
			fmt.Errorf("%w: timestamp too old", billing.ErrInvalidSignature),
		} {
			h := NewWebhookHandler(&fakeWebhookProcessor{err: sigErr})

			c, rec := newWebhookContext(`{}`, "t=1,v1=abc")
			require.NoError(t, h.HandleStripe(c))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_signature", decode[models.ErrorResponse](t, rec).Error)
		}
	})

	t.Run("Error - handler failure is 500 so the event is redelivered", func(t *testing.T) {
		h := NewWebhookHandler(&fakeWebhookProcessor{err: errors.New("database is locked")})

		c, rec := newWebhookContext(`{}`, "t=1,v1=abc")
		require.NoError(t, h.HandleStripe(c))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "database is locked")
	})
}

func TestWebhookHandler_VerifiesSignatures(t *testing.T) {
	const secret = "whsec_handler_test"
	svc := billing.NewService(storetest.New(t), nil, nil, billing.Config{WebhookSecret: secret}, logger.NewNop())
	h := NewWebhookHandler(svc)

	payload := []byte(`{"id":"evt_unhandled","object":"event","type":"customer.created","data":{"object":{}}}`)

	t.Run("Success - signed event of an unhandled type is acknowledged", func(t *testing.T) {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    secret,
			Timestamp: time.Now(),
		})

		c, rec := newWebhookContext(string(signed.Payload), signed.Header)
		require.NoError(t, h.HandleStripe(c))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Error - missing signature header", func(t *testing.T) {
		c, rec := newWebhookContext(string(payload), "")
		require.NoError(t, h.HandleStripe(c))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Error - signed with another secret", func(t *testing.T) {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    "whsec_someone_else",
			Timestamp: time.Now(),
		})

		c, rec := newWebhookContext(string(signed.Payload), signed.Header)
		require.NoError(t, h.HandleStripe(c))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
