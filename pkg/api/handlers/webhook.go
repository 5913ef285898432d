package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	apierrors "github.com/am0414/success-academy-international/pkg/api/errors"
	"github.com/am0414/success-academy-international/pkg/billing"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/labstack/echo/v4"
)

// maxWebhookBodyBytes caps the size of a provider event payload
const maxWebhookBodyBytes = 65536

// WebhookProcessor verifies and applies a signed provider event
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// WebhookHandler receives payment provider webhooks
type WebhookHandler struct {
	processor WebhookProcessor
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
	}
}

// HandleStripe godoc
// @Summary Stripe webhook
// @Description Receives subscription, checkout and invoice events. Returning a non-2xx status makes
// @Description Stripe redeliver the event.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe signature"
// @Success 200 {object} models.WebhookAck
// @Failure 400 {object} models.ErrorResponse "Missing or invalid signature"
// @Failure 500 {object} models.ErrorResponse "Handler failed, event will be redelivered"
// @Router /webhook/stripe [post]
func (h *WebhookHandler) HandleStripe(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get("Stripe-Signature")

	if err := h.processor.HandleWebhook(c.Request().Context(), payload, signature); err != nil {
		if errors.Is(err, billing.ErrMissingSignature) || errors.Is(err, billing.ErrInvalidSignature) {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_signature",
				Message: "Webhook signature verification failed",
			})
		}
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.WebhookAck{Received: true})
}
