package handlers

import (
	"context"
	"net/http"
	"time"

	apierrors "github.com/am0414/success-academy-international/pkg/api/errors"
	"github.com/am0414/success-academy-international/pkg/billing"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// BillingService is the part of the billing engine exposed to clients
type BillingService interface {
	CreateCheckoutSession(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutResult, error)
	CreateCustomerPortalSession(ctx context.Context, studentID, returnURL string) (*models.CustomerPortalResponse, error)
	ValidReturnURL(u string) bool
}

// BillingHandler handles checkout and customer portal requests
type BillingHandler struct {
	service   BillingService
	validator *validator.Validate
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(service BillingService) *BillingHandler {
	return &BillingHandler{
		service:   service,
		validator: validator.New(),
	}
}

// CreateCheckout godoc
// @Summary Start a monthly subscription checkout
// @Description Creates a hosted checkout session for a student. The monthly discount comes from the
// @Description student's active referrals; a referral or special code discounts the enrollment fee.
// @Description When referrals cover the whole price the student is activated without a checkout.
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body models.CheckoutRequest true "Checkout request"
// @Success 200 {object} models.CheckoutResponse
// @Success 200 {object} models.FreeActivationResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /checkout [post]
func (h *BillingHandler) CreateCheckout(c echo.Context) error {
	var req models.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	result, err := h.service.CreateCheckoutSession(ctx, billing.CheckoutInput{
		StudentID:       req.StudentID,
		UserID:          req.UserID,
		CustomerEmail:   req.CustomerEmail,
		ReferralCode:    req.ReferralCode,
		DiscountPercent: req.DiscountPercent,
	})
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	if result.Free != nil {
		return c.JSON(http.StatusOK, result.Free)
	}
	return c.JSON(http.StatusOK, result.Session)
}

// CreatePortalSession godoc
// @Summary Open the billing portal
// @Description Creates a customer portal session for the student's billing customer
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body models.PortalRequest true "Portal request"
// @Success 200 {object} models.CustomerPortalResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse "Student has no billing customer"
// @Failure 500 {object} models.ErrorResponse
// @Router /billing/portal [post]
func (h *BillingHandler) CreatePortalSession(c echo.Context) error {
	var req models.PortalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	// Only allow returning to our own frontend
	if req.ReturnURL != "" && !h.service.ValidReturnURL(req.ReturnURL) {
		return apierrors.BadRequestError(c, "returnUrl must point to the application")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	resp, err := h.service.CreateCustomerPortalSession(ctx, req.StudentID, req.ReturnURL)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}
