package handlers

import (
	"context"
	"net/http"
	"time"

	apierrors "github.com/am0414/success-academy-international/pkg/api/errors"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ReferralService manages referral codes and edges
type ReferralService interface {
	StatsForStudent(ctx context.Context, studentID string) (*models.ReferralStatsResponse, error)
	StatsForParent(ctx context.Context, parentID string) (*models.ParentReferralsResponse, error)
	RecordReferral(ctx context.Context, code, referredUserID string) (*models.Referral, error)
	UpdateStatus(ctx context.Context, referredUserID, status string) (int, error)
}

// ReferralHandler handles referral operations
type ReferralHandler struct {
	service   ReferralService
	validator *validator.Validate
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(service ReferralService) *ReferralHandler {
	return &ReferralHandler{
		service:   service,
		validator: validator.New(),
	}
}

// GetReferrals godoc
// @Summary Get referral statistics
// @Description With studentId, returns that student's code (created on first request), active
// @Description referral count, discount and edges. With userId, returns a summary per student of the parent.
// @Tags Referrals
// @Produce json
// @Param studentId query string false "Student ID"
// @Param userId query string false "Parent user ID"
// @Success 200 {object} models.ReferralStatsResponse
// @Success 200 {object} models.ParentReferralsResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /referrals [get]
func (h *ReferralHandler) GetReferrals(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if studentID := c.QueryParam("studentId"); studentID != "" {
		stats, err := h.service.StatsForStudent(ctx, studentID)
		if err != nil {
			return apierrors.FromDomain(c, err)
		}
		return c.JSON(http.StatusOK, stats)
	}

	if userID := c.QueryParam("userId"); userID != "" {
		summary, err := h.service.StatsForParent(ctx, userID)
		if err != nil {
			return apierrors.FromDomain(c, err)
		}
		return c.JSON(http.StatusOK, summary)
	}

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "missing_parameter",
		Message: "studentId or userId is required",
	})
}

// CreateReferral godoc
// @Summary Record a referral sign-up
// @Description Records that a user signed up with a referral code
// @Tags Referrals
// @Accept json
// @Produce json
// @Param request body models.CreateReferralRequest true "Referral"
// @Success 200 {object} models.CreateReferralResponse
// @Failure 400 {object} models.ErrorResponse "Invalid code, self-referral or duplicate"
// @Failure 500 {object} models.ErrorResponse
// @Router /referrals [post]
func (h *ReferralHandler) CreateReferral(c echo.Context) error {
	var req models.CreateReferralRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	ref, err := h.service.RecordReferral(ctx, req.ReferralCode, req.ReferredUserID)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, models.CreateReferralResponse{
		Success:  true,
		Referral: ref.View(),
		Message:  "Referral recorded successfully",
	})
}

// UpdateReferralStatus godoc
// @Summary Update referral status
// @Description Moves every referral of a referred user to a new status and updates the referrers' discounts.
// @Description Only the trusted frontend or an admin guard may call this route.
// @Tags Referrals
// @Accept json
// @Produce json
// @Param request body models.UpdateReferralStatusRequest true "Status update"
// @Success 200 {object} models.UpdateReferralStatusResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /referrals/status [put]
func (h *ReferralHandler) UpdateReferralStatus(c echo.Context) error {
	var req models.UpdateReferralStatusRequest
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

	updated, err := h.service.UpdateStatus(ctx, req.UserID, req.NewStatus)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, models.UpdateReferralStatusResponse{
		Success: true,
		Updated: updated,
	})
}
