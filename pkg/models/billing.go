package models

// CheckoutRequest represents a request to start a monthly subscription for a student.
// DiscountPercent is what the client displayed; the server recomputes it.
type CheckoutRequest struct {
	StudentID       string `json:"studentId" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	CustomerEmail   string `json:"customerEmail" validate:"required,email"`
	DiscountPercent *int   `json:"discountPercent,omitempty" validate:"omitempty,min=0,max=100"`
	ReferralCode    string `json:"referralCode,omitempty" validate:"omitempty,max=32"`
}

// CheckoutResponse represents a hosted checkout session response
type CheckoutResponse struct {
	SessionID             string `json:"sessionId"`
	URL                   string `json:"url"`
	DiscountPercent       int    `json:"discountPercent"`
	EnrollmentFeeDiscount int    `json:"enrollmentFeeDiscount"`
	FinalEnrollmentFee    int64  `json:"finalEnrollmentFee"`
}

// FreeActivationResponse is returned when referrals cover the full monthly price
// and no checkout is needed.
type FreeActivationResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

// PortalRequest represents a request for a billing portal session
type PortalRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	ReturnURL string `json:"returnUrl,omitempty"`
}

// CustomerPortalResponse represents a customer portal session response
type CustomerPortalResponse struct {
	URL string `json:"url"`
}
