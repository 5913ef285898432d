package billing

import (
	"context"
	"time"

	"github.com/am0414/success-academy-international/pkg/logger"
	"github.com/am0414/success-academy-international/pkg/store"
)

// EnrollmentFeeDescription labels the one-time enrollment fee invoice item
const EnrollmentFeeDescription = "Enrollment Fee"

// EmailSender abstracts email sending for billing notifications.
type EmailSender interface {
	SendEmail(toEmail, toName, subject, htmlBody, plainTextBody string) error
}

// Recorder receives billing counters
type Recorder interface {
	WebhookEvent(eventType, outcome string)
	CheckoutSession(outcome string)
	CouponSwap()
	EnrollmentFee(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) WebhookEvent(string, string) {}
func (nopRecorder) CheckoutSession(string) {}
func (nopRecorder) CouponSwap() {}
func (nopRecorder) EnrollmentFee(string) {}

// EventLog remembers provider events whose handling completed
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
}

// Repositories is the persistence the billing engine needs
type Repositories interface {
	Students() store.StudentRepository
	Profiles() store.ProfileRepository
	ReferralCodes() store.ReferralCodeRepository
	Referrals() store.ReferralRepository
	SpecialCodes() store.SpecialCodeRepository
}

// Config holds billing configuration
type Config struct {
	WebhookSecret           string
	MonthlyPriceCents       int64
	EnrollmentFeeCents      int64
	TrialDays               int64
	Currency                string
	ProductName             string
	FrontendURL             string
	CascadeOnReferrerCancel bool
}

// Service reconciles local referral and billing state with the payment provider
type Service struct {
	repos    Repositories
	provider Provider
	events   EventLog
	coupons  *CouponProvisioner
	config   Config
	log      logger.Logger
	email    EmailSender
	metrics  Recorder
	now      func() time.Time

	handlers map[string]eventHandler
}

// NewService creates a new billing service
func NewService(repos Repositories, provider Provider, events EventLog, config Config, log logger.Logger) *Service {
	if config.Currency == "" {
		config.Currency = "usd"
	}
	if config.ProductName == "" {
		config.ProductName = "Monthly Tuition"
	}

	s := &Service{
		repos:    repos,
		provider: provider,
		events:   events,
		coupons:  NewCouponProvisioner(provider, log),
		config:   config,
		log:      log.With("component", "billing"),
		metrics:  nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.handlers = s.eventHandlers()
	return s
}

// SetEmailSender sets the email sender for billing notifications.
func (s *Service) SetEmailSender(e EmailSender) {
	s.email = e
}

// SetRecorder sets the metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.metrics = r
}

// Coupons exposes the coupon provisioner
func (s *Service) Coupons() *CouponProvisioner {
	return s.coupons
}
