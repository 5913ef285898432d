package billing

import (
	"context"
	"errors"

	"github.com/am0414/success-academy-international/pkg/domain"
)

// FeeCharge asks for the one-time enrollment fee of a student
type FeeCharge struct {
	StudentID   string
	CustomerID  string
	AmountCents int64
	// InvoiceID attaches the fee to a specific draft invoice; empty leaves it
	// pending for the next invoice.
	InvoiceID string
}

// FeeOutcome describes what ChargeEnrollmentFeeOnce did
type FeeOutcome string

const (
	FeeCharged        FeeOutcome = "charged"
	FeeAlreadyCharged FeeOutcome = "already_charged"
	FeeAlreadyPending FeeOutcome = "already_pending"
	FeeWaived         FeeOutcome = "waived"
)

// ChargeEnrollmentFeeOnce adds the enrollment fee to the customer's invoices
// at most once per student lifetime. The fee flag is claimed with a
// conditional update before the provider is called; if the provider call
// fails the flag is released so a later event can retry.
func (s *Service) ChargeEnrollmentFeeOnce(ctx context.Context, fc FeeCharge) (FeeOutcome, error) {
	if fc.AmountCents <= 0 {
		if _, err := s.repos.Students().MarkEnrollmentFeeCharged(ctx, fc.StudentID); err != nil {
			return "", err
		}
		s.metrics.EnrollmentFee(string(FeeWaived))
		return FeeWaived, nil
	}
	if fc.CustomerID == "" {
		return "", domain.NewValidationError("customer id is required to charge the enrollment fee")
	}

	claimed, err := s.repos.Students().MarkEnrollmentFeeCharged(ctx, fc.StudentID)
	if err != nil {
		return "", err
	}
	if !claimed {
		s.metrics.EnrollmentFee(string(FeeAlreadyCharged))
		return FeeAlreadyCharged, nil
	}

	outcome, err := s.addFeeItem(ctx, fc)
	if err != nil {
		if resetErr := s.repos.Students().ResetEnrollmentFee(ctx, fc.StudentID); resetErr != nil {
			s.log.Error("failed to release enrollment fee flag", "student_id", fc.StudentID, "error", resetErr)
			err = errors.Join(err, resetErr)
		}
		s.metrics.EnrollmentFee("error")
		return "", err
	}

	s.metrics.EnrollmentFee(string(outcome))
	return outcome, nil
}

func (s *Service) addFeeItem(ctx context.Context, fc FeeCharge) (FeeOutcome, error) {
	pending, err := s.provider.ListPendingInvoiceItems(ctx, fc.CustomerID)
	if err != nil {
		return "", domain.NewProviderError("list invoice items", err)
	}
	for _, item := range pending {
		if item.Description == EnrollmentFeeDescription {
			s.log.Info("enrollment fee already pending", "student_id", fc.StudentID, "invoice_item_id", item.ID)
			return FeeAlreadyPending, nil
		}
	}

	item, err := s.provider.CreateInvoiceItem(ctx, InvoiceItemInput{
		CustomerID:  fc.CustomerID,
		InvoiceID:   fc.InvoiceID,
		Amount:      fc.AmountCents,
		Currency:    s.config.Currency,
		Description: EnrollmentFeeDescription,
	})
	if err != nil {
		return "", domain.NewProviderError("create invoice item", err)
	}

	s.log.Info("enrollment fee charged",
		"student_id", fc.StudentID,
		"customer_id", fc.CustomerID,
		"invoice_item_id", item.ID,
		"amount", fc.AmountCents,
	)
	return FeeCharged, nil
}

// deletePendingItems removes every pending invoice item of a customer
func (s *Service) deletePendingItems(ctx context.Context, customerID string) error {
	if customerID == "" {
		return nil
	}
	items, err := s.provider.ListPendingInvoiceItems(ctx, customerID)
	if err != nil {
		return domain.NewProviderError("list invoice items", err)
	}
	for _, item := range items {
		if err := s.provider.DeleteInvoiceItem(ctx, item.ID); err != nil {
			return domain.NewProviderError("delete invoice item", err)
		}
		s.log.Info("pending invoice item deleted", "customer_id", customerID, "invoice_item_id", item.ID, "description", item.Description)
	}
	return nil
}
