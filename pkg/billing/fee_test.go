package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/am0414/success-academy-international/pkg/domain"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/am0414/success-academy-international/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ChargeEnrollmentFeeOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - charges once then reports already charged", func(t *testing.T) {
		svc, st, fp := newTestService(t)
		rec := newFakeRecorder()
		svc.SetRecorder(rec)
		student := subscribedStudent(t, st, fp, models.SubscriptionTrial)
		fc := FeeCharge{StudentID: student.ID, CustomerID: student.StripeCustomerID.String, AmountCents: 5000}

		outcome, err := svc.ChargeEnrollmentFeeOnce(ctx, fc)
		require.NoError(t, err)
		assert.Equal(t, FeeCharged, outcome)

		outcome, err = svc.ChargeEnrollmentFeeOnce(ctx, fc)
		require.NoError(t, err)
		assert.Equal(t, FeeAlreadyCharged, outcome)

		items := fp.pendingItems(fc.CustomerID)
		require.Len(t, items, 1)
		assert.Equal(t, EnrollmentFeeDescription, items[0].Description)
		assert.Equal(t, int64(5000), items[0].Amount)
		assert.Equal(t, "usd", fp.invoiceItems[0].Currency)
		assert.Equal(t, 1, rec.fees["charged"])
		assert.Equal(t, 1, rec.fees["already_charged"])

		got, err := st.Students().GetByID(ctx, student.ID)
		require.NoError(t, err)
		assert.True(t, got.EnrollmentFeeCharged)
	})

	t.Run("Success - concurrent callers create a single item", func(t *testing.T) {
		svc, st, fp := newTestService(t)
		student := subscribedStudent(t, st, fp, models.SubscriptionTrial)
		fc := FeeCharge{StudentID: student.ID, CustomerID: student.StripeCustomerID.String, AmountCents: 4000}

		const callers = 10
		var wg sync.WaitGroup
		outcomes := make(chan FeeOutcome, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcome, err := svc.ChargeEnrollmentFeeOnce(ctx, fc)
				assert.NoError(t, err)
				outcomes <- outcome
			}()
		}
		wg.Wait()
		close(outcomes)

		charged := 0
		for o := range outcomes {
			if o == FeeCharged {
				charged++
			}
		}
		assert.Equal(t, 1, charged)
		assert.Equal(t, 1, fp.callCount("CreateInvoiceItem"))
	})

	t.Run("Success - zero fee is waived without a provider call", func(t *testing.T) {
		svc, st, fp := newTestService(t)
		student := subscribedStudent(t, st, fp, models.SubscriptionTrial)

		outcome, err := svc.ChargeEnrollmentFeeOnce(ctx, FeeCharge{StudentID: student.ID, CustomerID: student.StripeCustomerID.String})
		require.NoError(t, err)
		assert.Equal(t, FeeWaived, outcome)
		assert.Zero(t, fp.callCount("CreateInvoiceItem"))

		got, err := st.Students().GetByID(ctx, student.ID)
		require.NoError(t, err)
		assert.True(t, got.EnrollmentFeeCharged)
	})

	t.Run("Success - pending fee item is not duplicated", func(t *testing.T) {
		svc, st, fp := newTestService(t)
		student := subscribedStudent(t, st, fp, models.SubscriptionTrial)
		customerID := student.StripeCustomerID.String
		fp.pending[customerID] = []InvoiceItem{{ID: "ii_existing", Description: EnrollmentFeeDescription, Amount: 5000}}

		outcome, err := svc.ChargeEnrollmentFeeOnce(ctx, FeeCharge{StudentID: student.ID, CustomerID: customerID, AmountCents: 5000})
		require.NoError(t, err)
		assert.Equal(t, FeeAlreadyPending, outcome)
		assert.Zero(t, fp.callCount("CreateInvoiceItem"))
	})

	t.Run("Error - provider failure releases the flag", func(t *testing.T) {
		svc, st, fp := newTestService(t)
		student := subscribedStudent(t, st, fp, models.SubscriptionTrial)
		fc := FeeCharge{StudentID: student.ID, CustomerID: student.StripeCustomerID.String, AmountCents: 5000}
		fp.failOnce("CreateInvoiceItem", errors.New("card_declined"))

		_, err := svc.ChargeEnrollmentFeeOnce(ctx, fc)
		require.Error(t, err)
		assert.True(t, domain.IsProvider(err))

		got, err := st.Students().GetByID(ctx, student.ID)
		require.NoError(t, err)
		assert.False(t, got.EnrollmentFeeCharged)

		outcome, err := svc.ChargeEnrollmentFeeOnce(ctx, fc)
		require.NoError(t, err)
		assert.Equal(t, FeeCharged, outcome)
		assert.Len(t, fp.pendingItems(fc.CustomerID), 1)
	})

	t.Run("Error - customer is required", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		student := storetest.Student(t, st, storetest.Parent(t, st))

		_, err := svc.ChargeEnrollmentFeeOnce(ctx, FeeCharge{StudentID: student.ID, AmountCents: 5000})
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})
}
