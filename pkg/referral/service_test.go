package referral

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/am0414/success-academy-international/pkg/domain"
	"github.com/am0414/success-academy-international/pkg/logger"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/am0414/success-academy-international/pkg/store"
	"github.com/am0414/success-academy-international/pkg/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscounts struct {
	mu    sync.Mutex
	codes [][]string
	err   error
}

func (f *fakeDiscounts) UpdateReferrerDiscounts(_ context.Context, codes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, codes)
	return f.err
}

func newTestService(t *testing.T) (*Service, *store.Store, *fakeDiscounts) {
	t.Helper()
	st := storetest.New(t)
	fd := &fakeDiscounts{}
	return NewService(st, fd, logger.NewNop()), st, fd
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(CodeAlphabet, c), "unexpected character %q", c)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestService_GetOrCreateCode(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - created once and reused", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		student := storetest.Student(t, st, storetest.Parent(t, st))

		first, err := svc.GetOrCreateCode(ctx, student.ID)
		require.NoError(t, err)
		assert.Len(t, first.Code, CodeLength)

		second, err := svc.GetOrCreateCode(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Code, second.Code)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("Success - taken codes are skipped", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		other := storetest.Student(t, st, storetest.Parent(t, st))
		storetest.Code(t, st, other, "TAKEN2")
		student := storetest.Student(t, st, storetest.Parent(t, st))

		candidates := []string{"TAKEN2", "TAKEN2", "FRESH3"}
		svc.generate = func() (string, error) {
			c := candidates[0]
			candidates = candidates[1:]
			return c, nil
		}

		rc, err := svc.GetOrCreateCode(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, "FRESH3", rc.Code)
	})

	t.Run("Error - gives up after repeated collisions", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		other := storetest.Student(t, st, storetest.Parent(t, st))
		storetest.Code(t, st, other, "TAKEN2")
		student := storetest.Student(t, st, storetest.Parent(t, st))
		calls := 0
		svc.generate = func() (string, error) {
			calls++
			return "TAKEN2", nil
		}

		_, err := svc.GetOrCreateCode(ctx, student.ID)
		assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
		assert.Equal(t, maxCodeAttempts, calls)
	})

	t.Run("Error - unknown student", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.GetOrCreateCode(ctx, uuid.NewString())
		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("Error - generator failure", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		student := storetest.Student(t, st, storetest.Parent(t, st))
		svc.generate = func() (string, error) { return "", errors.New("entropy unavailable") }

		_, err := svc.GetOrCreateCode(ctx, student.ID)
		assert.Error(t, err)
	})
}

func TestService_StatsForStudent(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	student := storetest.Student(t, st, storetest.Parent(t, st))
	code := storetest.Code(t, st, student, "STAT23")
	storetest.ActiveReferrals(t, st, code, 3)
	trial := storetest.Student(t, st, storetest.Parent(t, st))
	storetest.Edge(t, st, code, trial, models.ReferralTrial)

	stats, err := svc.StatsForStudent(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, "STAT23", stats.ReferralCode)
	assert.Equal(t, 3, stats.ActiveReferrals)
	assert.Equal(t, 60, stats.DiscountPercent)
	require.Len(t, stats.Referrals, 3)
	for _, r := range stats.Referrals {
		assert.Equal(t, models.ReferralActive, r.Status)
	}
}

func TestService_StatsForParent(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	parent := storetest.Parent(t, st)
	withCode := storetest.Student(t, st, parent)
	code := storetest.Code(t, st, withCode, "FAM234")
	storetest.ActiveReferrals(t, st, code, 6)
	storetest.Student(t, st, parent)

	res, err := svc.StatsForParent(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, res.StudentReferrals, 2)

	byID := make(map[string]models.StudentReferralSummary)
	for _, s := range res.StudentReferrals {
		byID[s.StudentID] = s
		assert.Len(t, s.ReferralCode, CodeLength)
	}
	assert.Equal(t, 6, byID[withCode.ID].ActiveReferrals)
	assert.Equal(t, 100, byID[withCode.ID].DiscountPercent)
	assert.Equal(t, withCode.Name, byID[withCode.ID].StudentName)

	empty, err := svc.StatsForParent(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, empty.StudentReferrals)
}

func TestService_RecordReferral(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - edge starts in trial", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		owner := storetest.Student(t, st, storetest.Parent(t, st))
		storetest.Code(t, st, owner, "REC234")
		referred := storetest.Parent(t, st)

		ref, err := svc.RecordReferral(ctx, " rec234 ", referred.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReferralTrial, ref.Status)
		assert.Equal(t, "REC234", ref.ReferralCode)
		assert.Equal(t, owner.ID, ref.ReferrerStudentID)
		assert.False(t, ref.ReferredStudentID.Valid)

		stored, err := st.Referrals().GetByCodeAndUser(ctx, "REC234", referred.ID)
		require.NoError(t, err)
		assert.Equal(t, ref.ID, stored.ID)
	})

	t.Run("Error - rejections", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		ownerParent := storetest.Parent(t, st)
		owner := storetest.Student(t, st, ownerParent)
		storetest.Code(t, st, owner, "REJ234")
		referred := storetest.Parent(t, st)
		_, err := svc.RecordReferral(ctx, "REJ234", referred.ID)
		require.NoError(t, err)

		tests := []struct {
			name    string
			code    string
			userID  string
			message string
		}{
			{name: "unknown code", code: "NOPE99", userID: referred.ID, message: domain.MsgInvalidReferralCode},
			{name: "own code", code: "REJ234", userID: ownerParent.ID, message: domain.MsgSelfReferral},
			{name: "already referred", code: "rej234", userID: referred.ID, message: domain.MsgAlreadyReferred},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.RecordReferral(ctx, tt.code, tt.userID)
				require.Error(t, err)
				assert.True(t, domain.IsReferralRejected(err))
				assert.Equal(t, tt.message, domain.GetErrorMessage(err))
			})
		}

		edges, err := st.Referrals().ListByCode(ctx, "REJ234")
		require.NoError(t, err)
		assert.Len(t, edges, 1)
	})

	t.Run("Error - missing fields", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.RecordReferral(ctx, "", uuid.NewString())
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - updates edges and pushes discounts", func(t *testing.T) {
		svc, st, fd := newTestService(t)
		owner := storetest.Student(t, st, storetest.Parent(t, st))
		storetest.Code(t, st, owner, "UPD234")
		referred := storetest.Parent(t, st)
		_, err := svc.RecordReferral(ctx, "UPD234", referred.ID)
		require.NoError(t, err)

		updated, err := svc.UpdateStatus(ctx, referred.ID, models.ReferralActive)
		require.NoError(t, err)
		assert.Equal(t, 1, updated)
		assert.Equal(t, [][]string{{"UPD234"}}, fd.codes)

		n, err := st.Referrals().CountActiveByReferrer(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Success - push failure does not fail the update", func(t *testing.T) {
		svc, st, fd := newTestService(t)
		fd.err = errors.New("stripe down")
		owner := storetest.Student(t, st, storetest.Parent(t, st))
		storetest.Code(t, st, owner, "PSH234")
		referred := storetest.Parent(t, st)
		_, err := svc.RecordReferral(ctx, "PSH234", referred.ID)
		require.NoError(t, err)

		updated, err := svc.UpdateStatus(ctx, referred.ID, models.ReferralCancelled)
		require.NoError(t, err)
		assert.Equal(t, 1, updated)
	})

	t.Run("Success - user without edges", func(t *testing.T) {
		svc, _, fd := newTestService(t)

		updated, err := svc.UpdateStatus(ctx, uuid.NewString(), models.ReferralActive)
		require.NoError(t, err)
		assert.Zero(t, updated)
		assert.Empty(t, fd.codes)
	})

	t.Run("Error - unknown status", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.UpdateStatus(ctx, uuid.NewString(), "paused")
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})
}
