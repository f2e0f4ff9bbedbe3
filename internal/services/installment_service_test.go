package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatedesk/ledger-api/internal/models"
	"github.com/estatedesk/ledger-api/internal/money"
	"github.com/estatedesk/ledger-api/internal/repository"
)

// issuedNote creates and issues a note with total 1200
func issuedNote(t *testing.T, ledger *memoryLedger, clock Clock) *models.DemandNote {
	t.Helper()

	svc := newNoteService(ledger, clock)
	note, err := svc.Create(context.Background(), validCreateInput())
	require.NoError(t, err)

	issued, err := svc.Issue(context.Background(), note.ID, Actor{ID: "op-1", Role: "admin"})
	require.NoError(t, err)
	return issued
}

func newInstallmentService(ledger *memoryLedger, clock Clock) *InstallmentService {
	return NewInstallmentService(&installmentReader{ledger: ledger}, ledger, clock)
}

func TestInstallmentService_Post_DraftRejected(t *testing.T) {
	ledger := newMemoryLedger()
	clock := newManualClock(time.Now())
	noteSvc := newNoteService(ledger, clock)
	svc := newInstallmentService(ledger, clock)

	note, err := noteSvc.Create(context.Background(), validCreateInput())
	require.NoError(t, err)

	_, _, err = svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("100"),
		PaymentType: models.PaymentTypeCash,
	})
	assert.ErrorIs(t, err, ErrInvalidState)

	installments, err := svc.ListByNote(context.Background(), note.ID)
	require.NoError(t, err)
	assert.Empty(t, installments)
}

func TestInstallmentService_Post_Walkthrough(t *testing.T) {
	ledger := newMemoryLedger()
	clock := newManualClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	note := issuedNote(t, ledger, clock)
	svc := newInstallmentService(ledger, clock)

	inst, updated, err := svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("500"),
		PaymentType: models.PaymentTypeUPI,
		PaymentRef:  "UTR-9001",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inst.ReceiptNo)
	assert.Equal(t, "RCP-000001", inst.FormattedReceiptNo())
	assert.Equal(t, models.DemandNoteStatusPartialPaid, updated.Status)
	assert.True(t, inst.ReceiptDate.Equal(clock.Now()))

	inst, updated, err = svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("700"),
		PaymentType: models.PaymentTypeBankTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inst.ReceiptNo)
	assert.Equal(t, models.DemandNoteStatusPaid, updated.Status)

	paid, err := ledger.SumByDemandNoteID(context.Background(), note.ID)
	require.NoError(t, err)
	assert.Equal(t, "1200", paid.String())
	assert.True(t, updated.TotalDue(paid).IsZero())
}

func TestInstallmentService_Post_Overpayment(t *testing.T) {
	ledger := newMemoryLedger()
	clock := newManualClock(time.Now())
	note := issuedNote(t, ledger, clock)
	svc := newInstallmentService(ledger, clock)

	// More than the full total
	_, _, err := svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("1200.01"),
		PaymentType: models.PaymentTypeCash,
	})
	assert.ErrorIs(t, err, ErrOverpayment)

	// Exceeding the remaining due after a partial payment
	_, _, err = svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("500"),
		PaymentType: models.PaymentTypeCash,
	})
	require.NoError(t, err)

	_, _, err = svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("700.01"),
		PaymentType: models.PaymentTypeCash,
	})
	assert.ErrorIs(t, err, ErrOverpayment)

	// A rejected posting leaves no trace
	installments, err := svc.ListByNote(context.Background(), note.ID)
	require.NoError(t, err)
	assert.Len(t, installments, 1)
}

func TestInstallmentService_Post_Validation(t *testing.T) {
	ledger := newMemoryLedger()
	clock := newManualClock(time.Now())
	note := issuedNote(t, ledger, clock)
	svc := newInstallmentService(ledger, clock)

	_, _, err := svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.Zero,
		PaymentType: models.PaymentTypeCash,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("-10"),
		PaymentType: models.PaymentTypeCash,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("100"),
		PaymentType: "  ",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestInstallmentService_Post_ReceiptNumbersMonotonic(t *testing.T) {
	ledger := newMemoryLedger()
	clock := newManualClock(time.Now())
	svc := newInstallmentService(ledger, clock)

	noteA := issuedNote(t, ledger, clock)
	noteB := issuedNote(t, ledger, clock)

	// Receipt numbers are system-wide, not per note
	var receipts []int64
	for _, noteID := range []uint{noteA.ID, noteB.ID, noteA.ID, noteB.ID} {
		inst, _, err := svc.Post(context.Background(), noteID, PostInstallmentInput{
			Amount:      money.MustFromString("100"),
			PaymentType: models.PaymentTypeUPI,
		})
		require.NoError(t, err)
		receipts = append(receipts, inst.ReceiptNo)
	}

	assert.Equal(t, []int64{1, 2, 3, 4}, receipts)
}

func TestInstallmentService_Post_ExplicitReceiptDate(t *testing.T) {
	ledger := newMemoryLedger()
	clock := newManualClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	note := issuedNote(t, ledger, clock)
	svc := newInstallmentService(ledger, clock)

	backdated := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	inst, _, err := svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("100"),
		PaymentType: models.PaymentTypeCheque,
		ReceiptDate: &backdated,
	})
	require.NoError(t, err)
	assert.True(t, inst.ReceiptDate.Equal(backdated))
}

func TestInstallmentService_Post_Attachments(t *testing.T) {
	ledger := newMemoryLedger()
	clock := newManualClock(time.Now())
	note := issuedNote(t, ledger, clock)
	svc := newInstallmentService(ledger, clock)

	inst, _, err := svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("100"),
		PaymentType: models.PaymentTypeOnline,
		Attachments: []AttachmentInput{
			{FileRef: "receipts/2026/02/a.pdf", DisplayName: "challan.pdf"},
			{FileRef: "receipts/2026/02/b.jpg", DisplayName: "screenshot.jpg"},
		},
	})
	require.NoError(t, err)

	require.Len(t, inst.Attachments, 2)
	assert.Equal(t, 0, inst.Attachments[0].Position)
	assert.Equal(t, "challan.pdf", inst.Attachments[0].DisplayName)
	assert.Equal(t, 1, inst.Attachments[1].Position)
}

func TestInstallmentService_Post_Serialized(t *testing.T) {
	ledger := newMemoryLedger()
	clock := newManualClock(time.Now())
	note := issuedNote(t, ledger, clock)
	svc := newInstallmentService(ledger, clock)

	// Two concurrent 700s against a due of 1200: at most one can land. The
	// other either loses the lock race or sees the reduced due and is
	// rejected as an overpayment. Either way the invariant holds.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Post(context.Background(), note.ID, PostInstallmentInput{
				Amount:      money.MustFromString("700"),
				PaymentType: models.PaymentTypeUPI,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, ErrOverpayment) && !errors.Is(err, ErrConcurrency) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.LessOrEqual(t, succeeded, 1)

	paid, err := ledger.SumByDemandNoteID(context.Background(), note.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, paid.Cmp(money.MustFromString("1200")), 0)
}

func TestInstallmentService_Post_LockContention(t *testing.T) {
	ledger := newMemoryLedger()
	clock := newManualClock(time.Now())
	note := issuedNote(t, ledger, clock)
	svc := newInstallmentService(ledger, clock)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- ledger.Locked(context.Background(), note.ID, func(tx repository.NoteTx) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	_, _, err := svc.Post(context.Background(), note.ID, PostInstallmentInput{
		Amount:      money.MustFromString("100"),
		PaymentType: models.PaymentTypeCash,
	})
	assert.ErrorIs(t, err, ErrConcurrency)

	close(release)
	require.NoError(t, <-done)
}

func TestInstallmentService_ListByNote_NotFound(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newInstallmentService(ledger, newManualClock(time.Now()))

	_, err := svc.ListByNote(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInstallmentService_FindByID_NotFound(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newInstallmentService(ledger, newManualClock(time.Now()))

	_, err := svc.FindByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}
