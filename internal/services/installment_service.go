package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/estatedesk/ledger-api/internal/models"
	"github.com/estatedesk/ledger-api/internal/money"
	"github.com/estatedesk/ledger-api/internal/repository"
	"github.com/estatedesk/ledger-api/internal/statemachine"
)

// AttachmentInput is an opaque file reference handed over by the attachment
// store, with an optional display name.
type AttachmentInput struct {
	FileRef     string
	DisplayName string
}

// PostInstallmentInput carries the fields for posting an installment
type PostInstallmentInput struct {
	Amount      money.Money
	PaymentType string
	PaymentRef  string
	Note        string
	ReceiptDate *time.Time
	Attachments []AttachmentInput
}

type InstallmentService struct {
	repo     repository.InstallmentRepository
	noteRepo repository.DemandNoteRepository
	clock    Clock
}

func NewInstallmentService(
	repo repository.InstallmentRepository,
	noteRepo repository.DemandNoteRepository,
	clock Clock,
) *InstallmentService {
	return &InstallmentService{
		repo:     repo,
		noteRepo: noteRepo,
		clock:    clock,
	}
}

// Post records an installment against a demand note. The whole protocol runs
// under the note's exclusive lock: the overpayment check, receipt number
// assignment, the append and the status recompute commit atomically or not
// at all. Two concurrent postings against the same note serialize, so the
// second one sees the first one's paid total.
func (s *InstallmentService) Post(ctx context.Context, noteID uint, input PostInstallmentInput) (*models.Installment, *models.DemandNote, error) {
	var (
		posted      *models.Installment
		updatedNote *models.DemandNote
	)

	err := s.noteRepo.Locked(ctx, noteID, func(tx repository.NoteTx) error {
		note := tx.Note()
		if !note.MayPost() {
			return fmt.Errorf("demand note %s has not been issued: %w", note.DemandCode, ErrInvalidState)
		}

		paid, err := tx.SumInstallments()
		if err != nil {
			return fmt.Errorf("failed to sum installments: %w", err)
		}
		due := note.TotalDue(paid)

		if !input.Amount.IsPositive() {
			return fmt.Errorf("amount must be positive: %w", ErrValidation)
		}
		if strings.TrimSpace(input.PaymentType) == "" {
			return fmt.Errorf("payment_type is required: %w", ErrValidation)
		}
		if input.Amount.Cmp(due) > 0 {
			return fmt.Errorf("amount %s exceeds remaining due %s: %w", input.Amount, due, ErrOverpayment)
		}

		receiptNo, err := tx.NextReceiptNo()
		if err != nil {
			return fmt.Errorf("failed to assign receipt number: %w", err)
		}

		receiptDate := s.clock.Now()
		if input.ReceiptDate != nil {
			receiptDate = *input.ReceiptDate
		}

		inst := &models.Installment{
			DemandNoteID: note.ID,
			ReceiptNo:    receiptNo,
			ReceiptDate:  receiptDate,
			Amount:       input.Amount,
			PaymentType:  input.PaymentType,
			PaymentRef:   input.PaymentRef,
			Note:         input.Note,
		}
		for i, a := range input.Attachments {
			inst.Attachments = append(inst.Attachments, models.InstallmentAttachment{
				FileRef:     a.FileRef,
				DisplayName: a.DisplayName,
				Position:    i,
			})
		}

		if err := tx.CreateInstallment(inst); err != nil {
			return fmt.Errorf("failed to create installment: %w", err)
		}

		newPaid := paid.Add(input.Amount)
		newDue := note.TotalDue(newPaid)

		fsm := statemachine.NewDemandNoteFSM(note)
		switch {
		case newDue.IsZero():
			if note.Status != models.DemandNoteStatusPaid {
				if err := fsm.Settle(ctx); err != nil {
					return err
				}
			}
		case newPaid.IsPositive():
			if note.Status != models.DemandNoteStatusPartialPaid {
				if err := fsm.RecordPartial(ctx); err != nil {
					return err
				}
			}
		}

		if err := tx.SaveNote(); err != nil {
			return err
		}

		instSnapshot := *inst
		noteSnapshot := *note
		posted = &instSnapshot
		updatedNote = &noteSnapshot
		return nil
	})
	if err != nil {
		return nil, nil, s.mapNoteErr(noteID, err)
	}

	return posted, updatedNote, nil
}

// FindByID loads a single installment with attachments
func (s *InstallmentService) FindByID(ctx context.Context, id uint) (*models.Installment, error) {
	inst, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("installment %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return inst, nil
}

// ListByNote returns all installments posted against a note, oldest first
func (s *InstallmentService) ListByNote(ctx context.Context, noteID uint) ([]models.Installment, error) {
	if _, err := s.noteRepo.FindByID(ctx, noteID); err != nil {
		return nil, s.mapNoteErr(noteID, err)
	}
	return s.repo.FindByDemandNoteID(ctx, noteID)
}

func (s *InstallmentService) mapNoteErr(id uint, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("demand note %d: %w", id, ErrNotFound)
	case errors.Is(err, repository.ErrLockNotAvailable):
		return fmt.Errorf("demand note %d: %w", id, ErrConcurrency)
	}
	return err
}
