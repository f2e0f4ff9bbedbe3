package services

import (
	"context"

	"github.com/estatedesk/ledger-api/internal/models"
	"github.com/estatedesk/ledger-api/internal/repository"
)

// LedgerService is the façade over the demand note store and the installment
// ledger. It only marshals parameters and delegates; every rule lives in the
// underlying services.
type LedgerService struct {
	notes        *DemandNoteService
	installments *InstallmentService
}

func NewLedgerService(notes *DemandNoteService, installments *InstallmentService) *LedgerService {
	return &LedgerService{
		notes:        notes,
		installments: installments,
	}
}

// CreateDemandNote creates a draft note
func (s *LedgerService) CreateDemandNote(ctx context.Context, input CreateDemandNoteInput) (*models.DemandNote, error) {
	return s.notes.Create(ctx, input)
}

// IssueDemandNote moves a draft note to pending
func (s *LedgerService) IssueDemandNote(ctx context.Context, id uint, actor Actor) (*models.DemandNote, error) {
	return s.notes.Issue(ctx, id, actor)
}

// PostInstallment records a payment against a note
func (s *LedgerService) PostInstallment(ctx context.Context, noteID uint, input PostInstallmentInput) (*models.Installment, *models.DemandNote, error) {
	return s.installments.Post(ctx, noteID, input)
}

// SetDemandNoteStatus applies an operator status override
func (s *LedgerService) SetDemandNoteStatus(ctx context.Context, id uint, status string, actor Actor) (*models.DemandNote, error) {
	return s.notes.SetStatus(ctx, id, status, actor)
}

// SweepOverdue flips stale pending/partial_paid notes to overdue
func (s *LedgerService) SweepOverdue(ctx context.Context, scope *repository.SweepScope) (int, error) {
	return s.notes.SweepOverdue(ctx, scope)
}
