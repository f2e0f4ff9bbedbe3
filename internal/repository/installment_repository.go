package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/estatedesk/ledger-api/internal/models"
	"github.com/estatedesk/ledger-api/internal/money"
)

// InstallmentRepository defines read access to posted installments. Writes
// only happen inside a NoteTx so the posting protocol stays serialized.
type InstallmentRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Installment, error)
	FindByDemandNoteID(ctx context.Context, noteID uint) ([]models.Installment, error)
	SumByDemandNoteID(ctx context.Context, noteID uint) (money.Money, error)
}

type installmentRepository struct {
	db *gorm.DB
}

// NewInstallmentRepository creates a new installment repository
func NewInstallmentRepository(db *gorm.DB) InstallmentRepository {
	return &installmentRepository{db: db}
}

func (r *installmentRepository) FindByID(ctx context.Context, id uint) (*models.Installment, error) {
	var inst models.Installment
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&inst, id).Error
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *installmentRepository) FindByDemandNoteID(ctx context.Context, noteID uint) ([]models.Installment, error) {
	var installments []models.Installment
	err := r.db.WithContext(ctx).
		Where("demand_note_id = ?", noteID).
		Order("receipt_no ASC").
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Find(&installments).Error
	return installments, err
}

// SumByDemandNoteID returns the paid total for a note outside any lock.
// Display only; the posting protocol always re-reads under its NoteTx.
func (r *installmentRepository) SumByDemandNoteID(ctx context.Context, noteID uint) (money.Money, error) {
	var result struct {
		Total money.Money
	}
	err := r.db.WithContext(ctx).Model(&models.Installment{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("demand_note_id = ?", noteID).
		Scan(&result).Error
	return result.Total, err
}
