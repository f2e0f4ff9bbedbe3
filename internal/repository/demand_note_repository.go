package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/estatedesk/ledger-api/internal/models"
	"github.com/estatedesk/ledger-api/internal/money"
)

// ErrLockNotAvailable is returned when the per-note lock cannot be acquired
// because another operation holds it. Callers decide whether to retry.
var ErrLockNotAvailable = errors.New("demand note is locked by another operation")

// pgLockNotAvailable is the Postgres error code raised by FOR UPDATE NOWAIT
// when the row lock is held elsewhere.
const pgLockNotAvailable = "55P03"

// SweepScope restricts an overdue sweep to a slice of the ledger, e.g. one
// project's bookings.
type SweepScope struct {
	BookingRefPrefix string
}

// NoteTx is a unit of work holding the exclusive per-note lock. Everything
// done through it commits atomically when the enclosing Locked call returns
// nil, and rolls back otherwise.
type NoteTx interface {
	// Note returns the locked demand note snapshot.
	Note() *models.DemandNote
	// Installments returns all installments posted against the note, oldest first.
	Installments() ([]models.Installment, error)
	// SumInstallments returns the authoritative paid total for the note.
	SumInstallments() (money.Money, error)
	// NextReceiptNo draws the next system-wide receipt number.
	NextReceiptNo() (int64, error)
	// CreateInstallment appends an installment (with attachments) to the note.
	CreateInstallment(inst *models.Installment) error
	// SaveNote persists the note's current field values.
	SaveNote() error
}

// DemandNoteRepository defines the interface for demand note data access
type DemandNoteRepository interface {
	Create(ctx context.Context, note *models.DemandNote) error
	FindByID(ctx context.Context, id uint) (*models.DemandNote, error)
	FindByIDWithInstallments(ctx context.Context, id uint) (*models.DemandNote, error)
	List(ctx context.Context, query *ListQuery) ([]models.DemandNote, int64, error)
	FindSweepCandidates(ctx context.Context, cutoff time.Time, scope *SweepScope) ([]uint, error)
	// Locked runs fn holding the exclusive lock on the note. It returns
	// gorm.ErrRecordNotFound for unknown ids and ErrLockNotAvailable when the
	// lock is held by a concurrent operation.
	Locked(ctx context.Context, id uint, fn func(tx NoteTx) error) error
}

type demandNoteRepository struct {
	db *gorm.DB
}

// NewDemandNoteRepository creates a new demand note repository
func NewDemandNoteRepository(db *gorm.DB) DemandNoteRepository {
	return &demandNoteRepository{db: db}
}

// Create inserts the note and assigns its demand code in the same
// transaction when the caller did not supply one.
func (r *demandNoteRepository) Create(ctx context.Context, note *models.DemandNote) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(note).Error; err != nil {
			return err
		}
		if note.DemandCode == "" {
			note.DemandCode = fmt.Sprintf("DN-%d", note.ID)
			if err := tx.Model(note).Update("demand_code", note.DemandCode).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *demandNoteRepository) FindByID(ctx context.Context, id uint) (*models.DemandNote, error) {
	var note models.DemandNote
	err := r.db.WithContext(ctx).First(&note, id).Error
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *demandNoteRepository) FindByIDWithInstallments(ctx context.Context, id uint) (*models.DemandNote, error) {
	var note models.DemandNote
	err := r.db.WithContext(ctx).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("receipt_no ASC")
		}).
		Preload("Installments.Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&note, id).Error
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *demandNoteRepository) List(ctx context.Context, query *ListQuery) ([]models.DemandNote, int64, error) {
	var notes []models.DemandNote
	var total int64

	db := r.db.WithContext(ctx).Model(&models.DemandNote{})

	if status := query.Filters["status"]; status != "" {
		db = db.Where("status = ?", status)
	}
	if ref := query.Filters["booking_ref"]; ref != "" {
		db = db.Where("booking_ref = ?", ref)
	}
	if query.Filters["important"] == "true" {
		db = db.Where("important = ?", true)
	}
	if query.Search != "" {
		term := "%" + query.Search + "%"
		db = db.Where("demand_code ILIKE ? OR milestone ILIKE ? OR booking_ref ILIKE ?", term, term, term)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := "created_at"
	switch query.SortBy {
	case "due_date", "total", "status", "demand_code":
		sortBy = query.SortBy
	}
	sortDir := "desc"
	if query.SortDir == "asc" {
		sortDir = "asc"
	}

	err := db.Order(fmt.Sprintf("%s %s", sortBy, sortDir)).
		Offset((query.Page - 1) * query.PerPage).
		Limit(query.PerPage).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("receipt_no ASC")
		}).
		Find(&notes).Error

	return notes, total, err
}

// FindSweepCandidates returns ids of notes that look overdue. Each candidate
// is rechecked under its lock before being flipped, so a stale read here is
// harmless.
func (r *demandNoteRepository) FindSweepCandidates(ctx context.Context, cutoff time.Time, scope *SweepScope) ([]uint, error) {
	var ids []uint
	db := r.db.WithContext(ctx).Model(&models.DemandNote{}).
		Where("status IN ?", []string{models.DemandNoteStatusPending, models.DemandNoteStatusPartialPaid}).
		Where("due_date < ?", cutoff)

	if scope != nil && scope.BookingRefPrefix != "" {
		db = db.Where("booking_ref LIKE ?", scope.BookingRefPrefix+"%")
	}

	err := db.Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *demandNoteRepository) Locked(ctx context.Context, id uint, fn func(tx NoteTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var note models.DemandNote
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
			First(&note, id).Error
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
				return ErrLockNotAvailable
			}
			return err
		}

		return fn(&gormNoteTx{tx: tx, note: &note})
	})
}

// gormNoteTx implements NoteTx over a gorm transaction holding the row lock
type gormNoteTx struct {
	tx   *gorm.DB
	note *models.DemandNote
}

func (t *gormNoteTx) Note() *models.DemandNote {
	return t.note
}

func (t *gormNoteTx) Installments() ([]models.Installment, error) {
	var installments []models.Installment
	err := t.tx.
		Where("demand_note_id = ?", t.note.ID).
		Order("receipt_no ASC").
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Find(&installments).Error
	return installments, err
}

func (t *gormNoteTx) SumInstallments() (money.Money, error) {
	var result struct {
		Total money.Money
	}
	err := t.tx.Model(&models.Installment{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("demand_note_id = ?", t.note.ID).
		Scan(&result).Error
	return result.Total, err
}

func (t *gormNoteTx) NextReceiptNo() (int64, error) {
	var n int64
	err := t.tx.Raw("SELECT nextval('receipt_numbers')").Scan(&n).Error
	return n, err
}

func (t *gormNoteTx) CreateInstallment(inst *models.Installment) error {
	return t.tx.Create(inst).Error
}

func (t *gormNoteTx) SaveNote() error {
	return t.tx.Save(t.note).Error
}
