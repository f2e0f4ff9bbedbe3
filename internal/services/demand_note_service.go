package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/estatedesk/ledger-api/internal/jobs"
	"github.com/estatedesk/ledger-api/internal/models"
	"github.com/estatedesk/ledger-api/internal/money"
	"github.com/estatedesk/ledger-api/internal/repository"
	"github.com/estatedesk/ledger-api/internal/statemachine"
	"github.com/estatedesk/ledger-api/pkg/logger"
)

// CreateDemandNoteInput carries the fields for creating a demand note
type CreateDemandNoteInput struct {
	DemandCode string
	BookingRef string
	Milestone  string
	Principal  money.Money
	GST        money.Money
	Tax        money.Money
	Total      *money.Money
	DueDate    time.Time
	Important  bool
}

// UpdateDemandNoteInput carries optional field edits for an existing note.
// Nil fields are left untouched.
type UpdateDemandNoteInput struct {
	Milestone *string
	DueDate   *time.Time
	Important *bool
	Principal *money.Money
	GST       *money.Money
	Tax       *money.Money
	Total     *money.Money
}

type DemandNoteService struct {
	repo            repository.DemandNoteRepository
	installmentRepo repository.InstallmentRepository
	bookings        BookingDirectory
	authorizer      Authorizer
	auditSvc        *AuditService
	worker          *jobs.Worker
	clock           Clock
}

func NewDemandNoteService(
	repo repository.DemandNoteRepository,
	installmentRepo repository.InstallmentRepository,
	bookings BookingDirectory,
	authorizer Authorizer,
	auditSvc *AuditService,
	worker *jobs.Worker,
	clock Clock,
) *DemandNoteService {
	return &DemandNoteService{
		repo:            repo,
		installmentRepo: installmentRepo,
		bookings:        bookings,
		authorizer:      authorizer,
		auditSvc:        auditSvc,
		worker:          worker,
		clock:           clock,
	}
}

// Create validates input and persists a new demand note in draft status
func (s *DemandNoteService) Create(ctx context.Context, input CreateDemandNoteInput) (*models.DemandNote, error) {
	if strings.TrimSpace(input.BookingRef) == "" {
		return nil, fmt.Errorf("booking_ref is required: %w", ErrValidation)
	}
	if strings.TrimSpace(input.Milestone) == "" {
		return nil, fmt.Errorf("milestone is required: %w", ErrValidation)
	}
	if input.DueDate.IsZero() {
		return nil, fmt.Errorf("due_date is required: %w", ErrValidation)
	}
	if input.Principal.IsNegative() || input.GST.IsNegative() || input.Tax.IsNegative() {
		return nil, fmt.Errorf("amounts must not be negative: %w", ErrValidation)
	}

	exists, err := s.bookings.ResolveBooking(ctx, input.BookingRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve booking %q: %w", input.BookingRef, err)
	}
	if !exists {
		return nil, fmt.Errorf("booking %q does not exist: %w", input.BookingRef, ErrValidation)
	}

	computed := money.Sum(input.Principal, input.GST, input.Tax)

	note := &models.DemandNote{
		DemandCode: strings.TrimSpace(input.DemandCode),
		BookingRef: input.BookingRef,
		Milestone:  input.Milestone,
		Principal:  input.Principal,
		GST:        input.GST,
		Tax:        input.Tax,
		DueDate:    input.DueDate,
		Important:  input.Important,
		Status:     models.DemandNoteStatusDraft,
	}

	if input.Total != nil {
		if input.Total.IsNegative() {
			return nil, fmt.Errorf("total must not be negative: %w", ErrValidation)
		}
		note.Total = *input.Total
		// Overridden only when the explicit total differs from the computed sum
		note.TotalOverridden = !input.Total.Equal(computed)
	} else {
		if !computed.IsPositive() {
			return nil, fmt.Errorf("principal+gst+tax must be positive: %w", ErrValidation)
		}
		note.Total = computed
	}

	if err := s.repo.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create demand note: %w", err)
	}

	return note, nil
}

// Issue transitions a draft note to pending. Issuing an already-issued note
// fails so callers can detect double-issue bugs.
func (s *DemandNoteService) Issue(ctx context.Context, id uint, actor Actor) (*models.DemandNote, error) {
	var updated *models.DemandNote

	err := s.repo.Locked(ctx, id, func(tx repository.NoteTx) error {
		note := tx.Note()
		if !note.MayIssue() {
			return fmt.Errorf("demand note %s is %s: %w", note.DemandCode, note.Status, ErrInvalidTransition)
		}

		if err := statemachine.NewDemandNoteFSM(note).Issue(ctx); err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalidTransition)
		}

		now := s.clock.Now()
		note.IssuedAt = &now

		if err := tx.SaveNote(); err != nil {
			return err
		}

		snapshot := *note
		updated = &snapshot
		return nil
	})
	if err != nil {
		return nil, s.mapNoteErr(id, err)
	}

	s.audit(actor, models.AuditActionIssue, updated.ID, fmt.Sprintf("issued %s", updated.DemandCode))

	return updated, nil
}

// SetStatus applies an operator override. Only pending/overdue/paid can be
// forced, never from draft, and only when the authorization collaborator
// allows the actor.
func (s *DemandNoteService) SetStatus(ctx context.Context, id uint, newStatus string, actor Actor) (*models.DemandNote, error) {
	switch newStatus {
	case models.DemandNoteStatusPending, models.DemandNoteStatusOverdue, models.DemandNoteStatusPaid:
	default:
		return nil, fmt.Errorf("status %q cannot be forced: %w", newStatus, ErrValidation)
	}

	var updated *models.DemandNote

	err := s.repo.Locked(ctx, id, func(tx repository.NoteTx) error {
		note := tx.Note()
		if !note.MayForceStatus() {
			return fmt.Errorf("draft notes can only be issued: %w", ErrInvalidTransition)
		}

		allowed, err := s.authorizer.CanTransition(ctx, actor, note, newStatus)
		if err != nil {
			return fmt.Errorf("authorization check failed: %w", err)
		}
		if !allowed {
			return fmt.Errorf("actor %s may not force status %s: %w", actor.ID, newStatus, ErrUnauthorized)
		}

		if err := statemachine.NewDemandNoteFSM(note).ForceTo(ctx, newStatus); err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalidTransition)
		}

		if err := tx.SaveNote(); err != nil {
			return err
		}

		snapshot := *note
		updated = &snapshot
		return nil
	})
	if err != nil {
		return nil, s.mapNoteErr(id, err)
	}

	s.audit(actor, models.AuditActionSetStatus, updated.ID,
		fmt.Sprintf("forced %s to %s", updated.DemandCode, newStatus))

	return updated, nil
}

// Update edits note fields under the note lock, honoring the sticky total
// override rule and reconciling status against the paid amount.
func (s *DemandNoteService) Update(ctx context.Context, id uint, input UpdateDemandNoteInput) (*models.DemandNote, error) {
	var updated *models.DemandNote

	err := s.repo.Locked(ctx, id, func(tx repository.NoteTx) error {
		note := tx.Note()

		if input.Milestone != nil {
			if strings.TrimSpace(*input.Milestone) == "" {
				return fmt.Errorf("milestone must not be empty: %w", ErrValidation)
			}
			note.Milestone = *input.Milestone
		}
		if input.DueDate != nil {
			if input.DueDate.IsZero() {
				return fmt.Errorf("due_date must not be empty: %w", ErrValidation)
			}
			note.DueDate = *input.DueDate
		}
		if input.Important != nil {
			note.Important = *input.Important
		}

		moneyEdited := false
		for _, field := range []struct {
			src *money.Money
			dst *money.Money
		}{
			{input.Principal, &note.Principal},
			{input.GST, &note.GST},
			{input.Tax, &note.Tax},
		} {
			if field.src == nil {
				continue
			}
			if field.src.IsNegative() {
				return fmt.Errorf("amounts must not be negative: %w", ErrValidation)
			}
			*field.dst = *field.src
			moneyEdited = true
		}

		if input.Total != nil {
			if input.Total.IsNegative() {
				return fmt.Errorf("total must not be negative: %w", ErrValidation)
			}
			note.OverrideTotal(*input.Total)
			moneyEdited = true
		} else {
			note.RecomputeTotal()
		}

		if moneyEdited {
			paid, err := tx.SumInstallments()
			if err != nil {
				return err
			}
			if note.Total.Cmp(paid) < 0 {
				return fmt.Errorf("total %s is below amount already paid %s: %w",
					note.Total, paid, ErrValidation)
			}
			if err := s.reconcileStatus(ctx, note, paid); err != nil {
				return err
			}
		}

		if err := tx.SaveNote(); err != nil {
			return err
		}

		snapshot := *note
		updated = &snapshot
		return nil
	})
	if err != nil {
		return nil, s.mapNoteErr(id, err)
	}

	return updated, nil
}

// reconcileStatus re-derives paid/partial status from money fields, the same
// rule the posting protocol applies: due = 0 with payments means paid, a
// positive paid amount below total means partial_paid, zero paid leaves the
// status alone.
func (s *DemandNoteService) reconcileStatus(ctx context.Context, note *models.DemandNote, paid money.Money) error {
	if note.Status == models.DemandNoteStatusDraft || paid.IsZero() {
		return nil
	}

	due := note.TotalDue(paid)
	switch {
	case due.IsZero() && note.Status != models.DemandNoteStatusPaid:
		return statemachine.NewDemandNoteFSM(note).Settle(ctx)
	case due.IsPositive() && note.Status == models.DemandNoteStatusPaid:
		return statemachine.NewDemandNoteFSM(note).RecordPartial(ctx)
	}
	return nil
}

// Get loads a note with installments and its authoritative paid total
func (s *DemandNoteService) Get(ctx context.Context, id uint) (*models.DemandNote, money.Money, error) {
	note, err := s.repo.FindByIDWithInstallments(ctx, id)
	if err != nil {
		return nil, money.Zero, s.mapNoteErr(id, err)
	}
	return note, note.TotalPaid(), nil
}

// List returns a page of demand notes
func (s *DemandNoteService) List(ctx context.Context, query *repository.ListQuery) ([]models.DemandNote, int64, error) {
	return s.repo.List(ctx, query)
}

// SweepOverdue flips pending/partial_paid notes past their due date to
// overdue. Each candidate is rechecked under its own lock, so the sweep never
// acts on a stale read while a posting is in flight. Notes that fail to
// update are logged and excluded from the count.
func (s *DemandNoteService) SweepOverdue(ctx context.Context, scope *repository.SweepScope) (int, error) {
	cutoff := s.clock.Now()

	ids, err := s.repo.FindSweepCandidates(ctx, cutoff, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to find sweep candidates: %w", err)
	}

	count := 0
	for _, id := range ids {
		flipped := false
		err := s.repo.Locked(ctx, id, func(tx repository.NoteTx) error {
			note := tx.Note()
			// Recheck: a posting may have settled the note between the scan
			// and taking its lock
			switch note.Status {
			case models.DemandNoteStatusPending, models.DemandNoteStatusPartialPaid:
			default:
				return nil
			}
			if !note.IsPastDue(cutoff) {
				return nil
			}

			if err := statemachine.NewDemandNoteFSM(note).Lapse(ctx); err != nil {
				return err
			}
			if err := tx.SaveNote(); err != nil {
				return err
			}
			flipped = true
			return nil
		})
		if err != nil {
			logger.Warn("Sweep skipped demand note", "id", id, "error", err)
			continue
		}
		// Counted only after the transaction commits
		if flipped {
			count++
		}
	}

	return count, nil
}

func (s *DemandNoteService) mapNoteErr(id uint, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("demand note %d: %w", id, ErrNotFound)
	case errors.Is(err, repository.ErrLockNotAvailable):
		return fmt.Errorf("demand note %d: %w", id, ErrConcurrency)
	}
	return err
}

// audit records an operator action through the worker pool so the write
// never blocks the request
func (s *DemandNoteService) audit(actor Actor, action string, entityID uint, details string) {
	if s.auditSvc == nil || s.worker == nil {
		return
	}
	s.worker.Enqueue(func(ctx context.Context) error {
		return s.auditSvc.Log(ctx, actor.ID, action, "DemandNote", entityID, details)
	})
}
