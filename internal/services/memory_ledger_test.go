package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/estatedesk/ledger-api/internal/models"
	"github.com/estatedesk/ledger-api/internal/money"
	"github.com/estatedesk/ledger-api/internal/repository"
)

// manualClock lets tests control issue timestamps, receipt date defaults and
// the sweep cutoff.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(t time.Time) *manualClock {
	return &manualClock{now: t}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// memoryLedger is an in-memory implementation of DemandNoteRepository and
// InstallmentRepository. The per-note lock is a real mutex acquired with
// TryLock, so lock contention surfaces as ErrLockNotAvailable exactly like
// the row lock does in Postgres.
type memoryLedger struct {
	mu           sync.Mutex
	notes        map[uint]models.DemandNote
	installments map[uint][]models.Installment
	locks        map[uint]*sync.Mutex
	nextNoteID   uint
	nextInstID   uint
	receiptSeq   int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		notes:        make(map[uint]models.DemandNote),
		installments: make(map[uint][]models.Installment),
		locks:        make(map[uint]*sync.Mutex),
	}
}

func (m *memoryLedger) Create(ctx context.Context, note *models.DemandNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextNoteID++
	note.ID = m.nextNoteID
	if note.DemandCode == "" {
		note.DemandCode = fmt.Sprintf("DN-%d", note.ID)
	}
	m.locks[note.ID] = &sync.Mutex{}
	m.notes[note.ID] = *note
	return nil
}

func (m *memoryLedger) FindByID(ctx context.Context, id uint) (*models.DemandNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &note, nil
}

func (m *memoryLedger) FindByIDWithInstallments(ctx context.Context, id uint) (*models.DemandNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	note.Installments = m.sortedInstallments(id)
	return &note, nil
}

func (m *memoryLedger) List(ctx context.Context, query *repository.ListQuery) ([]models.DemandNote, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uint
	for id := range m.notes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var matched []models.DemandNote
	for _, id := range ids {
		note := m.notes[id]
		if status := query.Filters["status"]; status != "" && note.Status != status {
			continue
		}
		if ref := query.Filters["booking_ref"]; ref != "" && note.BookingRef != ref {
			continue
		}
		if query.Filters["important"] == "true" && !note.Important {
			continue
		}
		if query.Search != "" {
			term := strings.ToLower(query.Search)
			if !strings.Contains(strings.ToLower(note.DemandCode), term) &&
				!strings.Contains(strings.ToLower(note.Milestone), term) &&
				!strings.Contains(strings.ToLower(note.BookingRef), term) {
				continue
			}
		}
		note.Installments = m.sortedInstallments(id)
		matched = append(matched, note)
	}

	total := int64(len(matched))
	start := (query.Page - 1) * query.PerPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + query.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *memoryLedger) FindSweepCandidates(ctx context.Context, cutoff time.Time, scope *repository.SweepScope) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uint
	for id, note := range m.notes {
		switch note.Status {
		case models.DemandNoteStatusPending, models.DemandNoteStatusPartialPaid:
		default:
			continue
		}
		if !note.DueDate.Before(cutoff) {
			continue
		}
		if scope != nil && scope.BookingRefPrefix != "" &&
			!strings.HasPrefix(note.BookingRef, scope.BookingRefPrefix) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memoryLedger) Locked(ctx context.Context, id uint, fn func(tx repository.NoteTx) error) error {
	m.mu.Lock()
	note, ok := m.notes[id]
	if !ok {
		m.mu.Unlock()
		return gorm.ErrRecordNotFound
	}
	lock := m.locks[id]
	m.mu.Unlock()

	if !lock.TryLock() {
		return repository.ErrLockNotAvailable
	}
	defer lock.Unlock()

	tx := &memoryNoteTx{ledger: m, note: note}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[id] = tx.note
	m.installments[id] = append(m.installments[id], tx.created...)
	return nil
}

func (m *memoryLedger) sortedInstallments(noteID uint) []models.Installment {
	out := append([]models.Installment(nil), m.installments[noteID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ReceiptNo < out[j].ReceiptNo })
	return out
}

// InstallmentRepository

func (m *memoryLedger) FindInstallmentByID(id uint) (*models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, list := range m.installments {
		for _, inst := range list {
			if inst.ID == id {
				found := inst
				return &found, nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryLedger) FindByDemandNoteID(ctx context.Context, noteID uint) ([]models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedInstallments(noteID), nil
}

func (m *memoryLedger) SumByDemandNoteID(ctx context.Context, noteID uint) (money.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := money.Zero
	for _, inst := range m.installments[noteID] {
		sum = sum.Add(inst.Amount)
	}
	return sum, nil
}

// installmentReader adapts memoryLedger to InstallmentRepository, whose
// FindByID signature collides with the note repository's.
type installmentReader struct {
	ledger *memoryLedger
}

func (r *installmentReader) FindByID(ctx context.Context, id uint) (*models.Installment, error) {
	return r.ledger.FindInstallmentByID(id)
}

func (r *installmentReader) FindByDemandNoteID(ctx context.Context, noteID uint) ([]models.Installment, error) {
	return r.ledger.FindByDemandNoteID(ctx, noteID)
}

func (r *installmentReader) SumByDemandNoteID(ctx context.Context, noteID uint) (money.Money, error) {
	return r.ledger.SumByDemandNoteID(ctx, noteID)
}

// memoryNoteTx is the in-memory unit of work. Changes land in the ledger only
// when the enclosing Locked call returns nil.
type memoryNoteTx struct {
	ledger  *memoryLedger
	note    models.DemandNote
	created []models.Installment
}

func (t *memoryNoteTx) Note() *models.DemandNote {
	return &t.note
}

func (t *memoryNoteTx) Installments() ([]models.Installment, error) {
	t.ledger.mu.Lock()
	committed := t.ledger.sortedInstallments(t.note.ID)
	t.ledger.mu.Unlock()
	return append(committed, t.created...), nil
}

func (t *memoryNoteTx) SumInstallments() (money.Money, error) {
	sum, _ := t.ledger.SumByDemandNoteID(context.Background(), t.note.ID)
	for _, inst := range t.created {
		sum = sum.Add(inst.Amount)
	}
	return sum, nil
}

func (t *memoryNoteTx) NextReceiptNo() (int64, error) {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	t.ledger.receiptSeq++
	return t.ledger.receiptSeq, nil
}

func (t *memoryNoteTx) CreateInstallment(inst *models.Installment) error {
	t.ledger.mu.Lock()
	t.ledger.nextInstID++
	inst.ID = t.ledger.nextInstID
	t.ledger.mu.Unlock()

	t.created = append(t.created, *inst)
	return nil
}

func (t *memoryNoteTx) SaveNote() error {
	return nil
}

// Collaborator fakes

type rejectingDirectory struct{}

func (rejectingDirectory) ResolveBooking(ctx context.Context, ref string) (bool, error) {
	return false, nil
}

type denyAuthorizer struct{}

func (denyAuthorizer) CanTransition(ctx context.Context, actor Actor, note *models.DemandNote, newStatus string) (bool, error) {
	return false, nil
}
