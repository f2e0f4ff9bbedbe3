package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/estatedesk/ledger-api/internal/models"
)

// DemandNoteFSM wraps a demand note with its state machine
type DemandNoteFSM struct {
	note *models.DemandNote
	fsm  *fsm.FSM
}

// NewDemandNoteFSM creates a new demand note state machine
func NewDemandNoteFSM(note *models.DemandNote) *DemandNoteFSM {
	nfsm := &DemandNoteFSM{
		note: note,
	}

	nfsm.fsm = fsm.NewFSM(
		note.Status,
		fsm.Events{
			// draft → pending (the only way out of draft)
			{Name: "issue", Src: []string{models.DemandNoteStatusDraft}, Dst: models.DemandNoteStatusPending},

			// pending/overdue → partial_paid (a posting left due > 0);
			// paid → partial_paid when a total edit raises the total above the paid sum
			{Name: "record_partial", Src: []string{models.DemandNoteStatusPending, models.DemandNoteStatusOverdue, models.DemandNoteStatusPaid}, Dst: models.DemandNoteStatusPartialPaid},

			// pending/partial_paid/overdue → paid
			{Name: "settle", Src: []string{models.DemandNoteStatusPending, models.DemandNoteStatusPartialPaid, models.DemandNoteStatusOverdue}, Dst: models.DemandNoteStatusPaid},

			// pending/partial_paid → overdue (sweep); paid → overdue only as a forced override
			{Name: "lapse", Src: []string{models.DemandNoteStatusPending, models.DemandNoteStatusPartialPaid, models.DemandNoteStatusPaid}, Dst: models.DemandNoteStatusOverdue},

			// partial_paid/paid/overdue → pending (forced override)
			{Name: "reopen", Src: []string{models.DemandNoteStatusPartialPaid, models.DemandNoteStatusPaid, models.DemandNoteStatusOverdue}, Dst: models.DemandNoteStatusPending},
		},
		fsm.Callbacks{},
	)

	return nfsm
}

// Issue transitions the note from draft to pending
func (n *DemandNoteFSM) Issue(ctx context.Context) error {
	if !n.note.MayIssue() {
		return fmt.Errorf("demand note cannot be issued in current state: %s", n.note.Status)
	}

	if err := n.fsm.Event(ctx, "issue"); err != nil {
		return fmt.Errorf("failed to issue demand note: %w", err)
	}

	n.note.Status = n.fsm.Current()
	return nil
}

// RecordPartial marks the note partially paid after a posting
func (n *DemandNoteFSM) RecordPartial(ctx context.Context) error {
	if err := n.fsm.Event(ctx, "record_partial"); err != nil {
		return fmt.Errorf("failed to record partial payment: %w", err)
	}

	n.note.Status = n.fsm.Current()
	return nil
}

// Settle marks the note fully paid
func (n *DemandNoteFSM) Settle(ctx context.Context) error {
	if err := n.fsm.Event(ctx, "settle"); err != nil {
		return fmt.Errorf("failed to settle demand note: %w", err)
	}

	n.note.Status = n.fsm.Current()
	return nil
}

// Lapse marks the note overdue
func (n *DemandNoteFSM) Lapse(ctx context.Context) error {
	if err := n.fsm.Event(ctx, "lapse"); err != nil {
		return fmt.Errorf("failed to lapse demand note: %w", err)
	}

	n.note.Status = n.fsm.Current()
	return nil
}

// Reopen moves the note back to pending
func (n *DemandNoteFSM) Reopen(ctx context.Context) error {
	if err := n.fsm.Event(ctx, "reopen"); err != nil {
		return fmt.Errorf("failed to reopen demand note: %w", err)
	}

	n.note.Status = n.fsm.Current()
	return nil
}

// ForceTo applies an operator override to the target status. Draft cannot be
// forced in or out; issue is the only exit from draft.
func (n *DemandNoteFSM) ForceTo(ctx context.Context, status string) error {
	if !n.note.MayForceStatus() {
		return fmt.Errorf("demand note status cannot be forced from draft")
	}

	if n.note.Status == status {
		// Already there; nothing to transition
		return nil
	}

	switch status {
	case models.DemandNoteStatusPending:
		return n.Reopen(ctx)
	case models.DemandNoteStatusOverdue:
		return n.Lapse(ctx)
	case models.DemandNoteStatusPaid:
		return n.Settle(ctx)
	default:
		return fmt.Errorf("status %q cannot be forced", status)
	}
}

// Current returns the current state
func (n *DemandNoteFSM) Current() string {
	return n.fsm.Current()
}

// Can checks if a transition is possible
func (n *DemandNoteFSM) Can(event string) bool {
	return n.fsm.Can(event)
}
