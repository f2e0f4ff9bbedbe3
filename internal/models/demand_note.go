package models

import (
	"time"

	"github.com/estatedesk/ledger-api/internal/money"
)

// DemandNote represents a payment demand raised against a unit booking for a
// construction milestone.
type DemandNote struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	DemandCode      string      `gorm:"uniqueIndex;not null" json:"demand_code"`
	BookingRef      string      `gorm:"not null;index" json:"booking_ref"`
	Milestone       string      `gorm:"not null" json:"milestone"`
	Principal       money.Money `gorm:"type:decimal(15,2);not null" json:"principal"`
	GST             money.Money `gorm:"column:gst;type:decimal(15,2);not null" json:"gst"`
	Tax             money.Money `gorm:"type:decimal(15,2);not null" json:"tax"`
	Total           money.Money `gorm:"type:decimal(15,2);not null" json:"total"`
	TotalOverridden bool        `gorm:"not null;default:false" json:"total_overridden"`
	DueDate         time.Time   `gorm:"type:date;not null;index" json:"due_date"`
	Status          string      `gorm:"default:draft;not null;index" json:"status"`
	Important       bool        `gorm:"not null;default:false" json:"important"`
	IssuedAt        *time.Time  `json:"issued_at"`
	CreatedAt       time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	// Associations
	Installments []Installment `gorm:"foreignKey:DemandNoteID" json:"installments,omitempty"`
}

// TableName specifies the table name for DemandNote
func (DemandNote) TableName() string {
	return "demand_notes"
}

// Demand note status constants
const (
	DemandNoteStatusDraft       = "draft"
	DemandNoteStatusPending     = "pending"
	DemandNoteStatusPartialPaid = "partial_paid"
	DemandNoteStatusPaid        = "paid"
	DemandNoteStatusOverdue     = "overdue"
)

// ValidStatus returns true for a known demand note status
func ValidStatus(status string) bool {
	switch status {
	case DemandNoteStatusDraft, DemandNoteStatusPending, DemandNoteStatusPartialPaid,
		DemandNoteStatusPaid, DemandNoteStatusOverdue:
		return true
	}
	return false
}

// MayIssue returns true if the note can be issued
func (d *DemandNote) MayIssue() bool {
	return d.Status == DemandNoteStatusDraft
}

// MayPost returns true if installments can be posted against the note.
// Draft notes accept no postings until issued.
func (d *DemandNote) MayPost() bool {
	return d.Status != DemandNoteStatusDraft
}

// MayForceStatus returns true if an operator can force the note's status.
// Draft is only left via issue.
func (d *DemandNote) MayForceStatus() bool {
	return d.Status != DemandNoteStatusDraft
}

// IsPastDue returns true if the note's due date has passed at the given time
func (d *DemandNote) IsPastDue(now time.Time) bool {
	return now.After(d.DueDate)
}

// OverdueDays returns the number of days past due at the given time
func (d *DemandNote) OverdueDays(now time.Time) int {
	if !d.IsPastDue(now) {
		return 0
	}
	return int(now.Sub(d.DueDate).Hours() / 24)
}

// RecomputeTotal refreshes Total from Principal+GST+Tax unless the caller has
// explicitly overridden Total; once overridden the flag is sticky and
// component edits no longer touch Total.
func (d *DemandNote) RecomputeTotal() {
	if d.TotalOverridden {
		return
	}
	d.Total = money.Sum(d.Principal, d.GST, d.Tax)
}

// OverrideTotal sets an explicit total and marks the override sticky
func (d *DemandNote) OverrideTotal(total money.Money) {
	d.Total = total
	d.TotalOverridden = true
}

// TotalPaid sums the loaded installments. Callers that have not preloaded
// installments should go through the repository sum instead.
func (d *DemandNote) TotalPaid() money.Money {
	total := money.Zero
	for _, inst := range d.Installments {
		total = total.Add(inst.Amount)
	}
	return total
}

// TotalDue returns max(0, total - paid)
func (d *DemandNote) TotalDue(paid money.Money) money.Money {
	return d.Total.SubClamped(paid)
}

// DemandNoteResponse is the JSON response format for demand notes
type DemandNoteResponse struct {
	ID              uint        `json:"id"`
	DemandCode      string      `json:"demand_code"`
	BookingRef      string      `json:"booking_ref"`
	Milestone       string      `json:"milestone"`
	Principal       money.Money `json:"principal"`
	GST             money.Money `json:"gst"`
	Tax             money.Money `json:"tax"`
	Total           money.Money `json:"total"`
	TotalOverridden bool        `json:"total_overridden"`
	TotalPaid       money.Money `json:"total_paid"`
	TotalDue        money.Money `json:"total_due"`
	DueDate         time.Time   `json:"due_date"`
	Status          string      `json:"status"`
	Important       bool        `json:"important"`
	IssuedAt        *time.Time  `json:"issued_at"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	Installments []InstallmentResponse `json:"installments,omitempty"`
}

// ToResponse converts a DemandNote to its response form. totalPaid must be
// the authoritative installment sum for the note.
func (d *DemandNote) ToResponse(totalPaid money.Money) DemandNoteResponse {
	resp := DemandNoteResponse{
		ID:              d.ID,
		DemandCode:      d.DemandCode,
		BookingRef:      d.BookingRef,
		Milestone:       d.Milestone,
		Principal:       d.Principal,
		GST:             d.GST,
		Tax:             d.Tax,
		Total:           d.Total,
		TotalOverridden: d.TotalOverridden,
		TotalPaid:       totalPaid,
		TotalDue:        d.TotalDue(totalPaid),
		DueDate:         d.DueDate,
		Status:          d.Status,
		Important:       d.Important,
		IssuedAt:        d.IssuedAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}

	for i := range d.Installments {
		resp.Installments = append(resp.Installments, d.Installments[i].ToResponse())
	}

	return resp
}
