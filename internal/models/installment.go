package models

import (
	"fmt"
	"time"

	"github.com/estatedesk/ledger-api/internal/money"
)

// Installment is a payment posted against a demand note. Installments are
// append-only: once created they are never updated or deleted.
type Installment struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	DemandNoteID uint        `gorm:"not null;index" json:"demand_note_id"`
	ReceiptNo    int64       `gorm:"uniqueIndex;not null" json:"receipt_no"`
	ReceiptDate  time.Time   `gorm:"type:date;not null" json:"receipt_date"`
	Amount       money.Money `gorm:"type:decimal(15,2);not null" json:"amount"`
	PaymentType  string      `gorm:"not null" json:"payment_type"`
	PaymentRef   string      `json:"payment_ref"`
	Note         string      `gorm:"type:text" json:"note"`
	CreatedAt    time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	// Associations
	DemandNote  *DemandNote             `gorm:"foreignKey:DemandNoteID" json:"-"`
	Attachments []InstallmentAttachment `gorm:"foreignKey:InstallmentID" json:"attachments,omitempty"`
}

// TableName specifies the table name for Installment
func (Installment) TableName() string {
	return "installments"
}

// Common payment type tags. The set is open: any non-empty tag is accepted,
// these are just the ones the console offers.
const (
	PaymentTypeUPI          = "upi"
	PaymentTypeCash         = "cash"
	PaymentTypeCheque       = "cheque"
	PaymentTypeBankTransfer = "bank_transfer"
	PaymentTypeOnline       = "online"
)

// FormattedReceiptNo renders the receipt number the way the console prints it
func (i *Installment) FormattedReceiptNo() string {
	return fmt.Sprintf("RCP-%06d", i.ReceiptNo)
}

// InstallmentAttachment is an opaque reference to a receipt file held by the
// attachment store. The ledger never reads the file, only the reference.
type InstallmentAttachment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	InstallmentID uint      `gorm:"not null;index" json:"installment_id"`
	FileRef       string    `gorm:"not null" json:"file_ref"`
	DisplayName   string    `json:"display_name"`
	Position      int       `gorm:"not null;default:0" json:"position"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for InstallmentAttachment
func (InstallmentAttachment) TableName() string {
	return "installment_attachments"
}

// InstallmentResponse is the JSON response format for installments
type InstallmentResponse struct {
	ID           uint        `json:"id"`
	DemandNoteID uint        `json:"demand_note_id"`
	ReceiptNo    string      `json:"receipt_no"`
	ReceiptDate  time.Time   `json:"receipt_date"`
	Amount       money.Money `json:"amount"`
	PaymentType  string      `json:"payment_type"`
	PaymentRef   string      `json:"payment_ref,omitempty"`
	Note         string      `json:"note,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`

	Attachments []InstallmentAttachmentResponse `json:"attachments,omitempty"`
}

// InstallmentAttachmentResponse is the JSON response format for attachments
type InstallmentAttachmentResponse struct {
	FileRef     string `json:"file_ref"`
	DisplayName string `json:"display_name,omitempty"`
}

// ToResponse converts an Installment to its response form
func (i *Installment) ToResponse() InstallmentResponse {
	resp := InstallmentResponse{
		ID:           i.ID,
		DemandNoteID: i.DemandNoteID,
		ReceiptNo:    i.FormattedReceiptNo(),
		ReceiptDate:  i.ReceiptDate,
		Amount:       i.Amount,
		PaymentType:  i.PaymentType,
		PaymentRef:   i.PaymentRef,
		Note:         i.Note,
		CreatedAt:    i.CreatedAt,
	}

	for _, a := range i.Attachments {
		resp.Attachments = append(resp.Attachments, InstallmentAttachmentResponse{
			FileRef:     a.FileRef,
			DisplayName: a.DisplayName,
		})
	}

	return resp
}
