package services

import (
	"gorm.io/gorm"

	"github.com/estatedesk/ledger-api/internal/config"
	"github.com/estatedesk/ledger-api/internal/jobs"
	"github.com/estatedesk/ledger-api/internal/repository"
)

// Services holds all service instances
type Services struct {
	DemandNote  *DemandNoteService
	Installment *InstallmentService
	Ledger      *LedgerService
	Export      *ExportService
	Receipt     *ReceiptService
	Audit       *AuditService
	Job         *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, cfg *config.Config, db *gorm.DB) *Services {
	clock := NewSystemClock()
	auditSvc := NewAuditService(db)

	var bookings BookingDirectory
	if cfg.BookingServiceURL != "" {
		bookings = NewHTTPBookingDirectory(cfg.BookingServiceURL)
	} else {
		bookings = NewOpenBookingDirectory()
	}

	authorizer := NewRoleAuthorizer(cfg.OverrideRoles...)

	noteSvc := NewDemandNoteService(repos.DemandNote, repos.Installment, bookings, authorizer, auditSvc, worker, clock)
	installmentSvc := NewInstallmentService(repos.Installment, repos.DemandNote, clock)

	return &Services{
		DemandNote:  noteSvc,
		Installment: installmentSvc,
		Ledger:      NewLedgerService(noteSvc, installmentSvc),
		Export:      NewExportService(clock),
		Receipt:     NewReceiptService(),
		Audit:       auditSvc,
		Job:         NewJobService(worker),
	}
}
