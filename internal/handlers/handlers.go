package handlers

import (
	"github.com/estatedesk/ledger-api/internal/services"
	"github.com/estatedesk/ledger-api/internal/storage"
)

// Handlers holds all handler instances
type Handlers struct {
	Health      *HealthHandler
	DemandNote  *DemandNoteHandler
	Installment *InstallmentHandler
	Audit       *AuditHandler
	Job         *JobHandler
}

// NewHandlers creates all handler instances
func NewHandlers(svcs *services.Services, storage *storage.LocalStorage) *Handlers {
	return &Handlers{
		Health:      NewHealthHandler(),
		DemandNote:  NewDemandNoteHandler(svcs.Ledger, svcs.DemandNote, svcs.Export),
		Installment: NewInstallmentHandler(svcs.Ledger, svcs.Installment, svcs.DemandNote, svcs.Receipt, storage),
		Audit:       NewAuditHandler(svcs.Audit),
		Job:         NewJobHandler(svcs.Job),
	}
}
