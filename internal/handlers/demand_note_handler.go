package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/estatedesk/ledger-api/internal/middleware"
	"github.com/estatedesk/ledger-api/internal/models"
	"github.com/estatedesk/ledger-api/internal/money"
	"github.com/estatedesk/ledger-api/internal/repository"
	"github.com/estatedesk/ledger-api/internal/services"
)

type DemandNoteHandler struct {
	ledgerService *services.LedgerService
	noteService   *services.DemandNoteService
	exportService *services.ExportService
}

func NewDemandNoteHandler(ledgerService *services.LedgerService, noteService *services.DemandNoteService, exportService *services.ExportService) *DemandNoteHandler {
	return &DemandNoteHandler{
		ledgerService: ledgerService,
		noteService:   noteService,
		exportService: exportService,
	}
}

var milestoneCaser = cases.Title(language.English)

// normalizeMilestone title-cases the milestone label at the API boundary.
// The core stores whatever it is handed.
func normalizeMilestone(s string) string {
	return milestoneCaser.String(strings.TrimSpace(s))
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func actorFromContext(c *gin.Context) services.Actor {
	return services.Actor{
		ID:   c.GetString(middleware.ContextActorID),
		Role: c.GetString(middleware.ContextActorRole),
	}
}

type createDemandNoteRequest struct {
	DemandCode string       `json:"demand_code"`
	BookingRef string       `json:"booking_ref"`
	Milestone  string       `json:"milestone"`
	Principal  money.Money  `json:"principal"`
	GST        money.Money  `json:"gst"`
	Tax        money.Money  `json:"tax"`
	Total      *money.Money `json:"total"`
	DueDate    string       `json:"due_date"`
	Important  bool         `json:"important"`
}

// Create handles POST /demand_notes
func (h *DemandNoteHandler) Create(c *gin.Context) {
	var req createDemandNoteRequest
	if err := BindNestedOrFlat(c, "demand_note", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	input := services.CreateDemandNoteInput{
		DemandCode: req.DemandCode,
		BookingRef: req.BookingRef,
		Milestone:  normalizeMilestone(req.Milestone),
		Principal:  req.Principal,
		GST:        req.GST,
		Tax:        req.Tax,
		Total:      req.Total,
		Important:  req.Important,
	}

	if req.DueDate != "" {
		dueDate, err := parseDate(req.DueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_date, expected YYYY-MM-DD"})
			return
		}
		input.DueDate = dueDate
	}

	note, err := h.ledgerService.CreateDemandNote(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"demand_note": note.ToResponse(money.Zero)})
}

// Index handles GET /demand_notes
func (h *DemandNoteHandler) Index(c *gin.Context) {
	query := h.listQuery(c)

	notes, total, err := h.noteService.List(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	responses := make([]models.DemandNoteResponse, 0, len(notes))
	for i := range notes {
		paid := notes[i].TotalPaid()
		notes[i].Installments = nil
		responses = append(responses, notes[i].ToResponse(paid))
	}

	c.JSON(http.StatusOK, gin.H{
		"demand_notes": responses,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

func (h *DemandNoteHandler) listQuery(c *gin.Context) *repository.ListQuery {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	query.Filters["status"] = c.Query("status")
	query.Filters["booking_ref"] = c.Query("booking_ref")
	query.Filters["important"] = c.Query("important")
	query.Search = c.Query("search_term")

	// Parse sort parameter (format: field-direction)
	if sort := c.Query("sort"); sort != "" {
		parts := strings.Split(sort, "-")
		query.SortBy = parts[0]
		if len(parts) > 1 {
			query.SortDir = parts[1]
		}
	}

	return query
}

// Show handles GET /demand_notes/:demand_note_id
func (h *DemandNoteHandler) Show(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("demand_note_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid demand note id"})
		return
	}

	note, paid, err := h.noteService.Get(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"demand_note": note.ToResponse(paid)})
}

type updateDemandNoteRequest struct {
	Milestone *string      `json:"milestone"`
	DueDate   *string      `json:"due_date"`
	Important *bool        `json:"important"`
	Principal *money.Money `json:"principal"`
	GST       *money.Money `json:"gst"`
	Tax       *money.Money `json:"tax"`
	Total     *money.Money `json:"total"`
}

// Update handles PUT /demand_notes/:demand_note_id
func (h *DemandNoteHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("demand_note_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid demand note id"})
		return
	}

	var req updateDemandNoteRequest
	if err := BindNestedOrFlat(c, "demand_note", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	input := services.UpdateDemandNoteInput{
		Important: req.Important,
		Principal: req.Principal,
		GST:       req.GST,
		Tax:       req.Tax,
		Total:     req.Total,
	}

	if req.Milestone != nil {
		normalized := normalizeMilestone(*req.Milestone)
		input.Milestone = &normalized
	}
	if req.DueDate != nil {
		dueDate, err := parseDate(*req.DueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_date, expected YYYY-MM-DD"})
			return
		}
		input.DueDate = &dueDate
	}

	note, err := h.noteService.Update(c.Request.Context(), uint(id), input)
	if err != nil {
		respondError(c, err)
		return
	}

	// Re-read with installments for authoritative paid/due
	updated, paid, err := h.noteService.Get(c.Request.Context(), note.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"demand_note": updated.ToResponse(paid)})
}

// Issue handles POST /demand_notes/:demand_note_id/issue
func (h *DemandNoteHandler) Issue(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("demand_note_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid demand note id"})
		return
	}

	note, err := h.ledgerService.IssueDemandNote(c.Request.Context(), uint(id), actorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"demand_note": note.ToResponse(money.Zero)})
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetStatus handles PUT /demand_notes/:demand_note_id/status
func (h *DemandNoteHandler) SetStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("demand_note_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid demand note id"})
		return
	}

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	note, err := h.ledgerService.SetDemandNoteStatus(c.Request.Context(), uint(id), req.Status, actorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	updated, paid, err := h.noteService.Get(c.Request.Context(), note.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"demand_note": updated.ToResponse(paid)})
}

// SweepOverdue handles POST /demand_notes/sweep_overdue
func (h *DemandNoteHandler) SweepOverdue(c *gin.Context) {
	var scope *repository.SweepScope
	if prefix := c.Query("booking_ref_prefix"); prefix != "" {
		scope = &repository.SweepScope{BookingRefPrefix: prefix}
	}

	count, err := h.ledgerService.SweepOverdue(c.Request.Context(), scope)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated_count": count})
}

// Export handles GET /demand_notes/export
func (h *DemandNoteHandler) Export(c *gin.Context) {
	query := h.listQuery(c)
	query.Page = 1
	query.PerPage = 10000

	notes, _, err := h.noteService.List(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var (
		data        []byte
		filename    string
		contentType string
	)

	switch c.DefaultQuery("format", "xlsx") {
	case "csv":
		data, filename, err = h.exportService.ExportCSV(c.Request.Context(), notes)
		contentType = "text/csv"
	default:
		data, filename, err = h.exportService.ExportXLSX(c.Request.Context(), notes)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, contentType, data)
}
