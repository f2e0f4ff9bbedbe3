package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/ledger-api/internal/models"
	"github.com/estatedesk/ledger-api/internal/money"
	"github.com/estatedesk/ledger-api/internal/services"
	"github.com/estatedesk/ledger-api/internal/storage"
)

type InstallmentHandler struct {
	ledgerService      *services.LedgerService
	installmentService *services.InstallmentService
	noteService        *services.DemandNoteService
	receiptService     *services.ReceiptService
	storage            *storage.LocalStorage
}

func NewInstallmentHandler(
	ledgerService *services.LedgerService,
	installmentService *services.InstallmentService,
	noteService *services.DemandNoteService,
	receiptService *services.ReceiptService,
	storage *storage.LocalStorage,
) *InstallmentHandler {
	return &InstallmentHandler{
		ledgerService:      ledgerService,
		installmentService: installmentService,
		noteService:        noteService,
		receiptService:     receiptService,
		storage:            storage,
	}
}

type postInstallmentRequest struct {
	Amount      money.Money `json:"amount"`
	PaymentType string      `json:"payment_type"`
	PaymentRef  string      `json:"payment_ref"`
	Note        string      `json:"note"`
	ReceiptDate string      `json:"receipt_date"`
}

// Create handles POST /demand_notes/:demand_note_id/installments.
// Accepts JSON, or multipart/form-data when receipt files are attached.
func (h *InstallmentHandler) Create(c *gin.Context) {
	noteID, err := strconv.ParseUint(c.Param("demand_note_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid demand note id"})
		return
	}

	var input services.PostInstallmentInput

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		input, err = h.bindMultipart(c)
	} else {
		input, err = h.bindJSON(c)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inst, note, err := h.ledgerService.PostInstallment(c.Request.Context(), uint(noteID), input)
	if err != nil {
		respondError(c, err)
		return
	}

	updated, updatedPaid, err := h.noteService.Get(c.Request.Context(), note.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"installment": inst.ToResponse(),
		"demand_note": updated.ToResponse(updatedPaid),
	})
}

func (h *InstallmentHandler) bindJSON(c *gin.Context) (services.PostInstallmentInput, error) {
	var req postInstallmentRequest
	if err := BindNestedOrFlat(c, "installment", &req); err != nil {
		return services.PostInstallmentInput{}, fmt.Errorf("invalid request body")
	}

	input := services.PostInstallmentInput{
		Amount:      req.Amount,
		PaymentType: req.PaymentType,
		PaymentRef:  req.PaymentRef,
		Note:        req.Note,
	}

	if req.ReceiptDate != "" {
		receiptDate, err := parseDate(req.ReceiptDate)
		if err != nil {
			return services.PostInstallmentInput{}, fmt.Errorf("invalid receipt_date, expected YYYY-MM-DD")
		}
		input.ReceiptDate = &receiptDate
	}

	return input, nil
}

func (h *InstallmentHandler) bindMultipart(c *gin.Context) (services.PostInstallmentInput, error) {
	amount, err := money.FromString(c.PostForm("amount"))
	if err != nil {
		return services.PostInstallmentInput{}, fmt.Errorf("invalid amount")
	}

	input := services.PostInstallmentInput{
		Amount:      amount,
		PaymentType: c.PostForm("payment_type"),
		PaymentRef:  c.PostForm("payment_ref"),
		Note:        c.PostForm("note"),
	}

	if dateStr := c.PostForm("receipt_date"); dateStr != "" {
		receiptDate, err := parseDate(dateStr)
		if err != nil {
			return services.PostInstallmentInput{}, fmt.Errorf("invalid receipt_date, expected YYYY-MM-DD")
		}
		input.ReceiptDate = &receiptDate
	}

	form, err := c.MultipartForm()
	if err != nil {
		return services.PostInstallmentInput{}, fmt.Errorf("invalid multipart form")
	}

	for _, header := range form.File["attachments"] {
		file, err := header.Open()
		if err != nil {
			return services.PostInstallmentInput{}, fmt.Errorf("failed to read attachment %s", header.Filename)
		}

		ref, err := h.storage.Upload(file, header, "receipts")
		file.Close()
		if err != nil {
			return services.PostInstallmentInput{}, fmt.Errorf("failed to store attachment %s", header.Filename)
		}

		input.Attachments = append(input.Attachments, services.AttachmentInput{
			FileRef:     ref,
			DisplayName: header.Filename,
		})
	}

	return input, nil
}

// Index handles GET /demand_notes/:demand_note_id/installments
func (h *InstallmentHandler) Index(c *gin.Context) {
	noteID, err := strconv.ParseUint(c.Param("demand_note_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid demand note id"})
		return
	}

	installments, err := h.installmentService.ListByNote(c.Request.Context(), uint(noteID))
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.InstallmentResponse, 0, len(installments))
	for i := range installments {
		responses = append(responses, installments[i].ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{"installments": responses})
}

// Receipt handles GET /demand_notes/:demand_note_id/installments/:installment_id/receipt
func (h *InstallmentHandler) Receipt(c *gin.Context) {
	noteID, err := strconv.ParseUint(c.Param("demand_note_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid demand note id"})
		return
	}
	instID, err := strconv.ParseUint(c.Param("installment_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid installment id"})
		return
	}

	inst, err := h.installmentService.FindByID(c.Request.Context(), uint(instID))
	if err != nil {
		respondError(c, err)
		return
	}
	if inst.DemandNoteID != uint(noteID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "installment does not belong to this demand note"})
		return
	}

	note, _, err := h.noteService.Get(c.Request.Context(), uint(noteID))
	if err != nil {
		respondError(c, err)
		return
	}

	data, filename, err := h.receiptService.RenderPDF(note, inst)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Attachment handles GET /demand_notes/:demand_note_id/installments/:installment_id/attachments/:attachment_id
func (h *InstallmentHandler) Attachment(c *gin.Context) {
	noteID, err := strconv.ParseUint(c.Param("demand_note_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid demand note id"})
		return
	}
	instID, err := strconv.ParseUint(c.Param("installment_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid installment id"})
		return
	}
	attID, err := strconv.ParseUint(c.Param("attachment_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment id"})
		return
	}

	inst, err := h.installmentService.FindByID(c.Request.Context(), uint(instID))
	if err != nil {
		respondError(c, err)
		return
	}
	if inst.DemandNoteID != uint(noteID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "installment does not belong to this demand note"})
		return
	}

	for _, a := range inst.Attachments {
		if a.ID != uint(attID) {
			continue
		}
		path, err := h.storage.SafeFullPath(a.FileRef)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "attachment file not found"})
			return
		}
		name := a.DisplayName
		if name == "" {
			name = "attachment"
		}
		c.FileAttachment(path, name)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
}
