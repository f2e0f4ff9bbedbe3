package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/ledger-api/internal/services"
)

// respondError maps service errors to HTTP statuses. Concurrency conflicts
// come back as 409 so the console can retry the posting.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrOverpayment):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrConcurrency):
		status = http.StatusConflict
	case errors.Is(err, services.ErrUnauthorized):
		status = http.StatusForbidden
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
