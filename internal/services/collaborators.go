package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/estatedesk/ledger-api/internal/models"
)

// Clock supplies the current time. Injected so tests can control issue
// timestamps, receipt date defaults and the sweep's due-date comparison.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// NewSystemClock returns a Clock backed by the wall clock
func NewSystemClock() Clock {
	return systemClock{}
}

// Actor identifies the operator performing an operation. Session and role
// resolution happen upstream; the ledger receives the result.
type Actor struct {
	ID   string
	Role string
}

// BookingDirectory answers whether a booking reference exists. The ledger
// never reads booking fields.
type BookingDirectory interface {
	ResolveBooking(ctx context.Context, ref string) (bool, error)
}

type httpBookingDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBookingDirectory creates a BookingDirectory backed by the booking
// service's REST API.
func NewHTTPBookingDirectory(baseURL string) BookingDirectory {
	return &httpBookingDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *httpBookingDirectory) ResolveBooking(ctx context.Context, ref string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/bookings/%s", d.baseURL, ref), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build booking lookup request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("booking lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("booking lookup returned status %d", resp.StatusCode)
	}
}

type openBookingDirectory struct{}

// NewOpenBookingDirectory returns a directory that accepts every non-empty
// reference. Used when no booking service is configured (single-box deploys
// where bookings live in the same database).
func NewOpenBookingDirectory() BookingDirectory {
	return openBookingDirectory{}
}

func (openBookingDirectory) ResolveBooking(ctx context.Context, ref string) (bool, error) {
	return ref != "", nil
}

// Authorizer decides whether an actor may force a demand note into a status
type Authorizer interface {
	CanTransition(ctx context.Context, actor Actor, note *models.DemandNote, newStatus string) (bool, error)
}

type roleAuthorizer struct {
	allowed map[string]bool
}

// NewRoleAuthorizer creates an Authorizer permitting the given roles to force
// status transitions.
func NewRoleAuthorizer(roles ...string) Authorizer {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return &roleAuthorizer{allowed: allowed}
}

func (a *roleAuthorizer) CanTransition(ctx context.Context, actor Actor, note *models.DemandNote, newStatus string) (bool, error) {
	return a.allowed[actor.Role], nil
}
