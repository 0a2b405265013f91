// Package location reconciles browser geolocation callbacks with server-side session state.
//
// The browser obtains the fix asynchronously and the result only reaches the server on a later
// request, carried either by query parameters on a reload or by a posted page message. Each
// acquisition request carries a nonce; a relay is applied only while that nonce is outstanding,
// so redelivering the same relay never causes a second transition.
package location

import (
	"errors"
	"fmt"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
)

// State of the acquisition for one session.
type State int

const (
	NotRequested State = iota
	Requested
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Requested:
		return "requested"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	}
	return "not_requested"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "not_requested", "":
		*s = NotRequested
	case "requested":
		*s = Requested
	case "granted":
		*s = Granted
	case "denied":
		*s = Denied
	default:
		return fmt.Errorf("location: unknown state %q", text)
	}
	return nil
}

// Platform error codes reported by the browser geolocation API. CodeUnsupported is raised by
// the client script when the API is missing.
const (
	CodeUnsupported         = 0
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

var (
	ErrNotRequested = errors.New("location has not been requested")
	ErrPending      = errors.New("location request is still pending")
)

// DeniedError carries the platform reason for a failed acquisition.
type DeniedError struct {
	Code   int
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("location unavailable: %s", e.Reason)
}

// Status is the acquisition state stored in a session.
type Status struct {
	State       State               `json:"state"`
	RequestID   string              `json:"request_id,omitempty"`
	RequestedAt time.Time           `json:"requested_at,omitempty"`
	Dispatched  bool                `json:"dispatched,omitempty"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Code        int                 `json:"code,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}

// Ready returns nil only when a fix has been granted.
func (s Status) Ready() error {
	switch s.State {
	case Granted:
		return nil
	case Requested:
		return ErrPending
	case Denied:
		return &DeniedError{Code: s.Code, Reason: s.Reason}
	}
	return ErrNotRequested
}

// Awaits reports whether id is the nonce of the outstanding request.
func (s Status) Awaits(id string) bool {
	return s.State == Requested && s.RequestID != "" && id == s.RequestID
}

// Pending reports an outstanding request whose callback has not arrived.
func (s Status) Pending() bool {
	return s.State == Requested
}

// View is the JSON shape served to polling clients.
type View struct {
	State       State               `json:"state"`
	Pending     bool                `json:"pending"`
	CanSubmit   bool                `json:"can_submit"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	MapURL      string              `json:"map_url,omitempty"`
	Code        *int                `json:"code,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	WaitingFor  string              `json:"waiting_for,omitempty"`
}

// View summarises the status without exposing the request nonce.
func (s Status) View(now time.Time) View {
	v := View{
		State:     s.State,
		Pending:   s.Pending(),
		CanSubmit: s.Ready() == nil,
	}
	switch s.State {
	case Granted:
		v.Coordinates = s.Coordinates
		if s.Coordinates != nil {
			v.MapURL = s.Coordinates.MapURL()
		}
	case Denied:
		code := s.Code
		v.Code = &code
		v.Reason = s.Reason
	case Requested:
		if !s.RequestedAt.IsZero() {
			v.WaitingFor = now.Sub(s.RequestedAt).Round(time.Second).String()
		}
	}
	return v
}
