package location

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTimeout = 10 * time.Second
	MinTimeout     = 5 * time.Second
	MaxTimeout     = 15 * time.Second
)

var ErrMalformedRelay = errors.New("malformed location relay")

// Request parameterises the one-shot client-side geolocation call.
type Request struct {
	ID         string
	Timeout    time.Duration
	MaximumAge time.Duration
}

// Bridge issues acquisition requests and applies their relayed outcome.
type Bridge struct {
	Timeout time.Duration
	now     func() time.Time
	newID   func() string
}

// NewBridge clamps timeout to the accepted window.
func NewBridge(timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout < MinTimeout {
		timeout = MinTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	return &Bridge{Timeout: timeout, now: time.Now, newID: uuid.NewString}
}

// Request starts a fresh attempt from any state. A previous outstanding nonce is discarded,
// so a late callback for it is ignored.
func (b *Bridge) Request(st *Status) Request {
	*st = Status{
		State:       Requested,
		RequestID:   b.newID(),
		RequestedAt: b.now().UTC(),
	}
	return b.request(st)
}

// Dispatch hands out the outstanding request exactly once, for the first render that embeds
// the client script. Later renders only show the pending state.
func (b *Bridge) Dispatch(st *Status) (Request, bool) {
	if st.State != Requested || st.Dispatched || st.RequestID == "" {
		return Request{}, false
	}
	st.Dispatched = true
	return b.request(st), true
}

func (b *Bridge) request(st *Status) Request {
	return Request{ID: st.RequestID, Timeout: b.Timeout}
}

// Apply consumes a relay. It reports false without error when the relay does not match the
// outstanding request (stale, duplicate, or nothing requested). A malformed relay for the
// outstanding request returns an error and leaves the state untouched.
func (b *Bridge) Apply(st *Status, relay Relay) (bool, error) {
	if !st.Awaits(relay.RequestID) {
		return false, nil
	}
	if err := relay.check(); err != nil {
		return false, err
	}
	if relay.Failure != nil {
		reason := strings.TrimSpace(relay.Failure.Message)
		if reason == "" {
			reason = DefaultReason(relay.Failure.Code)
		}
		*st = Status{State: Denied, Code: relay.Failure.Code, Reason: reason}
		return true, nil
	}
	coords := *relay.Coordinates
	*st = Status{State: Granted, Coordinates: &coords}
	return true, nil
}

// DefaultReason describes a platform error code when the browser sent no message.
func DefaultReason(code int) string {
	switch code {
	case CodeUnsupported:
		return "geolocation is not supported by this browser"
	case CodePermissionDenied:
		return "permission denied"
	case CodePositionUnavailable:
		return "position unavailable"
	case CodeTimeout:
		return "timed out waiting for a position"
	}
	return "unknown geolocation error"
}
