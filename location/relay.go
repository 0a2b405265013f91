package location

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
)

// Query parameter names written by the client script.
const (
	ParamRequest   = "geo_req"
	ParamLatitude  = "lat"
	ParamLongitude = "lon"
	ParamErrCode   = "geo_err_code"
	ParamErrMsg    = "geo_err"
)

var relayParams = []string{ParamRequest, ParamLatitude, ParamLongitude, ParamErrCode, ParamErrMsg}

// Failure is the browser's error callback payload.
type Failure struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Relay is one delivery of a client-side outcome back to the server.
type Relay struct {
	RequestID   string
	Coordinates *models.Coordinates
	Failure     *Failure
}

func (r Relay) check() error {
	switch {
	case r.Coordinates != nil && r.Failure != nil:
		return fmt.Errorf("%w: both coordinates and error present", ErrMalformedRelay)
	case r.Coordinates != nil:
		if !r.Coordinates.Valid() {
			return fmt.Errorf("%w: coordinates out of range", ErrMalformedRelay)
		}
	case r.Failure == nil:
		return fmt.Errorf("%w: no outcome", ErrMalformedRelay)
	}
	return nil
}

// HasRelay reports whether any relay parameter is present in q.
func HasRelay(q url.Values) bool {
	for _, p := range relayParams {
		if _, ok := q[p]; ok {
			return true
		}
	}
	return false
}

// ParseQuery extracts a relay from round-tripped query parameters.
func ParseQuery(q url.Values) (Relay, error) {
	relay := Relay{RequestID: strings.TrimSpace(q.Get(ParamRequest))}
	if relay.RequestID == "" {
		return Relay{}, fmt.Errorf("%w: missing %s", ErrMalformedRelay, ParamRequest)
	}

	if code := strings.TrimSpace(q.Get(ParamErrCode)); code != "" || q.Has(ParamErrMsg) {
		n, err := strconv.Atoi(code)
		if err != nil {
			return Relay{}, fmt.Errorf("%w: bad %s %q", ErrMalformedRelay, ParamErrCode, code)
		}
		relay.Failure = &Failure{Code: n, Message: q.Get(ParamErrMsg)}
	}

	lat, lon := strings.TrimSpace(q.Get(ParamLatitude)), strings.TrimSpace(q.Get(ParamLongitude))
	if lat != "" || lon != "" {
		latitude, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return Relay{}, fmt.Errorf("%w: bad %s %q", ErrMalformedRelay, ParamLatitude, lat)
		}
		longitude, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return Relay{}, fmt.Errorf("%w: bad %s %q", ErrMalformedRelay, ParamLongitude, lon)
		}
		relay.Coordinates = &models.Coordinates{Latitude: latitude, Longitude: longitude}
	}
	return relay, relay.check()
}

// StripQuery returns q without the relay parameters.
func StripQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = v
	}
	for _, p := range relayParams {
		out.Del(p)
	}
	return out
}

// Message is the JSON body posted by the page-message relay.
type Message struct {
	RequestID string   `json:"request_id"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Error     *Failure `json:"error,omitempty"`
}

// DecodeMessage reads a page-message relay.
func DecodeMessage(r io.Reader) (Relay, error) {
	var msg Message
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return Relay{}, fmt.Errorf("%w: %v", ErrMalformedRelay, err)
	}
	relay := Relay{RequestID: strings.TrimSpace(msg.RequestID), Failure: msg.Error}
	if relay.RequestID == "" {
		return Relay{}, fmt.Errorf("%w: missing request_id", ErrMalformedRelay)
	}
	if msg.Latitude != nil || msg.Longitude != nil {
		if msg.Latitude == nil || msg.Longitude == nil {
			return Relay{}, fmt.Errorf("%w: incomplete coordinates", ErrMalformedRelay)
		}
		relay.Coordinates = &models.Coordinates{Latitude: *msg.Latitude, Longitude: *msg.Longitude}
	}
	return relay, relay.check()
}
