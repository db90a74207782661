package place

import (
	"errors"
	"fmt"
	"math"

	"github.com/kailas-cloud/geodex/internal/domain/geo"
)

// ErrMalformed signals a candidate that breaks the index schema contract.
var ErrMalformed = errors.New("malformed candidate")

// Drop reasons reported by ValidationError.
const (
	ReasonMissingID          = "missing_id"
	ReasonUnknownType        = "unknown_type"
	ReasonBadScore           = "bad_score"
	ReasonBadCoordinates     = "bad_coordinates"
	ReasonMissingName        = "missing_name"
	ReasonMissingHouseNumber = "missing_housenumber"
	ReasonMissingPostcode    = "missing_postcode"
	ReasonMissingAdminChain  = "missing_admin_chain"
)

// ValidationError describes why a candidate is malformed.
type ValidationError struct {
	ID     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrMalformed.Error(), e.ID, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrMalformed }

// Validate checks the candidate against the schema contract:
// houses carry housenumber and postcode, streets and admins carry a non-empty admin chain.
func (c Candidate) Validate() error {
	reason := c.invalidReason()
	if reason == "" {
		return nil
	}
	return &ValidationError{ID: c.id, Reason: reason}
}

func (c Candidate) invalidReason() string {
	switch {
	case c.id == "":
		return ReasonMissingID
	case !c.typ.IsValid():
		return ReasonUnknownType
	case math.IsNaN(c.score) || math.IsInf(c.score, 0):
		return ReasonBadScore
	case !geo.ValidateCoordinates(c.geometry.Point.Lat, c.geometry.Point.Lon):
		return ReasonBadCoordinates
	}

	switch c.typ {
	case House:
		if c.attrs.HouseNumber == "" {
			return ReasonMissingHouseNumber
		}
		if c.attrs.Postcode == "" {
			return ReasonMissingPostcode
		}
		if c.StreetName() == "" {
			return ReasonMissingName
		}
	case Street, Admin:
		if c.attrs.Name == "" {
			return ReasonMissingName
		}
		if len(c.attrs.Admins) == 0 {
			return ReasonMissingAdminChain
		}
	case POI, Zone:
		if c.attrs.Name == "" {
			return ReasonMissingName
		}
	}
	return ""
}
