package ingest

import (
	"encoding/json"

	"github.com/lox/hruclean/internal/models"
)

const (
	FlagElevationOutOfRange = "elevation_out_of_range"
	FlagSlopeInvalid        = "slope_invalid"
	FlagAspectInvalid       = "aspect_invalid"
	FlagLatitudeInvalid     = "latitude_invalid"
	FlagLongitudeInvalid    = "longitude_invalid"
	FlagLandUseMissing      = "land_use_missing"
)

// ValidateHRU returns quality flags for values that parse but look wrong.
// Flags are informational; hard errors are left to consolidate.Validate.
func ValidateHRU(h *models.HRU) []string {
	var flags []string

	if h.Elevation != nil && (*h.Elevation < -500 || *h.Elevation > 9000) {
		flags = append(flags, FlagElevationOutOfRange)
	}

	if h.Slope != nil && (*h.Slope < 0 || *h.Slope > 90) {
		flags = append(flags, FlagSlopeInvalid)
	}

	if h.Aspect != nil && (*h.Aspect < 0 || *h.Aspect > 360) {
		flags = append(flags, FlagAspectInvalid)
	}

	if h.Latitude != nil && (*h.Latitude < -90 || *h.Latitude > 90) {
		flags = append(flags, FlagLatitudeInvalid)
	}
	if h.Longitude != nil && (*h.Longitude < -180 || *h.Longitude > 180) {
		flags = append(flags, FlagLongitudeInvalid)
	}

	if h.LandUse == "" {
		flags = append(flags, FlagLandUseMissing)
	}

	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
