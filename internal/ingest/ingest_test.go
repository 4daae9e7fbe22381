package ingest

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/lox/hruclean/internal/models"
)

func ptr(v float64) *float64 { return &v }

func TestValidateHRU(t *testing.T) {
	tests := []struct {
		name      string
		hru       *models.HRU
		wantFlags []string
	}{
		{
			name: "valid hru - no flags",
			hru: &models.HRU{
				LandUse:   "Forest",
				Elevation: ptr(420),
				Slope:     ptr(12),
				Aspect:    ptr(270),
				Latitude:  ptr(45.3),
				Longitude: ptr(-75.7),
			},
			wantFlags: nil,
		},
		{
			name:      "no optional attributes - no flags",
			hru:       &models.HRU{LandUse: "Crop"},
			wantFlags: nil,
		},
		{
			name:      "elevation below sea floor",
			hru:       &models.HRU{LandUse: "Forest", Elevation: ptr(-600)},
			wantFlags: []string{FlagElevationOutOfRange},
		},
		{
			name:      "elevation above everest",
			hru:       &models.HRU{LandUse: "Forest", Elevation: ptr(9100)},
			wantFlags: []string{FlagElevationOutOfRange},
		},
		{
			name:      "negative slope",
			hru:       &models.HRU{LandUse: "Forest", Slope: ptr(-1)},
			wantFlags: []string{FlagSlopeInvalid},
		},
		{
			name:      "slope at 90 - valid",
			hru:       &models.HRU{LandUse: "Forest", Slope: ptr(90)},
			wantFlags: nil,
		},
		{
			name:      "aspect at 360 - valid",
			hru:       &models.HRU{LandUse: "Forest", Aspect: ptr(360)},
			wantFlags: nil,
		},
		{
			name:      "aspect over 360",
			hru:       &models.HRU{LandUse: "Forest", Aspect: ptr(361)},
			wantFlags: []string{FlagAspectInvalid},
		},
		{
			name:      "bad coordinates",
			hru:       &models.HRU{LandUse: "Forest", Latitude: ptr(91), Longitude: ptr(-181)},
			wantFlags: []string{FlagLatitudeInvalid, FlagLongitudeInvalid},
		},
		{
			name:      "missing land use",
			hru:       &models.HRU{},
			wantFlags: []string{FlagLandUseMissing},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateHRU(tt.hru)
			sort.Strings(got)
			want := append([]string(nil), tt.wantFlags...)
			sort.Strings(want)
			if len(got) != len(want) {
				t.Errorf("ValidateHRU() = %v, want %v", got, want)
				return
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("ValidateHRU() = %v, want %v", got, want)
					return
				}
			}
		})
	}
}

func TestQualityFlagsToJSON(t *testing.T) {
	tests := []struct {
		name      string
		flags     []string
		wantEmpty bool
		wantFlags []string
	}{
		{
			name:      "empty flags",
			flags:     []string{},
			wantEmpty: true,
		},
		{
			name:      "nil flags",
			flags:     nil,
			wantEmpty: true,
		},
		{
			name:      "single flag",
			flags:     []string{FlagSlopeInvalid},
			wantFlags: []string{FlagSlopeInvalid},
		},
		{
			name:      "multiple flags",
			flags:     []string{FlagSlopeInvalid, FlagAspectInvalid},
			wantFlags: []string{FlagSlopeInvalid, FlagAspectInvalid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QualityFlagsToJSON(tt.flags)
			if tt.wantEmpty {
				if got != "" {
					t.Errorf("QualityFlagsToJSON() = %q, want empty", got)
				}
				return
			}
			var parsed []string
			if err := json.Unmarshal([]byte(got), &parsed); err != nil {
				t.Fatalf("failed to unmarshal result: %v", err)
			}
			sort.Strings(parsed)
			want := append([]string(nil), tt.wantFlags...)
			sort.Strings(want)
			if len(parsed) != len(want) {
				t.Errorf("QualityFlagsToJSON() parsed = %v, want %v", parsed, want)
				return
			}
			for i := range want {
				if parsed[i] != want[i] {
					t.Errorf("QualityFlagsToJSON() parsed = %v, want %v", parsed, want)
					return
				}
			}
		})
	}
}
