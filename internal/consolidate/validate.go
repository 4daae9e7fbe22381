package consolidate

import (
	"errors"
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"

	"github.com/lox/hruclean/internal/models"
)

var ErrInvalidInput = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}

// Validate checks the tables and options before any work is done. Every
// problem found is reported, not just the first.
func Validate(hrus []models.HRU, subbasins []models.SubBasin, opts Options) error {
	var merr *multierror.Error

	if math.IsNaN(opts.AreaTol) || opts.AreaTol < 0 || opts.AreaTol >= 1 {
		merr = multierror.Append(merr, invalidf("area tolerance %v outside [0,1)", opts.AreaTol))
	}
	if _, err := ParseLockPolicy(string(opts.LockPolicy)); err != nil {
		merr = multierror.Append(merr, err)
	}

	known := make(map[int64]bool, len(subbasins))
	for _, sb := range subbasins {
		if known[sb.SBID] {
			merr = multierror.Append(merr, invalidf("duplicate sub-basin %d", sb.SBID))
			continue
		}
		known[sb.SBID] = true
	}

	seen := make(map[int64]bool, len(hrus))
	for i, h := range hrus {
		if h.ID <= 0 {
			merr = multierror.Append(merr, invalidf("row %d: hru id %d must be positive", i+1, h.ID))
		} else if seen[h.ID] {
			merr = multierror.Append(merr, invalidf("row %d: duplicate hru id %d", i+1, h.ID))
		}
		seen[h.ID] = true

		if !known[h.SBID] {
			merr = multierror.Append(merr, invalidf("hru %d: unknown sub-basin %d", h.ID, h.SBID))
		}
		if math.IsNaN(h.Area) || math.IsInf(h.Area, 0) || h.Area <= 0 {
			merr = multierror.Append(merr, invalidf("hru %d: area %v must be positive", h.ID, h.Area))
		}
	}

	return merr.ErrorOrNil()
}
