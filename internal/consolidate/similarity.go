package consolidate

import (
	"math"

	"github.com/lox/hruclean/internal/models"
)

// span holds the per-sub-basin attribute ranges used to normalise the
// elevation and slope components of the similarity distance.
type span struct {
	elevation float64
	slope     float64
}

func spanOf(hrus []*models.HRU) span {
	return span{
		elevation: rangeOf(hrus, func(h *models.HRU) *float64 { return h.Elevation }),
		slope:     rangeOf(hrus, func(h *models.HRU) *float64 { return h.Slope }),
	}
}

func rangeOf(hrus []*models.HRU, attr func(*models.HRU) *float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, h := range hrus {
		v := attr(h)
		if v == nil {
			continue
		}
		lo = math.Min(lo, *v)
		hi = math.Max(hi, *v)
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}

// distance is the Euclidean distance between two HRUs over normalised
// elevation, slope and aspect. Each component lies in [0,1]; a component
// missing on either side counts as 1.
func distance(a, b *models.HRU, s span) float64 {
	de := linear(a.Elevation, b.Elevation, s.elevation)
	ds := linear(a.Slope, b.Slope, s.slope)
	da := circular(a.Aspect, b.Aspect)
	return math.Sqrt(de*de + ds*ds + da*da)
}

func linear(a, b *float64, width float64) float64 {
	if a == nil || b == nil {
		return 1
	}
	if width == 0 {
		return 0
	}
	return math.Min(math.Abs(*a-*b)/width, 1)
}

func circular(a, b *float64) float64 {
	if a == nil || b == nil {
		return 1
	}
	d := math.Mod(math.Abs(*a-*b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d / 180
}

// rank orders merge candidates; lower is better.
type rank struct {
	landUse  int
	distance float64
	classes  int
	area     float64
	id       int64
}

func rankOf(src, dst *unit, s span) rank {
	r := rank{
		distance: distance(src.hru, dst.hru, s),
		area:     dst.area,
		id:       dst.hru.ID,
	}
	if src.hru.LandUse != dst.hru.LandUse {
		r.landUse = 1
	}
	if src.hru.SoilProfile != dst.hru.SoilProfile {
		r.classes++
	}
	if src.hru.Vegetation != dst.hru.Vegetation {
		r.classes++
	}
	return r
}

func (r rank) less(o rank) bool {
	switch {
	case r.landUse != o.landUse:
		return r.landUse < o.landUse
	case r.distance != o.distance:
		return r.distance < o.distance
	case r.classes != o.classes:
		return r.classes < o.classes
	case r.area != o.area:
		// Larger neighbours absorb first.
		return r.area > o.area
	default:
		return r.id < o.id
	}
}
