package consolidate

import (
	"fmt"
	"sort"

	"github.com/lox/hruclean/internal/models"
)

type Result struct {
	HRUs      []models.HRU
	SubBasins []models.SubBasin
	Summary   []models.SubBasinSummary
	Events    []models.Event
}

func (r *Result) Count(kind models.EventKind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Warnings returns the non-fatal report entries of the run.
func (r *Result) Warnings() []models.Event {
	var out []models.Event
	for _, e := range r.Events {
		if e.Kind == models.EventNoTarget || e.Kind == models.EventUnknown {
			out = append(out, e)
		}
	}
	return out
}

func TotalArea(hrus []models.HRU) float64 {
	var sum float64
	for _, h := range hrus {
		sum += h.Area
	}
	return sum
}

type unit struct {
	hru   *models.HRU
	area  float64
	alive bool
	stuck bool
}

type basin struct {
	sbid      int64
	units     []*unit
	threshold float64
	span      span
	areaIn    float64
}

// Consolidate removes HRUs smaller than opts.AreaTol of their sub-basin's
// area. With opts.Merge each one is folded into the most similar neighbour
// of the same sub-basin, otherwise it is dropped and its area lost. The
// input slices are not modified.
func Consolidate(hrus []models.HRU, subbasins []models.SubBasin, opts Options) (*Result, error) {
	if err := Validate(hrus, subbasins, opts); err != nil {
		return nil, err
	}
	opts.LockPolicy, _ = ParseLockPolicy(string(opts.LockPolicy))

	res := &Result{
		SubBasins: append([]models.SubBasin(nil), subbasins...),
	}
	res.Events = append(res.Events, unknownExemptions(hrus, opts)...)

	basins := partition(hrus, subbasins, opts.AreaTol)
	units := make(map[int64]*unit, len(hrus))
	for _, b := range basins {
		for _, u := range b.units {
			units[u.hru.ID] = u
		}
		if opts.AreaTol > 0 {
			res.Events = append(res.Events, b.consolidate(opts)...)
		}
		res.Summary = append(res.Summary, b.summary(res.Events))
	}

	res.HRUs = make([]models.HRU, 0, len(hrus))
	for _, h := range hrus {
		u := units[h.ID]
		if !u.alive {
			continue
		}
		h.Area = u.area
		res.HRUs = append(res.HRUs, h)
	}
	return res, nil
}

func partition(hrus []models.HRU, subbasins []models.SubBasin, tol float64) []*basin {
	byID := make(map[int64]*basin, len(subbasins))
	basins := make([]*basin, 0, len(subbasins))
	for _, sb := range subbasins {
		b := &basin{sbid: sb.SBID}
		byID[sb.SBID] = b
		basins = append(basins, b)
	}
	sort.Slice(basins, func(i, j int) bool { return basins[i].sbid < basins[j].sbid })

	for i := range hrus {
		b := byID[hrus[i].SBID]
		b.units = append(b.units, &unit{hru: &hrus[i], area: hrus[i].Area, alive: true})
		b.areaIn += hrus[i].Area
	}

	for _, b := range basins {
		members := make([]*models.HRU, len(b.units))
		for i, u := range b.units {
			members[i] = u.hru
		}
		b.span = spanOf(members)
		b.threshold = tol * b.areaIn
	}
	return basins
}

func (b *basin) consolidate(opts Options) []models.Event {
	var events []models.Event
	for {
		src := b.smallest(opts)
		if src == nil {
			return events
		}

		if !opts.Merge {
			if b.alive() == 1 {
				src.stuck = true
				events = append(events, b.event(models.EventNoTarget, src, nil,
					"last hru in sub-basin is below tolerance, kept"))
				continue
			}
			src.alive = false
			events = append(events, b.event(models.EventDrop, src, nil, ""))
			continue
		}

		dst := b.target(src, opts)
		if dst == nil {
			src.stuck = true
			events = append(events, b.event(models.EventNoTarget, src, nil,
				"no eligible merge target in sub-basin, kept"))
			continue
		}
		events = append(events, b.event(models.EventMerge, src, dst, ""))
		dst.area += src.area
		src.alive = false
	}
}

// smallest returns the smallest HRU that may still be removed, or nil.
// Every iteration of consolidate either removes the returned unit or marks
// it stuck, so the candidate set strictly shrinks.
func (b *basin) smallest(opts Options) *unit {
	var best *unit
	for _, u := range b.units {
		if !u.alive || u.stuck || opts.exempt(u.hru.ID) || u.area >= b.threshold {
			continue
		}
		if best == nil || u.area < best.area || (u.area == best.area && u.hru.ID < best.hru.ID) {
			best = u
		}
	}
	return best
}

func (b *basin) target(src *unit, opts Options) *unit {
	var best *unit
	var bestRank rank
	for _, u := range b.units {
		if u == src || !u.alive || !opts.canReceive(u.hru.ID) {
			continue
		}
		r := rankOf(src, u, b.span)
		if best == nil || r.less(bestRank) {
			best, bestRank = u, r
		}
	}
	return best
}

func (b *basin) alive() int {
	n := 0
	for _, u := range b.units {
		if u.alive {
			n++
		}
	}
	return n
}

func (b *basin) event(kind models.EventKind, src, dst *unit, msg string) models.Event {
	e := models.Event{
		Kind:    kind,
		HRUID:   src.hru.ID,
		SBID:    b.sbid,
		Area:    src.area,
		Message: msg,
	}
	if dst != nil {
		e.TargetID = dst.hru.ID
		e.Message = fmt.Sprintf("merged %.6g into hru %d (%.6g)", src.area, dst.hru.ID, dst.area)
	}
	return e
}

func (b *basin) summary(events []models.Event) models.SubBasinSummary {
	s := models.SubBasinSummary{
		SBID:      b.sbid,
		HRUsIn:    len(b.units),
		AreaIn:    b.areaIn,
		Threshold: b.threshold,
	}
	for _, u := range b.units {
		if u.alive {
			s.HRUsOut++
			s.AreaOut += u.area
		}
	}
	for _, e := range events {
		if e.SBID != b.sbid {
			continue
		}
		switch e.Kind {
		case models.EventMerge:
			s.Merged++
		case models.EventDrop:
			s.Dropped++
		case models.EventNoTarget:
			s.Unmerged++
		}
	}
	return s
}

func unknownExemptions(hrus []models.HRU, opts Options) []models.Event {
	present := make(map[int64]bool, len(hrus))
	for _, h := range hrus {
		present[h.ID] = true
	}

	var events []models.Event
	check := func(set IDSet, name string) {
		ids := make([]int64, 0, len(set))
		for id := range set {
			if !present[id] {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			events = append(events, models.Event{
				Kind:    models.EventUnknown,
				HRUID:   id,
				Message: fmt.Sprintf("%s hru %d not in table", name, id),
			})
		}
	}
	check(opts.Protected, "protected")
	check(opts.Locked, "locked")
	return events
}
