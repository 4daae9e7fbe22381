package models

import "time"

// HRU is a single row of the HRU table. Optional numeric columns are pointers
// so a blank cell stays distinguishable from zero.
type HRU struct {
	ID          int64    `csv:"ID" parquet:"name=id, type=INT64"`
	Area        float64  `csv:"Area" parquet:"name=area, type=DOUBLE"`
	Elevation   *float64 `csv:"Elevation,omitempty" parquet:"name=elevation, type=DOUBLE, repetitiontype=OPTIONAL"`
	Latitude    *float64 `csv:"Latitude,omitempty" parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude   *float64 `csv:"Longitude,omitempty" parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	SBID        int64    `csv:"SBID" parquet:"name=sbid, type=INT64"`
	LandUse     string   `csv:"LandUse" parquet:"name=land_use, type=BYTE_ARRAY, convertedtype=UTF8"`
	Vegetation  string   `csv:"Vegetation" parquet:"name=vegetation, type=BYTE_ARRAY, convertedtype=UTF8"`
	SoilProfile string   `csv:"SoilProfile" parquet:"name=soil_profile, type=BYTE_ARRAY, convertedtype=UTF8"`
	Slope       *float64 `csv:"Slope,omitempty" parquet:"name=slope, type=DOUBLE, repetitiontype=OPTIONAL"`
	Aspect      *float64 `csv:"Aspect,omitempty" parquet:"name=aspect, type=DOUBLE, repetitiontype=OPTIONAL"`
}

type SubBasin struct {
	SBID      int64    `csv:"SBID"`
	Name      string   `csv:"Name"`
	DowSBID   int64    `csv:"DowSBID,omitempty"`
	DrainArea *float64 `csv:"DrainArea,omitempty"`
	Gauged    bool     `csv:"Gauged,omitempty"`
}

// SubBasinSummary describes what a consolidation run did to one sub-basin.
type SubBasinSummary struct {
	SBID      int64   `csv:"SBID"`
	HRUsIn    int     `csv:"HRUsIn"`
	HRUsOut   int     `csv:"HRUsOut"`
	AreaIn    float64 `csv:"AreaIn"`
	AreaOut   float64 `csv:"AreaOut"`
	Threshold float64 `csv:"Threshold"`
	Merged    int     `csv:"Merged"`
	Dropped   int     `csv:"Dropped"`
	Unmerged  int     `csv:"Unmerged"`
}

type EventKind string

const (
	EventMerge    EventKind = "merge"
	EventDrop     EventKind = "drop"
	EventNoTarget EventKind = "no_target"
	EventUnknown  EventKind = "unknown_exemption"
)

// Event is one entry of a run's audit trail. TargetID is zero unless Kind is
// EventMerge.
type Event struct {
	Kind     EventKind
	HRUID    int64
	SBID     int64
	TargetID int64
	Area     float64
	Message  string
}

type Run struct {
	ID           string
	Label        string
	StartedAt    time.Time
	FinishedAt   time.Time
	AreaTol      float64
	Merge        bool
	LockPolicy   string
	Protected    int
	Locked       int
	// ProtectedIDs and LockedIDs are the exemption sets, sorted, so the run
	// can be replayed.
	ProtectedIDs []int64
	LockedIDs    []int64
	HRUsIn       int
	HRUsOut      int
	AreaIn       float64
	AreaOut      float64
	Warnings     int
	HRUPath      string
	SubBasinPath string
	// HRUSnapshot and SubBasinSnapshot are content hashes of the input tables.
	HRUSnapshot      string
	SubBasinSnapshot string
	Success          bool
	ErrorMessage     string
}
