package ingest

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lox/hruclean/internal/models"
)

const hruCSV = `ID,Area,Elevation,Latitude,Longitude,SBID,LandUse,Vegetation,SoilProfile,Slope,Aspect,Aquifer
1,12.5,410.2,45.1,-75.2,10,Forest,Trees,Loam,4.5,180,GW1
2,0.04,,45.1,-75.2,10,Crop,Grass,Sand,,,GW1
3,7,388,45.2,-75.3,20,Urban,Grass,Clay,1.2,90,GW2
`

const subbasinCSV = `SBID,Name,DowSBID,DrainArea,Gauged
10,Upper,20,12.54,false
20,Outlet,-1,,1
`

func TestLoadHRUs(t *testing.T) {
	hrus, err := LoadHRUs(strings.NewReader(hruCSV))
	if err != nil {
		t.Fatalf("LoadHRUs: %v", err)
	}
	if len(hrus) != 3 {
		t.Fatalf("len(hrus) = %d, want 3", len(hrus))
	}

	first := hrus[0]
	if first.ID != 1 || first.SBID != 10 || first.Area != 12.5 || first.LandUse != "Forest" {
		t.Errorf("first = %+v", first)
	}
	if first.Elevation == nil || *first.Elevation != 410.2 {
		t.Errorf("first.Elevation = %v, want 410.2", first.Elevation)
	}
	if first.SoilProfile != "Loam" || first.Vegetation != "Trees" {
		t.Errorf("classes = %q/%q, want Loam/Trees", first.SoilProfile, first.Vegetation)
	}

	second := hrus[1]
	if second.Elevation != nil || second.Slope != nil || second.Aspect != nil {
		t.Errorf("blank cells should decode to nil, got %+v", second)
	}
}

func TestLoadHRUs_MinimalColumns(t *testing.T) {
	hrus, err := LoadHRUs(strings.NewReader("ID,SBID,Area,LandUse\n5,1,3.5,Wetland\n"))
	if err != nil {
		t.Fatalf("LoadHRUs: %v", err)
	}
	want := []models.HRU{{ID: 5, SBID: 1, Area: 3.5, LandUse: "Wetland"}}
	if !reflect.DeepEqual(hrus, want) {
		t.Errorf("hrus = %+v, want %+v", hrus, want)
	}
}

func TestLoadHRUs_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		wantErr []string
	}{
		{"empty input", "", []string{"hru table is empty"}},
		{"missing area and land use", "ID,SBID\n1,1\n", []string{`missing column "Area"`, `missing column "LandUse"`}},
		{"bad number", "ID,SBID,Area,LandUse\n1,1,abc,Forest\n2,1,1,Forest\n3,x,1,Crop\n", []string{"hru row 1", "hru row 3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHRUs(strings.NewReader(tt.csv))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrSchema) {
				t.Errorf("errors.Is(err, ErrSchema) = false for %v", err)
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestLoadSubBasins(t *testing.T) {
	sbs, err := LoadSubBasins(strings.NewReader(subbasinCSV))
	if err != nil {
		t.Fatalf("LoadSubBasins: %v", err)
	}
	if len(sbs) != 2 {
		t.Fatalf("len(sbs) = %d, want 2", len(sbs))
	}
	if sbs[0].SBID != 10 || sbs[0].Name != "Upper" || sbs[0].DowSBID != 20 || sbs[0].Gauged {
		t.Errorf("sbs[0] = %+v", sbs[0])
	}
	if sbs[0].DrainArea == nil || *sbs[0].DrainArea != 12.54 {
		t.Errorf("sbs[0].DrainArea = %v, want 12.54", sbs[0].DrainArea)
	}
	if sbs[1].DowSBID != -1 || !sbs[1].Gauged || sbs[1].DrainArea != nil {
		t.Errorf("sbs[1] = %+v", sbs[1])
	}
}

func TestLoadSubBasins_BlankOptionalCells(t *testing.T) {
	sbs, err := LoadSubBasins(strings.NewReader("SBID,Name,DowSBID,DrainArea,Gauged\n3,Headwater,,,\n"))
	if err != nil {
		t.Fatalf("LoadSubBasins: %v", err)
	}
	want := []models.SubBasin{{SBID: 3, Name: "Headwater"}}
	if !reflect.DeepEqual(sbs, want) {
		t.Errorf("sbs = %+v, want %+v", sbs, want)
	}
}

func TestLoadSubBasins_MissingID(t *testing.T) {
	_, err := LoadSubBasins(strings.NewReader("Name\nUpper\n"))
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}

func TestWriteHRUs_RoundTrip(t *testing.T) {
	hrus, err := LoadHRUs(strings.NewReader(hruCSV))
	if err != nil {
		t.Fatalf("LoadHRUs: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteHRUs(&buf, hrus); err != nil {
		t.Fatalf("WriteHRUs: %v", err)
	}
	header := strings.SplitN(buf.String(), "\n", 2)[0]
	if header != "ID,Area,Elevation,Latitude,Longitude,SBID,LandUse,Vegetation,SoilProfile,Slope,Aspect" {
		t.Errorf("header = %q", header)
	}

	again, err := LoadHRUs(&buf)
	if err != nil {
		t.Fatalf("LoadHRUs(written): %v", err)
	}
	if !reflect.DeepEqual(again, hrus) {
		t.Errorf("round trip = %+v, want %+v", again, hrus)
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	summary := []models.SubBasinSummary{{SBID: 10, HRUsIn: 2, HRUsOut: 1, AreaIn: 12.54, AreaOut: 12.54, Threshold: 0.0627, Merged: 1}}
	if err := WriteSummary(&buf, summary); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %q", len(lines), buf.String())
	}
	if lines[0] != "SBID,HRUsIn,HRUsOut,AreaIn,AreaOut,Threshold,Merged,Dropped,Unmerged" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "10,2,1,") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestWriteHRUsParquet(t *testing.T) {
	hrus, err := LoadHRUs(strings.NewReader(hruCSV))
	if err != nil {
		t.Fatalf("LoadHRUs: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteHRUsParquet(&buf, hrus); err != nil {
		t.Fatalf("WriteHRUsParquet: %v", err)
	}
	b := buf.Bytes()
	if len(b) < 8 || string(b[:4]) != "PAR1" || string(b[len(b)-4:]) != "PAR1" {
		t.Errorf("output is not a parquet file (%d bytes)", len(b))
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	err := WriteFile(path, func(w io.Writer) error {
		return WriteHRUs(w, []models.HRU{{ID: 1, SBID: 1, Area: 2, LandUse: "Forest"}})
	})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	hrus, err := LoadHRUs(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("LoadHRUs: %v", err)
	}
	if len(hrus) != 1 || hrus[0].Area != 2 {
		t.Errorf("hrus = %+v", hrus)
	}

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("directory not created: %v", err)
	}
}
