package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRun(t *testing.T) {
	success := testutil.ToFloat64(RunsTotal.WithLabelValues("success"))
	failed := testutil.ToFloat64(RunsTotal.WithLabelValues("error"))

	RecordRun("success", 250*time.Millisecond)
	RecordRun("error", time.Second)

	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("success")); got != success+1 {
		t.Errorf("success runs = %v, want %v", got, success+1)
	}
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("error")); got != failed+1 {
		t.Errorf("error runs = %v, want %v", got, failed+1)
	}
	if got := testutil.ToFloat64(LastRunTimestamp); got == 0 {
		t.Error("LastRunTimestamp not set after successful run")
	}
}

func TestWriteTextfile(t *testing.T) {
	EventsTotal.WithLabelValues("merge").Add(3)

	path := filepath.Join(t.TempDir(), "hruclean.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(b), `hruclean_events_total{kind="merge"}`) {
		t.Errorf("textfile missing merge events:\n%s", b)
	}
}
