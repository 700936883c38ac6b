package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"photocal/internal/catalog"
	"photocal/internal/config"
	"photocal/internal/simulate"
	"photocal/internal/storage"
)

func newTestRoot(t *testing.T) (*Root, *storage.Store) {
	t.Helper()

	cfg := config.Default()
	cfg.Processing.ParallelJobs = 2

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.New(filepath.Join(t.TempDir(), "photocal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewRoot(cfg, log, store), store
}

func runCommand(t *testing.T, root *Root, args ...string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	cmd := NewRootCmd(root)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	runErr := cmd.Execute()

	w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	io.Copy(&buf, r)
	r.Close()

	return buf.String(), runErr
}

// writeField simulates a small field and writes its catalogs as CSVs,
// returning the reference path and the comparison frame paths.
func writeField(t *testing.T, dir string) (string, []string) {
	t.Helper()

	params := simulate.Defaults()
	params.Sources = 40
	params.Jitter = 0.05
	params.DropFraction = 0
	ref, comps, err := simulate.Field(params)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	refPath := filepath.Join(dir, "reference.csv")
	if err := catalog.WriteCSV(refPath, ref); err != nil {
		t.Fatalf("write reference: %v", err)
	}
	framePaths := make([]string, len(comps))
	for i, c := range comps {
		framePaths[i] = filepath.Join(dir, c.Name+".csv")
		if err := catalog.WriteCSV(framePaths[i], c); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	return refPath, framePaths
}

func TestCommandRegistration(t *testing.T) {
	root, _ := newTestRoot(t)
	cmd := NewRootCmd(root)

	want := []string{"calibrate", "simulate", "runs", "watch", "config", "version"}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestCalibrateRecordsRun(t *testing.T) {
	root, store := newTestRoot(t)
	refPath, framePaths := writeField(t, t.TempDir())

	args := append([]string{"calibrate", refPath}, framePaths...)
	out, err := runCommand(t, root, args...)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if !strings.Contains(out, "reference") {
		t.Errorf("table output missing reference row:\n%s", out)
	}

	runs, err := store.RecentRuns(5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != "completed" {
		t.Fatalf("expected one completed run, got %+v", runs)
	}
	if runs[0].FrameCount != len(framePaths)+1 {
		t.Errorf("FrameCount = %d, want %d", runs[0].FrameCount, len(framePaths)+1)
	}

	zps, err := store.RunZeroPoints(runs[0].ID)
	if err != nil {
		t.Fatalf("run zero-points: %v", err)
	}
	if len(zps) != len(framePaths)+1 {
		t.Fatalf("got %d zero-points, want %d", len(zps), len(framePaths)+1)
	}
	// Dimmer frames should carry a larger zero-point than the reference.
	if !(zps[1].ZeroPoint > zps[0].ZeroPoint) {
		t.Errorf("frame zero-point %v not above reference %v", zps[1].ZeroPoint, zps[0].ZeroPoint)
	}
}

func TestCalibrateNoStoreWorksWithoutDatabase(t *testing.T) {
	cfg := config.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := NewRoot(cfg, log, nil)

	refPath, framePaths := writeField(t, t.TempDir())
	args := append([]string{"calibrate", "--no-store", refPath}, framePaths...)
	if _, err := runCommand(t, root, args...); err != nil {
		t.Fatalf("calibrate --no-store: %v", err)
	}
}

func TestCalibrateRejectsMixedCoordinateSystems(t *testing.T) {
	root, _ := newTestRoot(t)
	dir := t.TempDir()
	refPath, _ := writeField(t, dir)

	angPath := filepath.Join(dir, "angular.csv")
	ang, _, err := catalog.FromColumns("angular", catalog.Columns{
		"ra":   {10.0, 10.001},
		"dec":  {-5.0, -5.001},
		"flux": {120, 80},
	})
	if err != nil {
		t.Fatalf("build angular catalog: %v", err)
	}
	// WriteCSV emits x,y headers, so rewrite with angular headers.
	var body strings.Builder
	body.WriteString("ra,dec,flux\n")
	for _, s := range ang.Sources {
		fmt.Fprintf(&body, "%g,%g,%g\n", s.X, s.Y, s.Flux)
	}
	if err := os.WriteFile(angPath, []byte(body.String()), 0o644); err != nil {
		t.Fatalf("write angular csv: %v", err)
	}

	if _, err := runCommand(t, root, "calibrate", "--no-store", refPath, angPath); err == nil {
		t.Fatal("expected mixed coordinate system error")
	}
}

func TestSimulateWritesCatalogs(t *testing.T) {
	root, _ := newTestRoot(t)
	dir := filepath.Join(t.TempDir(), "field")

	if _, err := runCommand(t, root, "simulate", dir, "--sources", "20", "--frames", "2", "--seed", "7"); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	for _, name := range []string{"reference.csv", "frame_001.csv", "frame_002.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	c, kind, err := catalog.ReadCSV(filepath.Join(dir, "reference.csv"))
	if err != nil {
		t.Fatalf("read reference: %v", err)
	}
	if kind != catalog.Pixel {
		t.Errorf("kind = %v, want pixel", kind)
	}
	if c.Len() != 20 {
		t.Errorf("reference has %d sources, want 20", c.Len())
	}
}

func TestRunsCommandListsAndShows(t *testing.T) {
	root, store := newTestRoot(t)

	if err := store.RecordRunStart(storage.RunRecord{ID: "run-a", Reference: "reference", FrameCount: 2}); err != nil {
		t.Fatalf("record start: %v", err)
	}
	zps := []storage.FrameZeroPoint{
		{RunID: "run-a", FrameIndex: 0, Catalog: "reference", ZeroPoint: 0.1, Matched: 10},
		{RunID: "run-a", FrameIndex: 1, Catalog: "frame_001", ZeroPoint: 0.3, Matched: 9},
	}
	if err := store.RecordRunResult("run-a", "completed", 10, 0.001, "", zps); err != nil {
		t.Fatalf("record result: %v", err)
	}

	out, err := runCommand(t, root, "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "run-a") || !strings.Contains(out, "completed") {
		t.Errorf("runs listing missing record:\n%s", out)
	}

	out, err = runCommand(t, root, "runs", "run-a")
	if err != nil {
		t.Fatalf("runs run-a: %v", err)
	}
	if !strings.Contains(out, "frame_001") {
		t.Errorf("run detail missing frame row:\n%s", out)
	}

	if _, err := runCommand(t, root, "runs", "no-such-run"); err == nil {
		t.Fatal("expected error for unknown run id")
	}
}

func TestVersionCommand(t *testing.T) {
	root, _ := newTestRoot(t)
	out, err := runCommand(t, root, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, Version) {
		t.Errorf("version output %q missing %q", out, Version)
	}
}

func TestConfigCommandEmitsJSON(t *testing.T) {
	root, _ := newTestRoot(t)
	out, err := runCommand(t, root, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, `"matching"`) || !strings.Contains(out, `"radius"`) {
		t.Errorf("config output missing matching section:\n%s", out)
	}
}
