package config

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readReport(t *testing.T, name string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(name)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer zr.Close()

	files := make(map[string]string)
	for _, f := range zr.File {
		r, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		files[f.Name] = string(data)
	}
	return files
}

func TestReport_Finalize(t *testing.T) {
	dir := t.TempDir()
	conf := ReporterConfig{Destination: filepath.Join(dir, "report.zip")}

	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	stored := filepath.Join(dir, "book.epub")
	if err := os.WriteFile(stored, []byte("epub"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r.Store("source", stored)
	r.Store("missing", filepath.Join(dir, "nope.epub"))
	r.StoreData("job/failed.html", []byte("<html></html>"))
	r.StoreData("job/failed.html", []byte("<html>again</html>"))

	name := r.Name()
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	files := readReport(t, name)
	if files["source"] != "epub" {
		t.Errorf("source entry = %q, want epub", files["source"])
	}
	if _, ok := files["missing"]; ok {
		t.Error("absent file must be skipped")
	}
	if files["job/failed.html"] != "<html></html>" {
		t.Errorf("first data entry = %q", files["job/failed.html"])
	}
	versioned := 0
	for k := range files {
		if strings.HasPrefix(k, "job/failed.html-") {
			versioned++
		}
	}
	if versioned != 1 {
		t.Errorf("expected one versioned data entry, got %d", versioned)
	}
	if !strings.Contains(files["MANIFEST"], "source") {
		t.Errorf("MANIFEST does not list stored entries: %q", files["MANIFEST"])
	}
}

func TestReport_ConcurrentStore(t *testing.T) {
	conf := ReporterConfig{Destination: filepath.Join(t.TempDir(), "report.zip")}
	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			r.StoreData("data", []byte("x"))
		})
	}
	wg.Wait()

	name := r.Name()
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	// MANIFEST plus at least one entry, versioned names may collide on coarse clocks
	if files := readReport(t, name); len(files) < 2 {
		t.Errorf("report has %d entries, want at least 2", len(files))
	}
}

func TestReportClose_NilReport(t *testing.T) {
	var r *Report
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil report should not error, got: %v", err)
	}
	r.Store("a", "b")
	r.StoreData("a", nil)
	if r.Name() != "" {
		t.Error("nil report must have empty name")
	}
}

func TestReportClose_NilFile(t *testing.T) {
	r := &Report{entries: make(map[string]entry)}
	if err := r.Close(); err != nil {
		t.Errorf("Close with nil file should not error, got: %v", err)
	}
}
