package seqgen

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Names of the files a job writes to its output directory.
const (
	SnapshotsFile = "snapshots.yaml"
	ArchiveFile   = "archive.yaml"
	ReportFile    = "report.txt"
)

// Report summarizes a finished run.
type Report struct {
	RunID   string
	Seed    int64 // Seed the run's random source was created with, to reproduce it
	Elapsed time.Duration

	Submitted  int64 // Generated tests
	Executions int64 // Tests which were executed, i.e. not answered by the execution cache
	Delivered  int64 // Results handed to the archive
	Retained   int64 // Results the archive retained at the time they were delivered
	Failed     int64 // Executions which failed and whose results were skipped

	Coverage  coverage.Set            // The union of all delivered coverage
	Tests     []coverage.TestCoverage // The archive at the end of the run
	Snapshots []Snapshot
}

// Dump writes a human readable description of the report to w.
func (r *Report) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "run %s (seed %d) took %v\n", r.RunID, r.Seed, r.Elapsed.Round(time.Millisecond)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d tests generated, %d executed, %d delivered, %d failed, %d retained\n\n",
		r.Submitted, r.Executions, r.Delivered, r.Failed, len(r.Tests)); err != nil {
		return err
	}
	return Dump(w, r.Coverage)
}

// DumpFile writes the report to the file at path.
func (r *Report) DumpFile(path string) error {
	return writeFile(path, r.Dump)
}

// Dump writes the quality and the observations of every dimension of set to w.
func Dump(w io.Writer, set coverage.Set) error {
	for _, key := range set.Keys() {
		info := set[key]
		if _, err := fmt.Fprintf(w, "%s: %.0f\n", key, info.Quality()); err != nil {
			return err
		}
		detail := info.String()
		if detail == "" {
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(detail, "\n"), "\n") {
			if _, err := fmt.Fprintf(w, "    %s\n", line); err != nil {
				return err
			}
		}
	}
	return nil
}

// A Snapshot is the progress of a run at one point in time.
type Snapshot struct {
	ElapsedMs  int64              `yaml:"elapsedMs"`
	Executions int64              `yaml:"executions"`
	Quality    map[string]float64 `yaml:"quality"`
}

// Snapshotter samples the progress of a run. Every snapshot is logged and, if Path is set,
// appended to the yaml sequence in the file at Path.
type Snapshotter struct {
	Path string
	Log  *logrus.Entry

	mu        sync.Mutex
	start     time.Time
	snapshots []Snapshot
}

// Start sets the point in time the elapsed time of snapshots is measured from.
func (s *Snapshotter) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.start = time.Now()
}

// Snapshot records the number of executions so far and the quality of best.
func (s *Snapshotter) Snapshot(executions int64, best coverage.Set) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.start.IsZero() {
		s.start = time.Now()
	}
	snapshot := Snapshot{
		ElapsedMs:  time.Since(s.start).Milliseconds(),
		Executions: executions,
		Quality:    make(map[string]float64, len(best)),
	}
	for key, info := range best {
		snapshot.Quality[key] = info.Quality()
	}
	s.snapshots = append(s.snapshots, snapshot)

	if s.Log != nil {
		s.Log.Infof("%6dms: %d executions, coverage %v", snapshot.ElapsedMs, executions, best)
	}
	if s.Path == "" {
		return snapshot, nil
	}

	out, err := yaml.Marshal([]Snapshot{snapshot})
	if err != nil {
		return snapshot, err
	}
	file, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return snapshot, errors.Join(fmt.Errorf("failed to open snapshot file %s", s.Path), err)
	}
	defer file.Close()
	_, err = file.Write(out)
	return snapshot, err
}

// Snapshots returns all snapshots taken so far.
func (s *Snapshotter) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Snapshot(nil), s.snapshots...)
}

type archivedTest struct {
	Fingerprint string             `yaml:"fingerprint"`
	Operations  []string           `yaml:"operations"`
	Quality     map[string]float64 `yaml:"quality"`
	Faults      string             `yaml:"faults,omitempty"`
}

type archiveYaml struct {
	Tests []archivedTest `yaml:"tests"`
}

// PersistArchive writes the passed tests, as a listing of their operations and the quality of
// every dimension they covered, to the yaml file at path. The file is replaced atomically.
func PersistArchive(path string, tests []coverage.TestCoverage) error {
	archive := archiveYaml{Tests: make([]archivedTest, 0, len(tests))}
	for _, tc := range tests {
		entry := archivedTest{
			Fingerprint: tc.Test.Fingerprint().String(),
			Quality:     make(map[string]float64, len(tc.Coverage)),
		}
		for _, op := range tc.Test.Operations() {
			entry.Operations = append(entry.Operations, op.String())
		}
		for key, info := range tc.Coverage {
			entry.Quality[key] = info.Quality()
		}
		if faults, ok := tc.Coverage[coverage.FaultsKey]; ok && !coverage.IsEmpty(faults) {
			entry.Faults = faults.String()
		}
		archive.Tests = append(archive.Tests, entry)
	}

	return writeFile(path, func(w io.Writer) error {
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(archive); err != nil {
			return err
		}
		return encoder.Close()
	})
}

// writeFile writes to a temporary file next to path and renames it to path once write succeeded.
func writeFile(path string, write func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
