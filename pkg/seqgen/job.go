package seqgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DominicWuest/seqgen/pkg/archive"
	"github.com/DominicWuest/seqgen/pkg/executor"
	"github.com/DominicWuest/seqgen/pkg/fault"
	"github.com/DominicWuest/seqgen/pkg/generator"
	"github.com/DominicWuest/seqgen/pkg/scheduler"
	"github.com/DominicWuest/seqgen/pkg/sut"
	"github.com/DominicWuest/seqgen/pkg/testcase"
	"github.com/creasty/defaults"
	"github.com/dchest/uniuri"
	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

type Strategy int

const (
	Batch Strategy = iota
	Incremental
)

func (s Strategy) String() string {
	switch s {
	case Batch:
		return "batch"
	case Incremental:
		return "incremental"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

type healthcheckYaml struct {
	Retries int `yaml:"retries" default:"10"`

	Backoff          int64 `yaml:"backoff" default:"200"`
	BackoffIncrement int64 `yaml:"backoffIncrement" default:"100"`
	MaxBackoff       int64 `yaml:"maxBackoff" default:"2000"`
}

type remoteWorkerYaml struct {
	URL      string `yaml:"url"`
	Capacity int64  `yaml:"capacity" default:"4"`

	Healthcheck healthcheckYaml `yaml:"healthcheck"`
}

type jobYaml struct {
	Budget   int64  `yaml:"budget" default:"10000"`
	Strategy string `yaml:"strategy" default:"batch"`

	SequenceLength       int     `yaml:"sequenceLength" default:"10"`
	NewObjectProbability float64 `yaml:"newObjectProbability" default:"0.2"`
	ConstantProbability  float64 `yaml:"constantProbability" default:"0.2"`
	ResetProbability     float64 `yaml:"resetProbability" default:"0"`
	CUTSlots             int     `yaml:"cutSlots" default:"3"`
	AuxSlots             int     `yaml:"auxSlots" default:"2"`

	Cache     *bool `yaml:"cache" default:"true"`
	CacheSize int   `yaml:"cacheSize" default:"10000"`

	ExecutionBudget int64 `yaml:"executionBudget" default:"1000"`
	Grace           int64 `yaml:"grace" default:"100"`

	Workers       *int               `yaml:"workers" default:"4"`
	RemoteWorkers []remoteWorkerYaml `yaml:"remoteWorkers"`

	Seed             int64  `yaml:"seed"`
	QueueSize        int    `yaml:"queueSize" default:"256"`
	SnapshotInterval int64  `yaml:"snapshotInterval" default:"1000"`
	OutputDir        string `yaml:"outputDir"`
	NilPolicy        string `yaml:"nilPolicy" default:"nil-args"`
}

// GetJobFromConfig reads in a job config in yaml format from a reader and initializes the corresponding job struct
func GetJobFromConfig(r io.Reader) (*Job, error) {
	var config jobYaml

	// Read in yaml
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := defaults.Set(&config); err != nil {
		return nil, err
	}

	strategies := map[string]Strategy{
		"batch":       Batch,
		"incremental": Incremental,
	}
	strategy, ok := strategies[strings.ToLower(config.Strategy)]
	if !ok {
		return nil, fmt.Errorf("invalid generation strategy %s", config.Strategy)
	}
	if _, err := fault.NilPolicyByName(config.NilPolicy); err != nil {
		return nil, err
	}

	// Convert to Job struct
	job := Job{
		Budget:   milliseconds(config.Budget),
		Strategy: strategy,

		SequenceLength: config.SequenceLength,
		Generator: generator.Config{
			CUTSlots:             config.CUTSlots,
			AuxSlots:             config.AuxSlots,
			NewObjectProbability: config.NewObjectProbability,
			ConstantProbability:  config.ConstantProbability,
			ResetProbability:     config.ResetProbability,
			CUTBias:              generator.DefaultConfig().CUTBias,
		},

		Cache:     *config.Cache,
		CacheSize: config.CacheSize,

		ExecutionBudget: milliseconds(config.ExecutionBudget),
		Grace:           milliseconds(config.Grace),

		Workers: *config.Workers,

		Seed:             config.Seed,
		QueueSize:        config.QueueSize,
		SnapshotInterval: milliseconds(config.SnapshotInterval),
		OutputDir:        config.OutputDir,
		NilPolicy:        config.NilPolicy,
	}

	// Set all the remote workers
	for _, w := range config.RemoteWorkers {
		if err := defaults.Set(&w); err != nil {
			return nil, err
		}
		if w.URL == "" {
			return nil, errors.New("remote worker without url supplied")
		}
		job.RemoteWorkers = append(job.RemoteWorkers, RemoteWorker{
			URL:      w.URL,
			Capacity: w.Capacity,
			Healthcheck: executor.HealthcheckConfig{
				Retries:          w.Healthcheck.Retries,
				Backoff:          milliseconds(w.Healthcheck.Backoff),
				BackoffIncrement: milliseconds(w.Healthcheck.BackoffIncrement),
				MaxBackoff:       milliseconds(w.Healthcheck.MaxBackoff),
			},
		})
	}

	return &job, nil
}

func milliseconds(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// A RemoteWorker is a worker server executing tests for a job.
type RemoteWorker struct {
	URL      string // Base URL of the worker
	Capacity int64  // How many tests the worker executes at once

	Healthcheck executor.HealthcheckConfig // How the worker is polled before the run starts
}

// A Job is one generation run against a registry of classes.
type Job struct {
	Budget   time.Duration // Wall clock time spent generating tests
	Strategy Strategy      // How tests are generated

	SequenceLength int              // Length of the tests of the batch strategy, and the longest prefix of the incremental one
	Generator      generator.Config // Random choices of the generated operations

	Cache     bool // Whether identical tests are executed only once
	CacheSize int  // How many fingerprints the execution cache holds

	ExecutionBudget time.Duration // Wall clock budget of a single execution
	Grace           time.Duration // How long a timed out execution gets to reach a safe point

	Workers       int            // How many tests are executed at once in this process, or 0 to only use remote workers
	RemoteWorkers []RemoteWorker // Worker servers sharing the execution of tests

	Seed             int64         // Seed of the random source, or 0 to derive one from the current time
	QueueSize        int           // How many submitted tests may wait for their result
	SnapshotInterval time.Duration // How often progress is reported and the archive is persisted
	OutputDir        string        // Where snapshots and the archive are written to, or empty to write nothing
	NilPolicy        string        // How nil dereferences with nil arguments are classified

	Log *logrus.Logger // The log to which information gets printed to

	runID string
}

// Run generates tests for the classes of registry until the budget is spent and returns the report
// of the run. Cancelling ctx interrupts the run; the report then holds the results delivered so far.
func (job *Job) Run(ctx context.Context, registry *sut.Registry) (*Report, error) {
	// Init the logger
	if job.Log == nil {
		// Mute logger
		job.Log = logrus.New()
		job.Log.SetOutput(io.Discard)
	}
	if job.Budget <= 0 {
		return nil, errors.New("job has no budget")
	}

	job.runID = uniuri.New()
	log := job.Log.WithField("run-id", job.runID)

	seed := job.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Infof("Generating tests for %s with the %s strategy and seed %d", registry.CUT().Name, job.Strategy, seed)

	if job.OutputDir != "" {
		if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create output directory %s", job.OutputDir), err)
		}
	}

	pool, err := job.pool(ctx, registry, log)
	if err != nil {
		return nil, err
	}

	var cache *scheduler.Cache
	if job.Cache {
		if cache, err = scheduler.NewCache(max(job.CacheSize, 1)); err != nil {
			return nil, err
		}
	}

	gen, err := job.generator(registry, seed, log)
	if err != nil {
		return nil, err
	}

	// Executions outlive the generation deadline, the collector waits for them
	execCtx, cancelExec := context.WithCancel(ctx)
	defer cancelExec()
	sched := scheduler.New(execCtx, pool, cache, log.WithField("component", "scheduler"))

	arch := archive.New(log.WithField("component", "archive"))
	collector := scheduler.NewCollector(job.QueueSize, arch, log.WithField("component", "collector"))

	snapshotter := &Snapshotter{Log: log.WithField("component", "snapshots")}
	if job.OutputDir != "" {
		snapshotter.Path = filepath.Join(job.OutputDir, SnapshotsFile)
	}
	snapshotter.Start()

	aux := executor.Aux{Budget: job.ExecutionBudget}
	start := time.Now()
	collected := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(collected)
		return collector.Run(gctx)
	})

	g.Go(func() error {
		defer collector.Close()

		genCtx, cancel := context.WithTimeout(gctx, job.Budget)
		defer cancel()

		sub := generator.SubmitterFunc(func(ctx context.Context, t *testcase.Test) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Enqueued with the run's context so that no submitted test is dropped at the deadline
			return collector.Enqueue(gctx, t, sched.Submit(t, aux))
		})
		n, err := gen.Generate(genCtx, sub)
		if err != nil {
			return errors.Join(errors.New("test generation failed"), err)
		}
		log.Infof("Generated %d tests in %v", n, time.Since(start).Round(time.Millisecond))
		return nil
	})

	g.Go(func() error {
		interval := job.SnapshotInterval
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-collected:
				return nil
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
			_, dispatched, _ := sched.Stats()
			if _, err := snapshotter.Snapshot(dispatched, arch.Coverage()); err != nil {
				log.Errorf("Failed to write snapshot - %v", err)
			}
			if cache != nil {
				if evicted := cache.UpdateScores(0.5, 1); evicted > 0 {
					log.Debugf("Evicted %d entries from the execution cache", evicted)
				}
			}
			if job.OutputDir != "" {
				if err := PersistArchive(filepath.Join(job.OutputDir, ArchiveFile), arch.Tests()); err != nil {
					log.Errorf("Failed to persist archive - %v", err)
				}
			}
		}
	})

	runErr := g.Wait()
	cancelExec()
	sched.Wait()

	submitted, dispatched, _ := sched.Stats()
	delivered, retained, failed := collector.Stats()
	report := &Report{
		RunID:      job.runID,
		Seed:       seed,
		Elapsed:    time.Since(start),
		Submitted:  submitted,
		Executions: dispatched,
		Delivered:  delivered,
		Retained:   retained,
		Failed:     failed,
		Coverage:   arch.Coverage(),
		Tests:      arch.Tests(),
		Snapshots:  snapshotter.Snapshots(),
	}

	if runErr != nil {
		if ctx.Err() != nil {
			log.Warnf("Run interrupted after %d of %d tests were delivered", delivered, submitted)
		} else {
			log.Errorf("Run failed - %v", runErr)
		}
	}

	if _, err := snapshotter.Snapshot(dispatched, report.Coverage); err != nil {
		log.Errorf("Failed to write snapshot - %v", err)
	}
	if job.OutputDir != "" {
		if err := PersistArchive(filepath.Join(job.OutputDir, ArchiveFile), report.Tests); err != nil {
			return report, errors.Join(fmt.Errorf("failed to persist archive to %s", job.OutputDir), err)
		}
		if err := report.DumpFile(filepath.Join(job.OutputDir, ReportFile)); err != nil {
			return report, errors.Join(fmt.Errorf("failed to dump report to %s", job.OutputDir), err)
		}
	}

	log.Infof("Run done: %d executions, %d tests retained, coverage %v", dispatched, len(report.Tests), report.Coverage)
	return report, runErr
}

// RunID returns the id of the last run of the job, or an empty string if it never ran.
func (job *Job) RunID() string {
	return job.runID
}

// Export copies the output directory of the job to dst.
func (job *Job) Export(dst string) error {
	if job.OutputDir == "" {
		return errors.New("job has no output directory")
	}
	if err := copy.Copy(job.OutputDir, dst); err != nil {
		return errors.Join(fmt.Errorf("failed to export %s to %s", job.OutputDir, dst), err)
	}
	return nil
}

// pool creates the workers of the job, waiting for every remote worker to be ready.
func (job *Job) pool(ctx context.Context, registry *sut.Registry, log *logrus.Entry) (*scheduler.Pool, error) {
	policy, err := fault.NilPolicyByName(job.NilPolicy)
	if err != nil {
		return nil, err
	}

	var workers []*scheduler.Worker
	if job.Workers > 0 {
		classifier := fault.NewClassifier(policy, log.WithField("component", "classifier"))
		local := executor.NewLocal(registry, classifier, job.ExecutionBudget, job.Grace, log.WithField("worker", "local"))
		workers = append(workers, &scheduler.Worker{
			Name:     "local",
			Executor: local,
			Capacity: int64(job.Workers),
		})
	}

	for _, w := range job.RemoteWorkers {
		remote := executor.NewRemote(w.URL)
		remote.Healthcheck = w.Healthcheck

		log.Infof("Waiting for worker %s...", w.URL)
		status, err := remote.WaitReady(ctx)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("worker %s is not reachable", w.URL), err)
		}
		log.Debugf("Worker %s is ready, it served %d executions so far", w.URL, status.Executions)

		workers = append(workers, &scheduler.Worker{
			Name:     w.URL,
			Executor: remote,
			Capacity: max(w.Capacity, 1),
		})
	}

	pool, err := scheduler.NewPool(workers...)
	if err != nil {
		return nil, errors.Join(errors.New("failed to create worker pool"), err)
	}
	return pool, nil
}

type strategy interface {
	Generate(ctx context.Context, sub generator.Submitter) (int, error)
}

func (job *Job) generator(registry *sut.Registry, seed int64, log *logrus.Entry) (strategy, error) {
	config := job.Generator
	if config == (generator.Config{}) {
		config = generator.DefaultConfig()
	}
	builder := generator.NewBuilder(registry, config, rand.New(rand.NewSource(seed)))
	length := max(job.SequenceLength, 1)

	switch job.Strategy {
	case Batch:
		return &generator.Batch{
			Builder: builder,
			Length:  length,
			Log:     log.WithField("component", "generator"),
		}, nil
	case Incremental:
		splitter, err := generator.NewSplitter(builder.Slots(), length, max(job.CacheSize, 1))
		if err != nil {
			return nil, err
		}
		splitter.Immutable = registry.IsPrimitive
		return &generator.Incremental{
			Builder:  builder,
			Splitter: splitter,
			Log:      log.WithField("component", "generator"),
		}, nil
	}
	return nil, fmt.Errorf("%v is not a valid strategy", job.Strategy)
}
