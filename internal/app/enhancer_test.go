package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samvad-hq/report-enhancer/internal/config"
	"github.com/samvad-hq/report-enhancer/internal/domain"
	"github.com/samvad-hq/report-enhancer/internal/logger"
)

type fakeSource struct {
	connErr    error
	latestErrs []error
	latest     []domain.Report
	all        []domain.Report
	firsts     []int
	allArgs    [][2]int
}

func (f *fakeSource) TestConnection(context.Context) (string, error) {
	return "6.0.0", f.connErr
}

func (f *fakeSource) LatestReports(_ context.Context, first int) ([]domain.Report, error) {
	f.firsts = append(f.firsts, first)
	if len(f.latestErrs) > 0 {
		err := f.latestErrs[0]
		f.latestErrs = f.latestErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.latest, nil
}

func (f *fakeSource) AllReports(_ context.Context, batch, limit int) ([]domain.Report, error) {
	f.allArgs = append(f.allArgs, [2]int{batch, limit})
	return f.all, nil
}

type fakeBatcher struct {
	batches [][]domain.Report
	paced   []time.Duration
}

func (f *fakeBatcher) ProcessBatch(_ context.Context, reports []domain.Report) int {
	f.batches = append(f.batches, reports)
	return len(reports)
}

func (f *fakeBatcher) ProcessPaced(_ context.Context, reports []domain.Report, pause time.Duration) int {
	f.paced = append(f.paced, pause)
	return len(reports)
}

type fakeStore struct{ closed bool }

func (f *fakeStore) Close() error                    { f.closed = true; return nil }
func (f *fakeStore) SeenReport(string) (bool, error) { return false, nil }
func (f *fakeStore) MarkReport(string) error         { return nil }

func testConfig() *config.Config {
	return &config.Config{
		OpenCTIURL:        "http://opencti:8080",
		WaitTime:          time.Minute,
		ErrorBackoff:      2 * time.Minute,
		ReportsPerCycle:   20,
		MaxReportsOnStart: 50,
	}
}

// stopAfter returns a sleeper that records waits and cancels after n calls.
func stopAfter(n int, cancel context.CancelFunc, waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		if len(*waits) >= n {
			cancel()
			return context.Canceled
		}
		return nil
	}
}

func TestRunPollsAndBacksOffOnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		connErr:    errors.New("connection refused"),
		latestErrs: []error{errors.New("502"), nil},
		latest:     []domain.Report{{ID: "r1"}},
	}
	batcher := &fakeBatcher{}
	store := &fakeStore{}
	var waits []time.Duration

	e := &Enhancer{
		cfg:       testConfig(),
		reports:   src,
		processor: batcher,
		store:     store,
		log:       logger.NopLogger{},
		sleep:     stopAfter(2, cancel, &waits),
	}
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(waits) != 2 || waits[0] != 2*time.Minute || waits[1] != time.Minute {
		t.Fatalf("expected backoff then normal wait, got %v", waits)
	}
	if len(src.firsts) != 2 || src.firsts[0] != 20 {
		t.Fatalf("unexpected LatestReports calls %v", src.firsts)
	}
	if len(batcher.batches) != 1 || batcher.batches[0][0].ID != "r1" {
		t.Fatalf("expected one processed batch, got %v", batcher.batches)
	}
	if len(batcher.paced) != 0 || len(src.allArgs) != 0 {
		t.Fatalf("startup scan should be disabled")
	}
	if !store.closed {
		t.Fatalf("store should be closed when Run returns")
	}
}

func TestRunStartupScan(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.ProcessAllOnStart = true
	src := &fakeSource{all: []domain.Report{{ID: "old"}}}
	batcher := &fakeBatcher{}
	var waits []time.Duration

	e := &Enhancer{
		cfg:       cfg,
		reports:   src,
		processor: batcher,
		log:       logger.NopLogger{},
		sleep:     stopAfter(1, cancel, &waits),
	}
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(src.allArgs) != 1 || src.allArgs[0] != [2]int{100, 50} {
		t.Fatalf("unexpected AllReports calls %v", src.allArgs)
	}
	if len(batcher.paced) != 1 || batcher.paced[0] != 500*time.Millisecond {
		t.Fatalf("unexpected paced calls %v", batcher.paced)
	}
}

func TestRunExitsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{}
	e := &Enhancer{
		cfg:       testConfig(),
		reports:   src,
		processor: &fakeBatcher{},
		log:       logger.NopLogger{},
		sleep: func(context.Context, time.Duration) error {
			t.Fatalf("sleep should not be called")
			return nil
		},
	}
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(src.firsts) != 0 {
		t.Fatalf("no poll expected after cancellation")
	}
}

func TestRunRequiresInitialization(t *testing.T) {
	var e *Enhancer
	if err := e.Run(context.Background()); err == nil {
		t.Fatalf("expected error for nil enhancer")
	}
}

func TestNewPipelineRejectsMissingSitesFile(t *testing.T) {
	cfg := testConfig()
	cfg.SitesFile = t.TempDir() + "/missing.yaml"
	if _, err := NewPipeline(cfg, nil); err == nil {
		t.Fatalf("expected error for missing sites file")
	}
}
