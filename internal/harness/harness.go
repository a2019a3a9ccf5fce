package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"arcevo/internal/evo"
)

const (
	// DefaultRacePattern matches the Go race detector report.
	DefaultRacePattern = `WARNING: DATA RACE`
	// DefaultDeadlockPattern matches the Go runtime deadlock and the
	// ConTest-style lock-up report.
	DefaultDeadlockPattern = `all goroutines are asleep - deadlock!|(?i:deadlock detected)`

	// RunIndexEnv is set to the 0-based run number for every stress run.
	RunIndexEnv = "ARCEVO_RUN_INDEX"

	waitDelay = time.Second
)

// Outcome is the single category a stress run is counted in.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeDatarace Outcome = "datarace"
	OutcomeDeadlock Outcome = "deadlock"
	OutcomeError    Outcome = "error"
)

type Config struct {
	// Command is the stress test, run in Dir once per run.
	Command []string
	Dir     string
	Runs    int
	Timeout time.Duration
	// Parallelism bounds concurrent runs; 0 means one at a time.
	Parallelism     int
	RacePattern     string
	DeadlockPattern string
}

// CommandHarness is a TestHarness that classifies repeated runs of a test
// command from their deadline, output and exit status.
type CommandHarness struct {
	cfg      Config
	race     *regexp.Regexp
	deadlock *regexp.Regexp

	mu      sync.Mutex
	results evo.Outcomes
}

var _ evo.TestHarness = (*CommandHarness)(nil)

func New(cfg Config) (*CommandHarness, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("test command is required")
	}
	if cfg.Runs <= 0 {
		return nil, fmt.Errorf("test runs must be > 0")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("test timeout must be >= 0")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.RacePattern == "" {
		cfg.RacePattern = DefaultRacePattern
	}
	if cfg.DeadlockPattern == "" {
		cfg.DeadlockPattern = DefaultDeadlockPattern
	}
	race, err := regexp.Compile(cfg.RacePattern)
	if err != nil {
		return nil, fmt.Errorf("compile race pattern: %w", err)
	}
	deadlock, err := regexp.Compile(cfg.DeadlockPattern)
	if err != nil {
		return nil, fmt.Errorf("compile deadlock pattern: %w", err)
	}
	return &CommandHarness{cfg: cfg, race: race, deadlock: deadlock}, nil
}

// BeginTesting runs the configured battery and accumulates one outcome per
// run. A run that cannot be started fails the whole battery.
func (h *CommandHarness) BeginTesting(ctx context.Context) error {
	logger := klog.FromContext(ctx)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Parallelism)
	for i := 0; i < h.cfg.Runs; i++ {
		run := i
		g.Go(func() error {
			outcome, err := h.runOnce(gctx, run)
			if err != nil {
				return err
			}
			h.record(outcome)
			logger.V(4).Info("Stress run finished", "run", run, "outcome", outcome)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	results := h.Results()
	logger.V(3).Info("Test battery finished",
		"runs", h.cfg.Runs,
		"successes", results.Successes,
		"timeouts", results.Timeouts,
		"dataraces", results.Dataraces,
		"deadlocks", results.Deadlocks,
		"errors", results.Errors,
		"elapsed", time.Since(start),
	)
	return nil
}

func (h *CommandHarness) Results() evo.Outcomes {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.results
}

func (h *CommandHarness) ClearResults() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = evo.Outcomes{}
}

func (h *CommandHarness) runOnce(ctx context.Context, run int) (Outcome, error) {
	runCtx := ctx
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, h.cfg.Command[0], h.cfg.Command[1:]...)
	cmd.Dir = h.cfg.Dir
	cmd.Env = append(os.Environ(), RunIndexEnv+"="+strconv.Itoa(run))
	cmd.WaitDelay = waitDelay
	output, err := cmd.CombinedOutput()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	var exitErr *exec.ExitError
	if err != nil && !timedOut && !errors.As(err, &exitErr) {
		return "", fmt.Errorf("start stress run %d: %w", run, err)
	}
	return Classify(output, err != nil, timedOut, h.race, h.deadlock), nil
}

func (h *CommandHarness) record(outcome Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch outcome {
	case OutcomeSuccess:
		h.results.Successes++
	case OutcomeTimeout:
		h.results.Timeouts++
	case OutcomeDatarace:
		h.results.Dataraces++
	case OutcomeDeadlock:
		h.results.Deadlocks++
	default:
		h.results.Errors++
	}
}

// Classify maps one run to exactly one outcome. A run past its deadline is a
// timeout whatever it printed; bug reports take precedence over the exit
// status.
func Classify(output []byte, failed, timedOut bool, race, deadlock *regexp.Regexp) Outcome {
	switch {
	case timedOut:
		return OutcomeTimeout
	case race != nil && race.Match(output):
		return OutcomeDatarace
	case deadlock != nil && deadlock.Match(output):
		return OutcomeDeadlock
	case failed:
		return OutcomeError
	default:
		return OutcomeSuccess
	}
}
