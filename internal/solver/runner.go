package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

const (
	readChunkSize = 4096
	chunkBuffer   = 64
)

// Config describes the external solver and its time budget.
type Config struct {
	Binary string
	Args   []string
	// TimeLimitFlag is appended with the total limit in seconds, e.g. "--time-limit=%d".
	TimeLimitFlag      string
	TotalTimeLimit     time.Duration
	IdleTimeLimit      time.Duration
	CheckpointInterval time.Duration
	KillGrace          time.Duration
}

// StopReason records why the solver process ended.
type StopReason string

const (
	StopExited    StopReason = "exited"
	StopIdle      StopReason = "idle timeout"
	StopTotal     StopReason = "total timeout"
	StopCancelled StopReason = "cancelled"
)

// Progress is handed to the checkpoint callback while the solver runs.
type Progress struct {
	Objective  *int
	Status     Status
	Transcript string
	Improved   bool
	Elapsed    time.Duration
}

// CheckpointFunc persists intermediate progress. Errors are logged only.
type CheckpointFunc func(ctx context.Context, p Progress) error

// Outcome is the final state of a solver invocation.
type Outcome struct {
	Result
	Transcript string
	Stderr     string
	StopReason StopReason
	ExitCode   int
	Elapsed    time.Duration
}

// TimedOut reports whether the process was stopped by a time limit.
func (o *Outcome) TimedOut() bool {
	return o.StopReason == StopIdle || o.StopReason == StopTotal
}

// Stopped reports whether the process was terminated rather than exiting on
// its own. Its transcript may end mid-line.
func (o *Outcome) Stopped() bool {
	return o.StopReason != StopExited
}

// Runner launches the solver and streams its output.
type Runner struct {
	cfg    Config
	logger *zap.Logger
}

// NewRunner constructs a Runner, defaulting unset intervals.
func NewRunner(cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = time.Second
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 2 * time.Second
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Args returns the argument list used for an instance file.
func (r *Runner) Args(instancePath string) []string {
	args := append([]string(nil), r.cfg.Args...)
	if r.cfg.TimeLimitFlag != "" && r.cfg.TotalTimeLimit > 0 {
		seconds := int(math.Ceil(r.cfg.TotalTimeLimit.Seconds()))
		if strings.Contains(r.cfg.TimeLimitFlag, "%d") {
			args = append(args, fmt.Sprintf(r.cfg.TimeLimitFlag, seconds))
		} else {
			args = append(args, r.cfg.TimeLimitFlag+strconv.Itoa(seconds))
		}
	}
	return append(args, instancePath)
}

// Banner describes the time policy for the scheduler log.
func (r *Runner) Banner() string {
	return fmt.Sprintf("Solving with a time limit of %d seconds of not improving the solution or a total time limit of %d seconds\n",
		int(r.cfg.IdleTimeLimit.Seconds()), int(r.cfg.TotalTimeLimit.Seconds()))
}

// Run executes the solver on instancePath. Time limits and cancellation stop
// the process but are not errors; only a failure to launch or an unreadable
// transcript from a solver that exited on its own is.
func (r *Runner) Run(ctx context.Context, instancePath string, checkpoint CheckpointFunc) (*Outcome, error) {
	log := r.logger.Sugar()
	persistCtx := context.WithoutCancel(ctx)

	cmd := exec.Command(r.cfg.Binary, r.Args(instancePath)...)
	setupCommand(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSolverProcess.Code, appErrors.ErrSolverProcess.Status, "open solver stdout")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSolverProcess.Code, appErrors.ErrSolverProcess.Status, "open solver stderr")
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSolverProcess.Code, appErrors.ErrSolverProcess.Status,
			fmt.Sprintf("start solver %q", r.cfg.Binary))
	}
	log.Infow("solver started", "binary", r.cfg.Binary, "pid", cmd.Process.Pid, "instance", instancePath)

	chunks := make(chan []byte, chunkBuffer)
	var stderr bytes.Buffer
	var pumps errgroup.Group
	pumps.Go(func() error {
		defer close(chunks)
		return pump(stdout, chunks)
	})
	pumps.Go(func() error {
		_, err := io.Copy(&stderr, stderrPipe)
		if errors.Is(err, os.ErrClosed) {
			return nil
		}
		return err
	})

	var (
		transcript strings.Builder
		live       Result
		asm        lineAssembler
		dirty      bool
		stopReason = StopExited
		stopping   bool
		grace      <-chan time.Time
	)

	save := func(improved bool) {
		dirty = false
		if checkpoint == nil {
			return
		}
		p := Progress{
			Objective:  live.Objective,
			Status:     live.Status,
			Transcript: transcript.String(),
			Improved:   improved,
			Elapsed:    time.Since(start),
		}
		if err := checkpoint(persistCtx, p); err != nil {
			log.Warnw("solver checkpoint failed", "error", err)
		}
	}

	totalTimer, totalC := newTimer(r.cfg.TotalTimeLimit)
	defer stopTimer(totalTimer)
	idleTimer, idleC := newTimer(r.cfg.IdleTimeLimit)
	defer stopTimer(idleTimer)
	ticker := time.NewTicker(r.cfg.CheckpointInterval)
	defer ticker.Stop()
	done := ctx.Done()

	stop := func(reason StopReason) {
		if stopping {
			return
		}
		stopping = true
		stopReason = reason
		totalC, idleC, done = nil, nil, nil
		log.Infow("stopping solver", "reason", string(reason), "elapsed", time.Since(start).String())
		if err := terminateGroup(cmd); err != nil {
			log.Warnw("terminate solver", "error", err)
		}
		grace = time.After(r.cfg.KillGrace)
	}

loop:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}
			transcript.Write(chunk)
			dirty = true
			for _, text := range asm.feed(chunk) {
				line, err := ParseLine(text)
				if err != nil {
					log.Warnw("unparseable solver line", "line", text, "error", err)
					continue
				}
				live.Apply(line)
				if line.Kind == LineObjective {
					if idleTimer != nil && !stopping {
						resetTimer(idleTimer, r.cfg.IdleTimeLimit)
					}
					save(true)
				}
			}
		case <-ticker.C:
			if dirty {
				save(false)
			}
		case <-idleC:
			stop(StopIdle)
		case <-totalC:
			stop(StopTotal)
		case <-done:
			stop(StopCancelled)
		case <-grace:
			grace = nil
			log.Warnw("solver ignored SIGTERM, killing process group", "pid", cmd.Process.Pid)
			if err := killGroup(cmd); err != nil {
				log.Warnw("kill solver", "error", err)
			}
		}
	}

	if rest, ok := asm.flush(); ok && !stopping {
		if line, err := ParseLine(rest); err == nil {
			live.Apply(line)
		}
	}
	if err := pumps.Wait(); err != nil {
		log.Warnw("solver output pump", "error", err)
	}
	waitErr := cmd.Wait()

	outcome := &Outcome{
		Transcript: transcript.String(),
		Stderr:     stderr.String(),
		StopReason: stopReason,
		ExitCode:   cmd.ProcessState.ExitCode(),
		Elapsed:    time.Since(start),
	}
	if waitErr != nil && !stopping {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return outcome, appErrors.Wrap(waitErr, appErrors.ErrSolverProcess.Code, appErrors.ErrSolverProcess.Status, "wait for solver")
		}
	}
	if dirty {
		save(false)
	}

	if stopping {
		outcome.Result = ParseStoppedTranscript(outcome.Transcript)
	} else {
		result, err := ParseTranscript(outcome.Transcript)
		if err != nil {
			return outcome, err
		}
		outcome.Result = result
	}
	log.Infow("solver finished",
		"reason", string(stopReason),
		"status", string(outcome.Status),
		"exit_code", outcome.ExitCode,
		"elapsed", outcome.Elapsed.String(),
	)
	return outcome, nil
}

func pump(r io.Reader, out chan<- []byte) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- chunk
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// lineAssembler joins raw output chunks into complete lines.
type lineAssembler struct {
	pending []byte
}

func (a *lineAssembler) feed(chunk []byte) []string {
	var lines []string
	for _, b := range chunk {
		if b == '\n' {
			lines = append(lines, string(a.pending))
			a.pending = a.pending[:0]
			continue
		}
		a.pending = append(a.pending, b)
	}
	return lines
}

func (a *lineAssembler) flush() (string, bool) {
	if len(a.pending) == 0 {
		return "", false
	}
	rest := string(a.pending)
	a.pending = nil
	return rest, true
}

// newTimer returns a nil timer and channel for non-positive durations.
func newTimer(d time.Duration) (*time.Timer, <-chan time.Time) {
	if d <= 0 {
		return nil, nil
	}
	t := time.NewTimer(d)
	return t, t.C
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
