package solver

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// fakeSolver runs script through sh; the time limit flag and instance path
// arrive as $1 and $2.
func fakeSolver(t *testing.T, script string, tune func(*Config)) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake solver scripts need a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	cfg := Config{
		Binary:             "sh",
		Args:               []string{"-c", script, "fake-solver"},
		TimeLimitFlag:      "--time-limit=%d",
		TotalTimeLimit:     10 * time.Second,
		IdleTimeLimit:      5 * time.Second,
		CheckpointInterval: 50 * time.Millisecond,
		KillGrace:          200 * time.Millisecond,
	}
	if tune != nil {
		tune(&cfg)
	}
	return NewRunner(cfg, nil)
}

type checkpoints struct {
	all []Progress
}

func (c *checkpoints) record(_ context.Context, p Progress) error {
	c.all = append(c.all, p)
	return nil
}

func (c *checkpoints) improved() []int {
	var out []int
	for _, p := range c.all {
		if p.Improved && p.Objective != nil {
			out = append(out, *p.Objective)
		}
	}
	return out
}

func TestRunnerStreamsCompleteRun(t *testing.T) {
	runner := fakeSolver(t, `echo "c args $1 $2"; echo "o 10"; echo "o 4"; echo "s OPTIMUM FOUND"; echo "v x1 -x2"; echo "v x3"`, nil)

	var cps checkpoints
	outcome, err := runner.Run(context.Background(), "/tmp/instance.opb", cps.record)
	require.NoError(t, err)

	assert.Equal(t, StopExited, outcome.StopReason)
	assert.False(t, outcome.TimedOut())
	assert.Equal(t, StatusOptimum, outcome.Status)
	require.NotNil(t, outcome.Objective)
	assert.Equal(t, 4, *outcome.Objective)
	assert.True(t, outcome.HasAssignment)
	assert.Equal(t, []int{1, -2, 3}, outcome.Literals)
	assert.Contains(t, outcome.Transcript, "c args --time-limit=10 /tmp/instance.opb")
	assert.Equal(t, []int{10, 4}, cps.improved())
	assert.Equal(t, 0, outcome.ExitCode)
}

func TestRunnerAssemblesPartialLines(t *testing.T) {
	runner := fakeSolver(t, `printf 'o 1'; sleep 0.2; printf '2\ns SATIS'; sleep 0.2; printf 'FIABLE\nv x1 -x2'`, nil)

	outcome, err := runner.Run(context.Background(), "instance.opb", nil)
	require.NoError(t, err)
	require.NotNil(t, outcome.Objective)
	assert.Equal(t, 12, *outcome.Objective)
	assert.Equal(t, StatusSatisfiable, outcome.Status)
	assert.Equal(t, []int{1, -2}, outcome.Literals)
}

func TestRunnerIdleTimeoutStopsSolver(t *testing.T) {
	runner := fakeSolver(t, `echo "o 7"; sleep 30`, func(cfg *Config) {
		cfg.IdleTimeLimit = 300 * time.Millisecond
	})

	start := time.Now()
	outcome, err := runner.Run(context.Background(), "instance.opb", nil)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StopIdle, outcome.StopReason)
	assert.True(t, outcome.TimedOut())
	require.NotNil(t, outcome.Objective)
	assert.Equal(t, 7, *outcome.Objective)
	assert.Equal(t, StatusNone, outcome.Status)
	assert.False(t, outcome.HasAssignment)
}

func TestRunnerIdleTimeoutDropsTruncatedAssignment(t *testing.T) {
	runner := fakeSolver(t, `echo "o 5"; echo "s SATISFIABLE"; printf 'v x1 -x'; sleep 30`, func(cfg *Config) {
		cfg.IdleTimeLimit = 300 * time.Millisecond
	})

	outcome, err := runner.Run(context.Background(), "instance.opb", nil)
	require.NoError(t, err)
	assert.Equal(t, StopIdle, outcome.StopReason)
	assert.True(t, outcome.Stopped())
	assert.Equal(t, StatusSatisfiable, outcome.Status)
	require.NotNil(t, outcome.Objective)
	assert.Equal(t, 5, *outcome.Objective)
	assert.False(t, outcome.HasAssignment)
	assert.Empty(t, outcome.Literals)
	assert.True(t, strings.HasSuffix(outcome.Transcript, "v x1 -x"))
}

func TestRunnerImprovementsResetIdleTimer(t *testing.T) {
	runner := fakeSolver(t, `for i in 9 8 7 6 5; do echo "o $i"; sleep 0.1; done; echo "s OPTIMUM FOUND"; echo "v -x1"`, func(cfg *Config) {
		cfg.IdleTimeLimit = 400 * time.Millisecond
	})

	outcome, err := runner.Run(context.Background(), "instance.opb", nil)
	require.NoError(t, err)
	assert.Equal(t, StopExited, outcome.StopReason)
	assert.Equal(t, StatusOptimum, outcome.Status)
	assert.Equal(t, 5, *outcome.Objective)
}

func TestRunnerTotalTimeout(t *testing.T) {
	runner := fakeSolver(t, `i=100; while true; do echo "o $i"; i=$((i-1)); sleep 0.05; done`, func(cfg *Config) {
		cfg.TotalTimeLimit = 400 * time.Millisecond
		cfg.IdleTimeLimit = 5 * time.Second
	})

	start := time.Now()
	outcome, err := runner.Run(context.Background(), "instance.opb", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StopTotal, outcome.StopReason)
	require.NotNil(t, outcome.Objective)
	assert.Less(t, *outcome.Objective, 100)
}

func TestRunnerKillsSolverIgnoringTerm(t *testing.T) {
	runner := fakeSolver(t, `trap '' TERM; echo "o 3"; sleep 30`, func(cfg *Config) {
		cfg.IdleTimeLimit = 200 * time.Millisecond
	})

	start := time.Now()
	outcome, err := runner.Run(context.Background(), "instance.opb", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StopIdle, outcome.StopReason)
	assert.Equal(t, 3, *outcome.Objective)
}

func TestRunnerCheckpointsTranscriptWithoutImprovement(t *testing.T) {
	runner := fakeSolver(t, `echo "c still searching"; sleep 0.4; echo "s UNKNOWN"`, nil)

	var cps checkpoints
	outcome, err := runner.Run(context.Background(), "instance.opb", cps.record)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, outcome.Status)

	require.NotEmpty(t, cps.all)
	first := cps.all[0]
	assert.False(t, first.Improved)
	assert.True(t, strings.HasPrefix(first.Transcript, "c still searching"))
	assert.Contains(t, cps.all[len(cps.all)-1].Transcript, "s UNKNOWN")
}

func TestRunnerCancellationFinalizes(t *testing.T) {
	runner := fakeSolver(t, `echo "o 2"; sleep 30`, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	outcome, err := runner.Run(ctx, "instance.opb", nil)
	require.NoError(t, err)
	assert.Equal(t, StopCancelled, outcome.StopReason)
	assert.Equal(t, 2, *outcome.Objective)
}

func TestRunnerLaunchFailure(t *testing.T) {
	runner := NewRunner(Config{Binary: "/nonexistent/pbo-solver"}, nil)
	_, err := runner.Run(context.Background(), "instance.opb", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrSolverProcess)
}

func TestRunnerArgs(t *testing.T) {
	runner := NewRunner(Config{Binary: "clasp", Args: []string{"-t8"}, TimeLimitFlag: "--time-limit=%d", TotalTimeLimit: 90500 * time.Millisecond}, nil)
	assert.Equal(t, []string{"-t8", "--time-limit=91", "run.opb"}, runner.Args("run.opb"))

	runner = NewRunner(Config{Binary: "clasp", TimeLimitFlag: "--time-limit=", TotalTimeLimit: time.Minute}, nil)
	assert.Equal(t, []string{"--time-limit=60", "run.opb"}, runner.Args("run.opb"))

	runner = NewRunner(Config{Binary: "clasp"}, nil)
	assert.Equal(t, []string{"run.opb"}, runner.Args("run.opb"))
}
