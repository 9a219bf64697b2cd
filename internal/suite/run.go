package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/espressif/eim-e2e/internal/config"
	clierrors "github.com/espressif/eim-e2e/internal/errors"
	"github.com/espressif/eim-e2e/internal/harness"
	"github.com/espressif/eim-e2e/internal/observability"
	"github.com/espressif/eim-e2e/internal/transcript"
)

// failureTailLines is how much of the transcript a failed step reports.
const failureTailLines = 20

// Outcome of a step or case.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Name     string        `json:"name"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Steps      []StepResult  `json:"steps"`
	Duration   time.Duration `json:"duration"`
	Transcript string        `json:"transcript,omitempty"`
	// FailureTail holds the last output lines of the failing step.
	FailureTail []string `json:"failureTail,omitempty"`

	err error
}

// Passed reports whether every step passed.
func (c CaseResult) Passed() bool {
	return c.Outcome == OutcomePassed
}

// Err is the error that failed the case.
func (c CaseResult) Err() error {
	return c.err
}

// Report is the outcome of a run.
type Report struct {
	RunID     string        `json:"runId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Cases     []CaseResult  `json:"cases"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
}

// Err returns a SuiteFailed error when any case failed.
func (r Report) Err() error {
	if r.Failed == 0 {
		return nil
	}

	return clierrors.SuiteFailed(r.Failed, len(r.Cases))
}

// Reporter receives progress while a run executes.
type Reporter interface {
	CaseStarted(c Case)
	StepFinished(c Case, step StepResult)
	CaseFinished(result CaseResult)
}

type nopReporter struct{}

func (nopReporter) CaseStarted(Case) {}

func (nopReporter) StepFinished(Case, StepResult) {}

func (nopReporter) CaseFinished(CaseResult) {}

// Runner plans and executes cases.
type Runner struct {
	opts     Options
	cfg      *config.Config
	logger   *slog.Logger
	goos     string
	runID    string
	timeouts Timeouts
	reporter Reporter
	tracer   trace.Tracer
}

// New creates a Runner.
func New(opts Options) *Runner {
	rn := &Runner{
		opts:     opts,
		cfg:      opts.Config,
		logger:   opts.Logger,
		goos:     goosOr(opts.GOOS),
		runID:    opts.RunID,
		timeouts: opts.Timeouts.withDefaults(),
		reporter: opts.Reporter,
		tracer:   observability.Tracer("github.com/espressif/eim-e2e/internal/suite"),
	}

	if rn.logger == nil {
		rn.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if rn.runID == "" {
		rn.runID = strings.SplitN(uuid.NewString(), "-", 2)[0]
	}

	if rn.reporter == nil {
		rn.reporter = nopReporter{}
	}

	rn.logger = rn.logger.With(slog.String("component", "suite"), slog.String("run.id", rn.runID))

	return rn
}

// RunID identifies this run's transcripts.
func (rn *Runner) RunID() string {
	return rn.runID
}

// Run executes cases in order. A failing case does not stop the run.
func (rn *Runner) Run(ctx context.Context, cases []Case) Report {
	report := Report{RunID: rn.runID, StartedAt: time.Now().UTC()}

	rn.pruneTranscripts()

	rn.logger.Info(
		"suite started",
		slog.String("event.type", "suite.start"),
		slog.Int("suite.cases", len(cases)),
		slog.String("suite.goos", rn.goos),
	)

	for _, c := range cases {
		if ctx.Err() != nil {
			break
		}

		result := rn.RunCase(ctx, c)
		report.Cases = append(report.Cases, result)

		if result.Passed() {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	report.Duration = time.Since(report.StartedAt)

	rn.logger.Info(
		"suite finished",
		slog.String("event.type", "suite.finish"),
		slog.Int("suite.passed", report.Passed),
		slog.Int("suite.failed", report.Failed),
		slog.Duration("suite.duration", report.Duration),
	)

	return report
}

// RunCase executes the steps of one case within its time budget.
func (rn *Runner) RunCase(ctx context.Context, c Case) (result CaseResult) {
	ctx, span := rn.tracer.Start(ctx, "suite.case", trace.WithAttributes(
		attribute.String("case.id", c.ID),
		attribute.String("case.type", string(c.Type)),
		attribute.String("case.name", c.Name),
	))
	defer func() {
		if result.err != nil {
			span.RecordError(result.err)
			span.SetStatus(codes.Error, result.err.Error())
		}

		span.End()
	}()

	logger := rn.logger.With(slog.String("case.id", c.ID), slog.String("case.type", string(c.Type)))
	logger.Info("case started", slog.String("event.type", "suite.case.start"), slog.String("case.name", c.Name))
	rn.reporter.CaseStarted(c)

	start := time.Now()
	result = CaseResult{ID: c.ID, Name: c.Name, Type: string(c.Type), Outcome: OutcomePassed}

	rec := rn.openTranscript(logger, c)
	if rec != nil {
		result.Transcript = rec.Dir()
	}

	folderExisted := c.InstallFolder != "" && pathExists(c.InstallFolder)

	caseCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	for _, step := range c.Steps {
		if result.err != nil {
			sr := StepResult{Name: step.Name, Outcome: OutcomeSkipped}
			result.Steps = append(result.Steps, sr)
			rn.reporter.StepFinished(c, sr)

			continue
		}

		sr, err := rn.runStep(caseCtx, logger, c, step, rec)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = clierrors.CaseTimedOut(c.ID, c.Timeout)
				sr.Error = err.Error()
			}

			result.err = err
			result.Outcome = OutcomeFailed
			result.Error = fmt.Sprintf("%s: %s", step.Name, sr.Error)

			if rec != nil {
				result.FailureTail = rec.Tail(failureTailLines)
			}
		}

		result.Steps = append(result.Steps, sr)
		rn.reporter.StepFinished(c, sr)
	}

	if rec != nil {
		if err := rec.Close(result.Outcome); err != nil {
			logger.Warn("failed to close transcript", slog.String("error", err.Error()))
		}
	}

	rn.cleanup(logger, c, folderExisted)

	result.Duration = time.Since(start)

	logger.Info(
		"case finished",
		slog.String("event.type", "suite.case.finish"),
		slog.String("case.outcome", result.Outcome),
		slog.Duration("case.duration", result.Duration),
	)
	rn.reporter.CaseFinished(result)

	return result
}

func (rn *Runner) runStep(ctx context.Context, logger *slog.Logger, c Case, step Step, rec *transcript.Recorder) (sr StepResult, err error) {
	ctx, span := rn.tracer.Start(ctx, "suite.step", trace.WithAttributes(attribute.String("step.name", step.Name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	start := time.Now()
	failed := false

	opts := harness.Options{
		Logger:      logger,
		Spawner:     rn.opts.Spawner,
		Shell:       rn.opts.Shell,
		Cols:        rn.cfg.Cols(),
		Rows:        rn.cfg.Rows(),
		StartGrace:  rn.cfg.StartGrace(),
		StopTimeout: rn.cfg.StopTimeout(),
		BeforeReset: func(out string) {
			if failed {
				logger.Info(
					"Terminal output on failure",
					slog.String("event.type", "suite.step.failure_output"),
					slog.String("step.name", step.Name),
					slog.String("harness.output", out),
				)
			}
		},
	}

	if rec != nil {
		opts.OnOutput = rec.Output
		opts.OnInput = rec.Input
	}

	h := harness.New(opts)

	err = runGuarded(ctx, step.Run, &Run{
		Harness:  h,
		Config:   rn.cfg,
		Logger:   logger,
		Case:     c,
		GOOS:     rn.goos,
		Timeouts: rn.timeouts,
	})
	failed = err != nil

	// Stop must run after a timed-out step too.
	if stopErr := h.Stop(context.WithoutCancel(ctx), rn.cfg.StopTimeout()); stopErr != nil {
		logger.Warn("failed to stop harness", slog.String("error", stopErr.Error()))
	}

	sr = StepResult{Name: step.Name, Outcome: OutcomePassed, Duration: time.Since(start)}
	if err != nil {
		sr.Outcome = OutcomeFailed
		sr.Error = err.Error()

		logger.Error(
			"step failed",
			slog.String("event.type", "suite.step.fail"),
			slog.String("step.name", step.Name),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("step passed", slog.String("event.type", "suite.step.pass"), slog.String("step.name", step.Name))
	}

	return sr, err
}

// runGuarded turns a panicking step into a failed step.
func runGuarded(ctx context.Context, fn StepFunc, r *Run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step panicked: %v", p)
		}
	}()

	return fn(ctx, r)
}

func (rn *Runner) openTranscript(logger *slog.Logger, c Case) *transcript.Recorder {
	rec, err := transcript.Open(transcript.Options{
		Root:     rn.cfg.TranscriptDir(),
		RunID:    rn.runID,
		CaseID:   c.ID,
		CaseName: c.Name,
	})
	if err != nil {
		logger.Warn("transcript disabled for case", slog.String("error", err.Error()))
		return nil
	}

	return rec
}

func (rn *Runner) pruneTranscripts() {
	removed, err := transcript.Prune(rn.cfg.TranscriptDir(), time.Now().Add(-transcript.DefaultRetention()))
	if err != nil {
		rn.logger.Warn("failed to prune transcripts", slog.String("error", err.Error()))
		return
	}

	if removed > 0 {
		rn.logger.Debug("pruned transcripts", slog.Int("transcripts.removed", removed))
	}
}

func (rn *Runner) cleanup(logger *slog.Logger, c Case, folderExisted bool) {
	if !rn.cfg.Cleanup() || c.InstallFolder == "" || folderExisted {
		return
	}

	if err := os.RemoveAll(c.InstallFolder); err != nil {
		logger.Warn(
			"failed to remove install folder",
			slog.String("case.install_folder", c.InstallFolder),
			slog.String("error", err.Error()),
		)

		return
	}

	logger.Info(
		"removed install folder",
		slog.String("event.type", "suite.case.cleanup"),
		slog.String("case.install_folder", c.InstallFolder),
	)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
