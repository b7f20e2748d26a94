package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ExtractionSteps are the stages of one rule-extraction run, in order
var ExtractionSteps = []string{"load", "walk", "score", "select", "build", "persist"}

// ProgressIndicator renders a one-line progress bar for long-running work
type ProgressIndicator struct {
	mu           sync.Mutex
	out          io.Writer
	name         string
	total        int
	current      int
	startTime    time.Time
	showProgress bool
}

// NewProgressIndicator writes progress to out; pass io.Discard for quiet mode
func NewProgressIndicator(out io.Writer, name string, total int, showProgress bool) *ProgressIndicator {
	if out == nil {
		out = io.Discard
	}
	return &ProgressIndicator{
		out:          out,
		name:         name,
		total:        total,
		startTime:    time.Now(),
		showProgress: showProgress,
	}
}

// Update sets the current progress value and shows an optional message
func (pi *ProgressIndicator) Update(current int, message string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	pi.current = current
	if pi.showProgress {
		fmt.Fprint(pi.out, pi.render(message))
	}
}

// Finish completes the progress line with a message
func (pi *ProgressIndicator) Finish(message string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	duration := time.Since(pi.startTime)
	fmt.Fprintf(pi.out, "\r✅ %s: %s (%v)\n", pi.name, message, duration.Round(time.Millisecond))
}

// Fail marks the progress as failed
func (pi *ProgressIndicator) Fail(reason string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	duration := time.Since(pi.startTime)
	fmt.Fprintf(pi.out, "\r❌ %s failed: %s (%v)\n", pi.name, reason, duration.Round(time.Millisecond))
}

func (pi *ProgressIndicator) render(message string) string {
	var output strings.Builder

	// Clear line and return to beginning
	output.WriteString("\r\033[K")
	output.WriteString(pi.name)

	if pi.total > 0 {
		const barWidth = 20
		filled := barWidth * pi.current / pi.total
		output.WriteString(" [")
		output.WriteString(strings.Repeat("█", filled))
		output.WriteString(strings.Repeat("░", barWidth-filled))
		output.WriteString(fmt.Sprintf("] %d/%d", pi.current, pi.total))
	}

	if message != "" {
		output.WriteString(" - ")
		output.WriteString(message)
	}
	return output.String()
}

// StepLogger provides step-by-step progress logging for pipelines
type StepLogger struct {
	mu          sync.Mutex
	steps       []string
	currentStep int
	stepStart   time.Time
	startTime   time.Time
	stepTimes   []time.Duration
	progress    *ProgressIndicator
}

// NewStepLogger creates a step logger; out receives the progress bar
func NewStepLogger(out io.Writer, name string, steps []string) *StepLogger {
	return &StepLogger{
		steps:       steps,
		currentStep: -1,
		startTime:   time.Now(),
		stepTimes:   make([]time.Duration, len(steps)),
		progress:    NewProgressIndicator(out, name, len(steps), true),
	}
}

// StartStep closes the running step and begins stepName
func (sl *StepLogger) StartStep(stepName string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	stepIndex := -1
	for i, step := range sl.steps {
		if step == stepName {
			stepIndex = i
			break
		}
	}

	if stepIndex == -1 {
		log.Warn().Str("step", stepName).Msg("Unknown pipeline step")
		return
	}

	sl.completeLocked()
	sl.currentStep = stepIndex
	sl.stepStart = time.Now()
	sl.progress.Update(stepIndex+1, stepName)

	log.Debug().
		Str("step", stepName).
		Int("step_number", stepIndex+1).
		Int("total_steps", len(sl.steps)).
		Msg("Starting pipeline step")
}

// CompleteStep marks the current step as completed
func (sl *StepLogger) CompleteStep() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.completeLocked()
}

func (sl *StepLogger) completeLocked() {
	if sl.currentStep < 0 || sl.stepStart.IsZero() {
		return
	}
	d := time.Since(sl.stepStart)
	sl.stepTimes[sl.currentStep] += d
	sl.stepStart = time.Time{}

	log.Debug().
		Str("step", sl.steps[sl.currentStep]).
		Dur("duration", d).
		Msg("Pipeline step completed")
}

// StepDuration reports the recorded time of a finished step
func (sl *StepLogger) StepDuration(step string) time.Duration {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	for i, s := range sl.steps {
		if s == step {
			return sl.stepTimes[i]
		}
	}
	return 0
}

// Finish completes the step logger and logs a timing summary
func (sl *StepLogger) Finish() {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.completeLocked()
	totalDuration := time.Since(sl.startTime)
	sl.progress.Finish(fmt.Sprintf("All %d steps completed", len(sl.steps)))

	log.Info().
		Dur("total_duration", totalDuration).
		Msg("Pipeline completed - step timing summary:")

	for i, step := range sl.steps {
		percentage := 0.0
		if totalDuration > 0 {
			percentage = float64(sl.stepTimes[i]) / float64(totalDuration) * 100
		}
		log.Info().
			Str("step", step).
			Dur("duration", sl.stepTimes[i]).
			Float64("percentage", percentage).
			Msgf("  %d. %s", i+1, step)
	}
}

// Fail marks the step logger as failed
func (sl *StepLogger) Fail(reason string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.progress.Fail(reason)

	failed := "unknown"
	if sl.currentStep >= 0 {
		failed = sl.steps[sl.currentStep]
	}
	log.Error().
		Str("failed_step", failed).
		Int("completed_steps", sl.currentStep).
		Int("total_steps", len(sl.steps)).
		Str("reason", reason).
		Msg("Pipeline failed")
}
