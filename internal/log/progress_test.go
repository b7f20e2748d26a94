package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressIndicator_Render(t *testing.T) {
	var buf bytes.Buffer
	pi := NewProgressIndicator(&buf, "extract", 4, true)

	pi.Update(2, "score")
	assert.Contains(t, buf.String(), "extract [██████████░░░░░░░░░░] 2/4 - score")

	buf.Reset()
	pi.Fail("malformed tree")
	assert.Contains(t, buf.String(), "❌ extract failed: malformed tree")
}

func TestStepLogger_RecordsStepTimes(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStepLogger(&buf, "extract", ExtractionSteps)

	sl.StartStep("load")
	time.Sleep(5 * time.Millisecond)
	sl.StartStep("walk")
	sl.StartStep("not-a-step")
	sl.Finish()

	assert.GreaterOrEqual(t, sl.StepDuration("load"), 5*time.Millisecond)
	assert.Equal(t, time.Duration(0), sl.StepDuration("persist"))
	assert.Equal(t, time.Duration(0), sl.StepDuration("missing"))
	assert.Contains(t, buf.String(), "All 6 steps completed")
}

func TestStepLogger_QuietWriter(t *testing.T) {
	sl := NewStepLogger(nil, "extract", ExtractionSteps)
	sl.StartStep("load")
	sl.Fail("boom")
}
