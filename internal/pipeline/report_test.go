package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-vision/internal/model"
)

func TestBuildReport_NonNilArrays(t *testing.T) {
	st := newState("a.jpg", testImage())
	report := BuildReport(st)

	assert.NotNil(t, report.Findings)
	assert.NotNil(t, report.AffectedComponents)
	assert.NotNil(t, report.Recommendations)
	assert.NotNil(t, report.SecondarySuggestions)
	assert.Nil(t, report.SkipReason)
	assert.False(t, report.Skipped)
}

func TestBuildReport_SkipReasonOnlyWhenSkipped(t *testing.T) {
	st := newState("a.jpg", testImage())
	st.FilterResult = &model.FilterVerdict{IsValid: false, Reason: "not a vehicle"}
	require.NoError(t, st.advance(PhaseClassified))
	require.NoError(t, st.advance(PhaseInvalid))
	require.NoError(t, st.advance(PhaseSkipped))

	report := BuildReport(st)
	assert.True(t, report.Skipped)
	require.NotNil(t, report.SkipReason)
	assert.Equal(t, "not a vehicle", *report.SkipReason)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"skip_reason":"not a vehicle"`)
}

func TestBuildReport_Totals(t *testing.T) {
	st := newState("a.jpg", testImage())
	st.Usage = model.TokenUsage{InputTokens: 900, OutputTokens: 100, Cost: 0.42}

	report := BuildReport(st)
	assert.Equal(t, 1000, report.TotalTokens)
	assert.InDelta(t, 0.42, report.TotalCost, 1e-9)
}
