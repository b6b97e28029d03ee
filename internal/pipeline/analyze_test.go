package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-vision/internal/model"
)

func threeChecks() []model.ChecklistItem {
	return []model.ChecklistItem{
		{ID: "a", Component: "Front Bumper", Cue: "cracked bumper", CostEstimate: "$500", SeverityHint: model.SeverityModerate},
		{ID: "b", Component: "Hood", Cue: "buckled hood", CostEstimate: "$900"},
		{ID: "c", Component: "Headlights", Cue: "shattered lens", CostEstimate: "$300"},
	}
}

func TestMergeFindings_PositionalOrder(t *testing.T) {
	items := []analyzeItem{
		{Present: true, Observation: "cracked", Severity: "severe", Confidence: "high", EstimatedCost: "$600"},
		{Present: false, Observation: "fine", Confidence: "medium"},
		{Present: true, Observation: "broken", Severity: "MINOR", Confidence: "low"},
	}

	findings := mergeFindings(threeChecks(), items)
	require.Len(t, findings, 3)

	assert.Equal(t, "a", findings[0].CheckID)
	assert.Equal(t, model.SeveritySevere, findings[0].Severity)
	assert.Equal(t, model.ConfidenceHigh, findings[0].Confidence)
	assert.Equal(t, "$600", findings[0].EstimatedCost)

	assert.Equal(t, "b", findings[1].CheckID)
	assert.False(t, findings[1].Present)
	assert.Empty(t, findings[1].Severity)

	// Missing cost on a present finding falls back to the checklist estimate.
	assert.Equal(t, "$300", findings[2].EstimatedCost)
	assert.Equal(t, model.ConfidenceLow, findings[2].Confidence)
}

func TestMergeFindings_HonorsItemNumbers(t *testing.T) {
	items := []analyzeItem{
		{Item: 3, Present: true, Observation: "lens broken", Severity: "MINOR", Confidence: "HIGH"},
		{Item: 1, Present: false, Observation: "bumper fine", Confidence: "HIGH"},
		{Item: 2, Present: true, Observation: "hood bent", Severity: "SEVERE", Confidence: "HIGH"},
	}

	findings := mergeFindings(threeChecks(), items)
	assert.Equal(t, "bumper fine", findings[0].Observation)
	assert.Equal(t, "hood bent", findings[1].Observation)
	assert.Equal(t, "lens broken", findings[2].Observation)
}

func TestMergeFindings_IgnoresBadItemNumbers(t *testing.T) {
	items := []analyzeItem{
		{Item: 7, Present: true, Observation: "first", Severity: "MINOR", Confidence: "HIGH"},
		{Item: 7, Present: false, Observation: "second", Confidence: "HIGH"},
		{Item: 2, Present: false, Observation: "third", Confidence: "HIGH"},
	}

	// Out-of-range and duplicate numbering falls back to positional order.
	findings := mergeFindings(threeChecks(), items)
	assert.Equal(t, "first", findings[0].Observation)
	assert.Equal(t, "second", findings[1].Observation)
	assert.Equal(t, "third", findings[2].Observation)
}

func TestMergeFindings_SeverityFallsBackToHint(t *testing.T) {
	items := []analyzeItem{
		{Present: true, Observation: "cracked", Severity: "CATASTROPHIC", Confidence: "HIGH"},
		{Present: true, Observation: "bent", Severity: "", Confidence: "HIGH"},
		{Present: false, Confidence: "HIGH"},
	}

	findings := mergeFindings(threeChecks(), items)
	// Unknown severity uses the checklist hint.
	assert.Equal(t, model.SeverityModerate, findings[0].Severity)
	// No hint defaults to MODERATE.
	assert.Equal(t, model.SeverityModerate, findings[1].Severity)
}

func TestFlaggedFindings_SortsWorstFirst(t *testing.T) {
	findings := []model.Finding{
		{CheckID: "a", Present: true, Severity: model.SeverityMinor},
		{CheckID: "b", Present: false},
		{CheckID: "c", Present: true, Severity: model.SeveritySevere},
		{CheckID: "d", Present: true, Severity: model.SeverityModerate},
		{CheckID: "e", Present: true, Severity: model.SeveritySevere},
	}

	flagged := flaggedFindings(findings)
	require.Len(t, flagged, 4)
	assert.Equal(t, "c", flagged[0].CheckID)
	// Equal severities keep their checklist order.
	assert.Equal(t, "e", flagged[1].CheckID)
	assert.Equal(t, "d", flagged[2].CheckID)
	assert.Equal(t, "a", flagged[3].CheckID)
}

func TestAffectedComponents_DedupFirstSeen(t *testing.T) {
	findings := []model.Finding{
		{Component: "Front Bumper", Present: true},
		{Component: "Hood", Present: false},
		{Component: "Front Bumper", Present: true},
		{Component: "Headlights", Present: true},
	}

	assert.Equal(t, []string{"Front Bumper", "Headlights"}, affectedComponents(findings))
	assert.Empty(t, affectedComponents(nil))
}
