package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-vision/internal/model"
	"github.com/sells-group/claims-vision/internal/refdata"
)

func TestRun_FullAssessment(t *testing.T) {
	inv := fullHappyPathStub()
	p := New(inv, fixtureRefData(), nil)

	report, err := p.Run(context.Background(), "claim-123.jpg", testImage())
	require.NoError(t, err)

	assert.Equal(t, "claim-123.jpg", report.SourceID)
	assert.Equal(t, "FRONT_END_COLLISION", report.Category)
	assert.Equal(t, "Front bumper and hood collision damage", report.Title)
	assert.False(t, report.Skipped)
	assert.Nil(t, report.SkipReason)

	// One call per stage, in the designed order.
	for _, stage := range []string{"classify", "validate", "analyze", "decide", "actions"} {
		assert.Equal(t, 1, inv.calls[stage], stage)
	}

	// Findings preserve checklist order and carry checklist metadata.
	require.Len(t, report.Findings, 3)
	assert.Equal(t, "fec-01", report.Findings[0].CheckID)
	assert.Equal(t, "fec-02", report.Findings[1].CheckID)
	assert.Equal(t, "fec-03", report.Findings[2].CheckID)
	assert.True(t, report.Findings[0].Present)
	assert.True(t, report.Findings[1].Present)
	assert.False(t, report.Findings[2].Present)
	assert.Equal(t, model.SeveritySevere, report.Findings[1].Severity)
	assert.Equal(t, "replace cover", report.Findings[0].RepairAction)

	// Affected components are flagged components in first-seen order.
	assert.Equal(t, []string{"Front Bumper", "Hood"}, report.AffectedComponents)

	require.Len(t, report.Recommendations, 1)
	rec := report.Recommendations[0]
	assert.Equal(t, model.RiskHigh, rec.SeverityLevel)
	assert.NotEmpty(t, rec.RemediationItems)

	require.NotNil(t, report.Decision)
	assert.Equal(t, model.DecisionApproveInspect, report.Decision.ClaimDecision)
	assert.Equal(t, "$2,200-$3,700", report.Decision.EstimatedTotalCost)

	require.Len(t, report.SecondarySuggestions, 1)
	sug := report.SecondarySuggestions[0]
	assert.Equal(t, "act-inspection", sug.ItemID)
	assert.Equal(t, model.PriorityHigh, sug.Priority)
	assert.ElementsMatch(t, []string{"Hood", "Front Bumper"}, sug.AddressedComponents)

	// Token accounting across 5 calls.
	assert.Equal(t, 750, report.TotalTokens)
}

func TestRun_InvalidPhotoSkips(t *testing.T) {
	inv := newStubInvoker()
	inv.responses["classify"] = stubClassifyFrontEnd
	inv.responses["validate"] = stubValidateBlurry
	p := New(inv, fixtureRefData(), nil)

	report, err := p.Run(context.Background(), "blurry.jpg", testImage())
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	require.NotNil(t, report.SkipReason)
	assert.Equal(t, "photo too blurry to assess", *report.SkipReason)

	// Downstream stages never run.
	assert.Equal(t, 1, inv.calls["classify"])
	assert.Equal(t, 1, inv.calls["validate"])
	assert.Equal(t, 0, inv.calls["analyze"])
	assert.Equal(t, 0, inv.calls["decide"])
	assert.Equal(t, 0, inv.calls["actions"])

	assert.Empty(t, report.Findings)
	assert.Empty(t, report.AffectedComponents)
	assert.Empty(t, report.Recommendations)
	assert.Empty(t, report.SecondarySuggestions)
	assert.Nil(t, report.Decision)

	// Arrays serialize as [] rather than null.
	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"findings":[]`)
	assert.Contains(t, string(data), `"affected_components":[]`)
	assert.Contains(t, string(data), `"recommendations":[]`)
	assert.Contains(t, string(data), `"secondary_suggestions":[]`)
	assert.NotContains(t, string(data), `"decision"`)
}

func TestRun_NoDamageBaseline(t *testing.T) {
	inv := newStubInvoker()
	inv.responses["classify"] = stubClassifyFrontEnd
	inv.responses["validate"] = stubValidateOK
	inv.responses["analyze"] = stubAnalyzeNoneFlagged
	p := New(inv, fixtureRefData(), nil)

	report, err := p.Run(context.Background(), "clean.jpg", testImage())
	require.NoError(t, err)

	// Decision and actions stages make no model calls.
	assert.Equal(t, 1, inv.calls["analyze"])
	assert.Equal(t, 0, inv.calls["decide"])
	assert.Equal(t, 0, inv.calls["actions"])

	assert.False(t, report.Skipped)
	assert.Len(t, report.Findings, 3)
	assert.Empty(t, report.AffectedComponents)
	assert.Empty(t, report.SecondarySuggestions)

	// The recommendation list is never empty on a completed run.
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, model.RiskLow, report.Recommendations[0].SeverityLevel)
	assert.NotEmpty(t, report.Recommendations[0].RemediationItems)

	require.NotNil(t, report.Decision)
	assert.Equal(t, model.DecisionReject, report.Decision.ClaimDecision)
}

func TestRun_UnknownCategoryUsesGeneralChecks(t *testing.T) {
	inv := newStubInvoker()
	inv.responses["classify"] = `{"category": "SUBMARINE_DAMAGE", "title": "Odd scene", "scene_description": "Unclear subject."}`
	inv.responses["validate"] = stubValidateOK
	inv.responses["analyze"] = `{
		"findings": [
			{"item": 1, "present": true, "observation": "dent on rear quarter panel", "severity": "MINOR", "confidence": "MEDIUM", "estimated_cost": "$400"}
		]
	}`
	inv.responses["decide"] = stubDecideInspect
	inv.responses["actions"] = `{"selections": []}`
	p := New(inv, fixtureRefData(), nil)

	report, err := p.Run(context.Background(), "odd.jpg", testImage())
	require.NoError(t, err)

	assert.Equal(t, "OTHERS", report.Category)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "gen-01", report.Findings[0].CheckID)
	assert.Equal(t, []string{"Body Panels"}, report.AffectedComponents)
}

func TestRun_EmptyGeneralChecklist(t *testing.T) {
	inv := newStubInvoker()
	inv.responses["classify"] = `{"category": "TREE_FALL", "title": "Unknown scenario", "scene_description": "A parked vehicle."}`
	inv.responses["validate"] = stubValidateOK

	ref := refdata.New(map[string][]model.ChecklistItem{
		"FRONT_END_COLLISION": {
			{ID: "fec-01", Component: "Front Bumper", Cue: "cracked bumper"},
		},
	}, nil)
	p := New(inv, ref, nil)

	report, err := p.Run(context.Background(), "odd.jpg", testImage())
	require.NoError(t, err)

	// No general checklist: the analyzer has nothing to evaluate and makes
	// no model call, and neither do the downstream stages.
	assert.Equal(t, 0, inv.calls["analyze"])
	assert.Equal(t, 0, inv.calls["decide"])
	assert.Equal(t, 0, inv.calls["actions"])

	assert.False(t, report.Skipped)
	assert.Empty(t, report.Findings)
	assert.Empty(t, report.AffectedComponents)
	assert.Empty(t, report.SecondarySuggestions)

	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, model.RiskLow, report.Recommendations[0].SeverityLevel)
	assert.NotEmpty(t, report.Recommendations[0].RemediationItems)
}

func TestRun_RetriedDecodeDiscardsRejectedReply(t *testing.T) {
	inner := fullHappyPathStub()
	inner.responses["classify"] = `{"category": "FRONT_END_COLLISION"}`
	inner.responses["validate"] = `{"validity": "VALID"}`
	inv := &rejectFirstInvoker{
		inner: inner,
		rejected: map[string]string{
			"classify": `{"category": "", "title": "leftover title", "scene_description": "leftover scene"}`,
			"validate": `{"validity": "MAYBE", "reason": "leftover reason", "notes": "leftover notes"}`,
		},
		prompts: map[string]string{},
	}
	p := New(inv, fixtureRefData(), nil)

	report, err := p.Run(context.Background(), "claim.jpg", testImage())
	require.NoError(t, err)

	// Nothing from the rejected replies leaks into the accepted result.
	assert.Equal(t, "Unspecified vehicle damage", report.Title)
	assert.Empty(t, report.SceneDescription)
	assert.False(t, report.Skipped)
	assert.NotContains(t, inv.prompts["analyze"], "leftover notes")
}

func TestRun_AnalyzeCountMismatchFails(t *testing.T) {
	inv := newStubInvoker()
	inv.responses["classify"] = stubClassifyFrontEnd
	inv.responses["validate"] = stubValidateOK
	inv.responses["analyze"] = `{"findings": [{"item": 1, "present": false, "observation": "", "severity": "", "confidence": "HIGH", "estimated_cost": ""}]}`
	p := New(inv, fixtureRefData(), nil)

	_, err := p.Run(context.Background(), "short.jpg", testImage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyze")
	assert.Equal(t, 0, inv.calls["decide"])
}

func TestRun_StageErrorPropagates(t *testing.T) {
	inv := newStubInvoker()
	inv.errs["classify"] = errors.New("model unavailable")
	p := New(inv, fixtureRefData(), nil)

	_, err := p.Run(context.Background(), "claim.jpg", testImage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classify")
	assert.Equal(t, 0, inv.calls["validate"])
}

func TestRun_RepeatedRunsAreIndependent(t *testing.T) {
	inv := fullHappyPathStub()
	p := New(inv, fixtureRefData(), nil)

	first, err := p.Run(context.Background(), "claim.jpg", testImage())
	require.NoError(t, err)
	second, err := p.Run(context.Background(), "claim.jpg", testImage())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, inv.calls["classify"])
}

func TestRun_PersistsLifecycle(t *testing.T) {
	inv := fullHappyPathStub()
	rec := &recordStore{}
	p := New(inv, fixtureRefData(), rec)

	report, err := p.Run(context.Background(), "claim.jpg", testImage())
	require.NoError(t, err)

	require.Len(t, rec.created, 1)
	assert.Equal(t, []model.RunStatus{model.RunStatusComplete}, rec.completed)
	assert.Equal(t, report, rec.report)
	assert.Empty(t, rec.errMsg)
	assert.Contains(t, rec.statuses, model.RunStatusClassifying)
	assert.Contains(t, rec.statuses, model.RunStatusAnalyzing)
}

func TestRun_PersistsSkip(t *testing.T) {
	inv := newStubInvoker()
	inv.responses["classify"] = stubClassifyFrontEnd
	inv.responses["validate"] = stubValidateBlurry
	rec := &recordStore{}
	p := New(inv, fixtureRefData(), rec)

	_, err := p.Run(context.Background(), "blurry.jpg", testImage())
	require.NoError(t, err)
	assert.Equal(t, []model.RunStatus{model.RunStatusSkipped}, rec.completed)
}

func TestRun_PersistsFailure(t *testing.T) {
	inv := newStubInvoker()
	inv.responses["classify"] = stubClassifyFrontEnd
	inv.responses["validate"] = stubValidateOK
	inv.errs["analyze"] = errors.New("boom")
	rec := &recordStore{}
	p := New(inv, fixtureRefData(), rec)

	_, err := p.Run(context.Background(), "claim.jpg", testImage())
	require.Error(t, err)
	assert.Equal(t, []model.RunStatus{model.RunStatusFailed}, rec.completed)
	assert.Nil(t, rec.report)
	assert.Contains(t, rec.errMsg, "boom")
}

func TestAdvance_RejectsIllegalTransition(t *testing.T) {
	st := newState("x.jpg", testImage())
	require.NoError(t, st.advance(PhaseClassified))

	err := st.advance(PhaseAnalyzed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal transition")
	assert.Equal(t, PhaseClassified, st.Phase)
}

func TestAdvance_SkipPath(t *testing.T) {
	st := newState("x.jpg", testImage())
	require.NoError(t, st.advance(PhaseClassified))
	require.NoError(t, st.advance(PhaseInvalid))
	require.NoError(t, st.advance(PhaseSkipped))
	assert.Error(t, st.advance(PhaseAnalyzed))
}
