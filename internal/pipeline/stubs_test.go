package pipeline

import (
	"context"
	"fmt"

	"github.com/sells-group/claims-vision/internal/llm"
	"github.com/sells-group/claims-vision/internal/model"
	"github.com/sells-group/claims-vision/internal/refdata"
	"github.com/sells-group/claims-vision/internal/store"
	"github.com/sells-group/claims-vision/pkg/anthropic"
)

// stubInvoker returns canned JSON per stage and counts invocations.
type stubInvoker struct {
	responses map[string]string
	errs      map[string]error
	calls     map[string]int
}

func newStubInvoker() *stubInvoker {
	return &stubInvoker{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (s *stubInvoker) Invoke(_ context.Context, req llm.Request) (*llm.Result, error) {
	s.calls[req.Stage]++
	if err := s.errs[req.Stage]; err != nil {
		return nil, err
	}
	raw, ok := s.responses[req.Stage]
	if !ok {
		return nil, fmt.Errorf("no stub response for stage %s", req.Stage)
	}
	if err := req.Decode(raw); err != nil {
		return nil, err
	}
	return &llm.Result{
		Model:    "stub-model",
		Raw:      raw,
		Attempts: 1,
		Usage:    anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

// rejectFirstInvoker feeds listed stages one non-conforming reply before
// the scripted one, the way the adapter re-runs Decode on retry. It also
// captures each stage's prompt.
type rejectFirstInvoker struct {
	inner    *stubInvoker
	rejected map[string]string
	prompts  map[string]string
}

func (r *rejectFirstInvoker) Invoke(ctx context.Context, req llm.Request) (*llm.Result, error) {
	r.prompts[req.Stage] = req.Prompt
	if bad, ok := r.rejected[req.Stage]; ok {
		if err := req.Decode(bad); err == nil {
			return nil, fmt.Errorf("stage %s accepted a non-conforming reply", req.Stage)
		}
	}
	return r.inner.Invoke(ctx, req)
}

// recordStore captures run lifecycle calls for assertions.
type recordStore struct {
	created   []string
	statuses  []model.RunStatus
	completed []model.RunStatus
	report    *model.Report
	errMsg    string
}

func (r *recordStore) CreateRun(_ context.Context, runID, _ string) error {
	r.created = append(r.created, runID)
	return nil
}

func (r *recordStore) UpdateRunStatus(_ context.Context, _ string, status model.RunStatus) error {
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *recordStore) CompleteRun(_ context.Context, _ string, status model.RunStatus, report *model.Report, errMsg string) error {
	r.completed = append(r.completed, status)
	r.report = report
	r.errMsg = errMsg
	return nil
}

func (r *recordStore) GetRun(_ context.Context, _ string) (*model.Run, error) {
	return nil, store.ErrNotFound
}

func (r *recordStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.Run, error) {
	return nil, nil
}

func (r *recordStore) Migrate(_ context.Context) error { return nil }
func (r *recordStore) Close() error                    { return nil }

func fixtureRefData() *refdata.Store {
	return refdata.New(map[string][]model.ChecklistItem{
		"FRONT_END_COLLISION": {
			{ID: "fec-01", Component: "Front Bumper", Cue: "cracked bumper", Risk: "hidden absorber damage", RepairAction: "replace cover", CostEstimate: "$500-$1,500", SeverityHint: model.SeverityModerate},
			{ID: "fec-02", Component: "Hood", Cue: "buckled hood", Risk: "latch failure", RepairAction: "replace hood", CostEstimate: "$800-$2,500", SeverityHint: model.SeverityModerate},
			{ID: "fec-03", Component: "Headlights", Cue: "shattered lens", Risk: "electrical faults", RepairAction: "replace assembly", CostEstimate: "$300-$1,200", SeverityHint: model.SeverityMinor},
		},
		refdata.CategoryGeneral: {
			{ID: "gen-01", Component: "Body Panels", Cue: "any dents", Risk: "structural damage", CostEstimate: "$300-$2,000"},
		},
	}, []model.CatalogItem{
		{ID: "act-inspection", Name: "Schedule Field Inspection", Description: "dispatch an adjuster", CategoryTag: "inspection"},
		{ID: "act-siu", Name: "Refer to Special Investigations", Description: "escalate to SIU", CategoryTag: "fraud"},
		{ID: "act-fast-track", Name: "Fast-Track Approval", Description: "approve immediately", CategoryTag: "approve"},
		{ID: "act-photos", Name: "Request Additional Photos", Description: "ask for more angles", CategoryTag: "investigate"},
	})
}

func testImage() llm.Image {
	return llm.Image{MediaType: "image/jpeg", Data: "dGVzdA=="}
}

const stubClassifyFrontEnd = `{
	"category": "FRONT_END_COLLISION",
	"title": "Front bumper and hood collision damage",
	"scene_description": "A sedan with visible front-end damage in a parking lot."
}`

const stubValidateOK = `{"validity": "VALID", "reason": "clear photo of vehicle damage", "notes": ""}`

const stubValidateBlurry = `{"validity": "INVALID", "reason": "photo too blurry to assess", "notes": ""}`

const stubAnalyzeTwoFlagged = `{
	"findings": [
		{"item": 1, "present": true, "observation": "bumper cover cracked through", "severity": "MODERATE", "confidence": "HIGH", "estimated_cost": "$700-$1,200"},
		{"item": 2, "present": true, "observation": "hood buckled at leading edge", "severity": "SEVERE", "confidence": "HIGH", "estimated_cost": "$1,500-$2,500"},
		{"item": 3, "present": false, "observation": "headlights intact", "severity": "", "confidence": "MEDIUM", "estimated_cost": ""}
	]
}`

const stubAnalyzeNoneFlagged = `{
	"findings": [
		{"item": 1, "present": false, "observation": "bumper intact", "severity": "", "confidence": "HIGH", "estimated_cost": ""},
		{"item": 2, "present": false, "observation": "hood intact", "severity": "", "confidence": "HIGH", "estimated_cost": ""},
		{"item": 3, "present": false, "observation": "headlights intact", "severity": "", "confidence": "HIGH", "estimated_cost": ""}
	]
}`

const stubDecideInspect = `{
	"summary": "Moderate to severe front-end damage with a buckled hood and cracked bumper.",
	"remediation_items": ["Replace hood and realign latch", "Replace bumper cover"],
	"severity_level": "HIGH",
	"claim_decision": "APPROVE_WITH_INSPECTION",
	"estimated_total_cost": "$2,200-$3,700",
	"fraud_indicators": [],
	"reasoning": "Damage pattern is consistent with a single frontal impact."
}`

const stubActionsInspect = `{
	"selections": [
		{"item_id": "act-inspection", "justification": "hood damage may hide latch failure", "addressed_components": ["Hood", "Front Bumper"]}
	]
}`

// fullHappyPathStub wires all five stages for a valid two-finding run.
func fullHappyPathStub() *stubInvoker {
	inv := newStubInvoker()
	inv.responses["classify"] = stubClassifyFrontEnd
	inv.responses["validate"] = stubValidateOK
	inv.responses["analyze"] = stubAnalyzeTwoFlagged
	inv.responses["decide"] = stubDecideInspect
	inv.responses["actions"] = stubActionsInspect
	return inv
}
