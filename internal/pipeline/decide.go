package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-vision/internal/llm"
	"github.com/sells-group/claims-vision/internal/model"
)

const decideMaxTokens = 2048

const decideSystemPrompt = `You are a vehicle claims adjuster. Given the confirmed damage findings
from a claim photo, you produce a repair recommendation and a claim decision. Ground every
statement in the findings you are given. Watch for inconsistencies that suggest staged or
pre-existing damage.`

const decidePromptTemplate = `Claim photo category: %s
Scene: %s

Confirmed damage findings (worst first):
%s

Produce a recommendation and claim decision.

Respond ONLY with a JSON object:
{
  "summary": "<2-3 sentence assessment of the overall damage>",
  "remediation_items": ["<concrete repair step>", ...],
  "severity_level": "LOW", "MEDIUM" or "HIGH",
  "claim_decision": one of %s,
  "estimated_total_cost": "<total repair cost range in USD>",
  "fraud_indicators": ["<observed inconsistency>", ...] or [],
  "reasoning": "<one or two sentences justifying the claim decision>"
}

remediation_items must not be empty.`

type decideResponse struct {
	Summary            string   `json:"summary"`
	RemediationItems   []string `json:"remediation_items"`
	SeverityLevel      string   `json:"severity_level"`
	ClaimDecision      string   `json:"claim_decision"`
	EstimatedTotalCost string   `json:"estimated_total_cost"`
	FraudIndicators    []string `json:"fraud_indicators"`
	Reasoning          string   `json:"reasoning"`
}

// decide runs the fourth stage. With zero flagged findings it emits a
// deterministic baseline recommendation without a model call. Otherwise one
// call aggregates the flagged findings into a recommendation and a claim
// decision. Affected components are always computed here from the findings
// themselves, never taken from model output.
func (p *Pipeline) decide(ctx context.Context, st *State) error {
	st.AffectedComponents = affectedComponents(st.Findings)

	if len(st.Flagged) == 0 {
		st.note("decide", "no flagged findings, baseline recommendation")
		st.Recommendations = []model.Recommendation{{
			Summary:          "No damage was confirmed in the photo. The checklist inspection found no visible damage cues.",
			RemediationItems: []string{"No repair action required based on this photo.", "Request additional photos if the claimant reports damage not visible here."},
			SeverityLevel:    model.RiskLow,
		}}
		st.Decision = &model.Decision{
			ClaimDecision: model.DecisionReject,
			Reasoning:     "No visible damage supports the claim in the submitted photo.",
		}
		zap.L().Info("claim decided",
			zap.String("run_id", st.RunID),
			zap.String("decision", string(st.Decision.ClaimDecision)),
			zap.String("severity", string(model.RiskLow)),
			zap.Bool("baseline", true),
		)
		return nil
	}

	findingsJSON, err := json.MarshalIndent(st.Flagged, "", "  ")
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal findings")
	}

	decisions := make([]string, 0, 6)
	for _, d := range model.AllClaimDecisions() {
		decisions = append(decisions, `"`+string(d)+`"`)
	}
	prompt := fmt.Sprintf(decidePromptTemplate,
		st.Classification.Category,
		st.Classification.SceneDescription,
		string(findingsJSON),
		strings.Join(decisions, ", "),
	)

	var parsed decideResponse
	res, err := p.inv.Invoke(ctx, llm.Request{
		Stage:     "decide",
		System:    decideSystemPrompt,
		Prompt:    prompt,
		MaxTokens: decideMaxTokens,
		Decode: func(raw string) error {
			parsed = decideResponse{}
			if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
				return err
			}
			if strings.TrimSpace(parsed.Summary) == "" {
				return eris.New("missing summary")
			}
			if len(parsed.RemediationItems) == 0 {
				return eris.New("empty remediation_items")
			}
			if !model.RiskLevel(strings.ToUpper(parsed.SeverityLevel)).Valid() {
				return eris.Errorf("unknown severity_level %q", parsed.SeverityLevel)
			}
			if !model.ClaimDecision(strings.ToUpper(parsed.ClaimDecision)).Valid() {
				return eris.Errorf("unknown claim_decision %q", parsed.ClaimDecision)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	st.recordExchange("decide", res)

	st.Recommendations = []model.Recommendation{{
		Summary:          strings.TrimSpace(parsed.Summary),
		RemediationItems: parsed.RemediationItems,
		SeverityLevel:    model.RiskLevel(strings.ToUpper(parsed.SeverityLevel)),
	}}
	st.Decision = &model.Decision{
		ClaimDecision:      model.ClaimDecision(strings.ToUpper(parsed.ClaimDecision)),
		EstimatedTotalCost: strings.TrimSpace(parsed.EstimatedTotalCost),
		FraudIndicators:    parsed.FraudIndicators,
		Reasoning:          strings.TrimSpace(parsed.Reasoning),
	}

	zap.L().Info("claim decided",
		zap.String("run_id", st.RunID),
		zap.String("decision", string(st.Decision.ClaimDecision)),
		zap.String("severity", string(st.Recommendations[0].SeverityLevel)),
		zap.Int("fraud_indicators", len(st.Decision.FraudIndicators)),
		zap.String("model", res.Model),
	)
	return nil
}

// affectedComponents lists the distinct components of all flagged findings
// in first-seen checklist order.
func affectedComponents(findings []model.Finding) []string {
	components := make([]string, 0, len(findings))
	seen := make(map[string]bool, len(findings))
	for _, f := range findings {
		if !f.Present || seen[f.Component] {
			continue
		}
		seen[f.Component] = true
		components = append(components, f.Component)
	}
	return components
}
