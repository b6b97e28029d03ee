package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-vision/internal/llm"
	"github.com/sells-group/claims-vision/internal/model"
	"github.com/sells-group/claims-vision/internal/refdata"
)

const analyzeMaxTokens = 4096

const analyzeSystemPrompt = `You are an expert vehicle damage analyst. You inspect a claim photo
against a checklist of damage cues and report, for every cue, whether it is visible in the photo.
Judge only what the photo shows. Never invent damage that is not visible.`

const analyzePromptTemplate = `Inspect this photo (category: %s) against the following damage checklist.
Evaluate EVERY item and answer for each one.

Checklist:
%s

Respond ONLY with a JSON object:
{
  "findings": [
    {
      "item": <item number from the checklist>,
      "present": true or false,
      "observation": "<what you see for this cue, one sentence>",
      "severity": "MINOR", "MODERATE" or "SEVERE" (only when present is true, else ""),
      "confidence": "LOW", "MEDIUM" or "HIGH",
      "estimated_cost": "<repair cost range in USD when present is true, else "">"
    }
  ]
}

The findings array must contain exactly %d entries, one per checklist item, in order.`

type analyzeItem struct {
	Item          int    `json:"item"`
	Present       bool   `json:"present"`
	Observation   string `json:"observation"`
	Severity      string `json:"severity"`
	Confidence    string `json:"confidence"`
	EstimatedCost string `json:"estimated_cost"`
}

type analyzeResponse struct {
	Findings []analyzeItem `json:"findings"`
}

// analyze runs the third stage: a single batched vision call that evaluates
// every checklist item for the classified category. Findings come back in
// checklist order; the flagged subset is additionally sorted worst first.
// A category with no checklist falls back to the general checklist, and an
// empty general checklist short-circuits to zero findings without a call.
func (p *Pipeline) analyze(ctx context.Context, st *State) error {
	checks, ok := p.ref.ChecksFor(st.Classification.Category)
	if !ok {
		if st.Classification.Category != refdata.CategoryOthers {
			zap.L().Warn("no checklist for category, using general checks",
				zap.String("run_id", st.RunID),
				zap.String("category", st.Classification.Category),
			)
			st.note("analyze", fmt.Sprintf("no checklist for %s, using general checks", st.Classification.Category))
		}
		checks = p.ref.General()
	}
	st.RelevantChecks = checks

	if len(checks) == 0 {
		st.note("analyze", "empty checklist, no findings to evaluate")
		st.Findings = []model.Finding{}
		st.Flagged = []model.Finding{}
		return nil
	}

	prompt := fmt.Sprintf(analyzePromptTemplate,
		st.Classification.Category, formatChecklist(checks), len(checks))
	if st.FilterResult.Notes != "" {
		prompt += fmt.Sprintf("\n\nReviewer notes on this photo: %s", st.FilterResult.Notes)
	}

	var parsed analyzeResponse
	res, err := p.inv.Invoke(ctx, llm.Request{
		Stage:     "analyze",
		System:    analyzeSystemPrompt,
		Prompt:    prompt,
		Image:     &st.Image,
		MaxTokens: analyzeMaxTokens,
		Decode: func(raw string) error {
			parsed = analyzeResponse{}
			if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
				return err
			}
			if len(parsed.Findings) != len(checks) {
				return eris.Errorf("expected %d findings, got %d", len(checks), len(parsed.Findings))
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	st.recordExchange("analyze", res)

	st.Findings = mergeFindings(checks, parsed.Findings)
	st.Flagged = flaggedFindings(st.Findings)

	zap.L().Info("photo analyzed",
		zap.String("run_id", st.RunID),
		zap.Int("checks", len(checks)),
		zap.Int("flagged", len(st.Flagged)),
		zap.String("model", res.Model),
	)
	return nil
}

func formatChecklist(checks []model.ChecklistItem) string {
	var b strings.Builder
	for i, c := range checks {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, c.Component, c.Cue)
		if c.Risk != "" {
			fmt.Fprintf(&b, " (risk: %s)", c.Risk)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// mergeFindings joins the model's per-item answers with the checklist
// metadata, preserving checklist order. Item numbers are trusted only when
// they form a valid reordering; otherwise position decides.
func mergeFindings(checks []model.ChecklistItem, items []analyzeItem) []model.Finding {
	byPosition := make([]analyzeItem, len(checks))
	copy(byPosition, items)

	seen := make(map[int]bool, len(items))
	numbered := true
	for _, it := range items {
		if it.Item < 1 || it.Item > len(checks) || seen[it.Item] {
			numbered = false
			break
		}
		seen[it.Item] = true
	}
	if numbered {
		for _, it := range items {
			byPosition[it.Item-1] = it
		}
	}

	findings := make([]model.Finding, len(checks))
	for i, c := range checks {
		it := byPosition[i]
		f := model.Finding{
			CheckID:     c.ID,
			Cue:         c.Cue,
			Component:   c.Component,
			Present:     it.Present,
			Observation: strings.TrimSpace(it.Observation),
			Confidence:  normalizeConfidence(it.Confidence),
		}
		if it.Present {
			f.Severity = normalizeSeverity(it.Severity, c.SeverityHint)
			f.EstimatedCost = strings.TrimSpace(it.EstimatedCost)
			if f.EstimatedCost == "" {
				f.EstimatedCost = c.CostEstimate
			}
			f.Risk = c.Risk
			f.RepairAction = c.RepairAction
		}
		findings[i] = f
	}
	return findings
}

// flaggedFindings extracts present findings sorted by severity, worst
// first, keeping checklist order among equals.
func flaggedFindings(findings []model.Finding) []model.Finding {
	flagged := make([]model.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Present {
			flagged = append(flagged, f)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool {
		return flagged[i].Severity.Rank() > flagged[j].Severity.Rank()
	})
	return flagged
}

func normalizeSeverity(raw string, hint model.Severity) model.Severity {
	s := model.Severity(strings.ToUpper(strings.TrimSpace(raw)))
	if s.Valid() {
		return s
	}
	if hint.Valid() {
		return hint
	}
	return model.SeverityModerate
}

func normalizeConfidence(raw string) model.Confidence {
	switch model.Confidence(strings.ToUpper(strings.TrimSpace(raw))) {
	case model.ConfidenceLow:
		return model.ConfidenceLow
	case model.ConfidenceHigh:
		return model.ConfidenceHigh
	default:
		return model.ConfidenceMedium
	}
}
