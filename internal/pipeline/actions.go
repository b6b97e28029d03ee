package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/claims-vision/internal/llm"
	"github.com/sells-group/claims-vision/internal/model"
)

const actionsMaxTokens = 2048

const actionsSystemPrompt = `You are a claims operations specialist. Given a claim decision and
confirmed damage findings, you pick the follow-up actions from a fixed catalog that the claims
handler should take. Select only actions that directly address the confirmed findings or the
decision. Never invent actions outside the catalog.`

const actionsPromptTemplate = `Claim decision: %s
Severity: %s

Confirmed damage findings:
%s

Action catalog:
%s

Select up to 3 catalog actions that address these findings and this decision.

Respond ONLY with a JSON object:
{
  "selections": [
    {
      "item_id": "<id from the catalog>",
      "justification": "<one sentence tying the action to specific findings>",
      "addressed_components": ["<component from the findings>", ...]
    }
  ]
}

Selections may be empty if no catalog action applies.`

type actionSelection struct {
	ItemID              string   `json:"item_id"`
	Justification       string   `json:"justification"`
	AddressedComponents []string `json:"addressed_components"`
}

type actionsResponse struct {
	Selections []actionSelection `json:"selections"`
}

// actions runs the final stage: catalog follow-up suggestions for the
// claims handler. With zero flagged findings the stage emits no
// suggestions and makes no model call. Every model selection is verified
// against the catalog and the flagged components; selections that survive
// get a priority derived from the worst severity they address.
func (p *Pipeline) actions(ctx context.Context, st *State) error {
	if len(st.Flagged) == 0 {
		st.note("actions", "no flagged findings, no suggestions")
		st.Suggestions = []model.Suggestion{}
		return nil
	}

	findingsJSON, err := json.MarshalIndent(st.Flagged, "", "  ")
	if err != nil {
		return err
	}
	prompt := fmt.Sprintf(actionsPromptTemplate,
		st.Decision.ClaimDecision,
		st.Recommendations[0].SeverityLevel,
		string(findingsJSON),
		formatCatalog(p.ref.Catalog()),
	)

	var parsed actionsResponse
	res, err := p.inv.Invoke(ctx, llm.Request{
		Stage:     "actions",
		System:    actionsSystemPrompt,
		Prompt:    prompt,
		MaxTokens: actionsMaxTokens,
		Decode: func(raw string) error {
			parsed = actionsResponse{}
			return json.Unmarshal([]byte(raw), &parsed)
		},
	})
	if err != nil {
		return err
	}
	st.recordExchange("actions", res)

	st.Suggestions = p.verifySelections(st, parsed.Selections)

	zap.L().Info("follow-up actions selected",
		zap.String("run_id", st.RunID),
		zap.Int("selected", len(parsed.Selections)),
		zap.Int("kept", len(st.Suggestions)),
	)
	return nil
}

// verifySelections keeps only selections that name a real catalog item and
// address at least one flagged component. Duplicates collapse to the first
// occurrence and at most three suggestions survive.
func (p *Pipeline) verifySelections(st *State, selections []actionSelection) []model.Suggestion {
	worstByComponent := make(map[string]model.Severity, len(st.Flagged))
	for _, f := range st.Flagged {
		if f.Severity.Rank() > worstByComponent[f.Component].Rank() {
			worstByComponent[f.Component] = f.Severity
		}
	}

	suggestions := make([]model.Suggestion, 0, 3)
	taken := make(map[string]bool, len(selections))
	for _, sel := range selections {
		if len(suggestions) == 3 {
			break
		}
		item, ok := p.ref.CatalogItem(sel.ItemID)
		if !ok {
			st.note("actions", fmt.Sprintf("dropped unknown catalog item %q", sel.ItemID))
			continue
		}
		if taken[item.ID] {
			continue
		}

		var matched []string
		worst := model.Severity("")
		for _, comp := range sel.AddressedComponents {
			sev, ok := lookupComponent(worstByComponent, comp)
			if !ok {
				continue
			}
			matched = append(matched, comp)
			if sev.Rank() > worst.Rank() {
				worst = sev
			}
		}
		if len(matched) == 0 {
			st.note("actions", fmt.Sprintf("dropped %q, no flagged component addressed", sel.ItemID))
			continue
		}

		taken[item.ID] = true
		suggestions = append(suggestions, model.Suggestion{
			ItemID:              item.ID,
			Name:                item.Name,
			AddressedComponents: matched,
			Justification:       strings.TrimSpace(sel.Justification),
			Priority:            model.PriorityForSeverity(worst),
		})
	}
	return suggestions
}

func lookupComponent(worstByComponent map[string]model.Severity, comp string) (model.Severity, bool) {
	if sev, ok := worstByComponent[comp]; ok {
		return sev, true
	}
	for name, sev := range worstByComponent {
		if strings.EqualFold(name, comp) {
			return sev, true
		}
	}
	return "", false
}

func formatCatalog(items []model.CatalogItem) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s: %s (%s)", it.ID, it.Name, it.Description)
		if it.CategoryTag != "" {
			fmt.Fprintf(&b, " [applies to: %s]", it.CategoryTag)
		}
		b.WriteString("\n")
	}
	return b.String()
}
