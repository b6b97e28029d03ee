package pipeline

import "github.com/sells-group/claims-vision/internal/model"

// BuildReport extracts the response shape from a finished run. Every
// array field comes back non-nil so skipped runs serialize with empty
// arrays rather than nulls; the skip reason is null unless the run was
// actually skipped.
func BuildReport(st *State) *model.Report {
	r := &model.Report{
		SourceID:             st.Source,
		Category:             st.Classification.Category,
		Title:                st.Classification.Title,
		SceneDescription:     st.Classification.SceneDescription,
		Skipped:              st.Phase == PhaseSkipped,
		Findings:             st.Findings,
		AffectedComponents:   st.AffectedComponents,
		Recommendations:      st.Recommendations,
		SecondarySuggestions: st.Suggestions,
		Decision:             st.Decision,
		TotalTokens:          st.Usage.InputTokens + st.Usage.OutputTokens,
		TotalCost:            st.Usage.Cost,
	}

	if r.Skipped && st.FilterResult != nil {
		reason := st.FilterResult.Reason
		r.SkipReason = &reason
	}

	if r.Findings == nil {
		r.Findings = []model.Finding{}
	}
	if r.AffectedComponents == nil {
		r.AffectedComponents = []string{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []model.Recommendation{}
	}
	if r.SecondarySuggestions == nil {
		r.SecondarySuggestions = []model.Suggestion{}
	}
	return r
}
