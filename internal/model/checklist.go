package model

// ChecklistItem is a single damage cue the analyzer evaluates for a category.
type ChecklistItem struct {
	ID           string   `json:"id"`
	Component    string   `json:"component"`
	Cue          string   `json:"cue"`
	Risk         string   `json:"risk"`
	RepairAction string   `json:"repair_action,omitempty"`
	CostEstimate string   `json:"cost_estimate,omitempty"`
	SeverityHint Severity `json:"severity_hint,omitempty"`
}

// CatalogItem is a claim-handling action from the reference catalog.
// CategoryTag links the action to the decision context it applies to
// (e.g. "approve", "inspection", "investigate", "fraud", "total_loss").
type CatalogItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CategoryTag string `json:"category_tag"`
}
