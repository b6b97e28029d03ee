package model

// Classification is the output of the classifier stage.
type Classification struct {
	Category         string `json:"category"`
	Title            string `json:"title"`
	SceneDescription string `json:"scene_description"`
}

// FilterVerdict is the validator stage's decision on image suitability.
type FilterVerdict struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason"`
	// Notes carries optional hints for downstream analysis.
	Notes string `json:"notes,omitempty"`
}

// Finding is the per-checklist-item result from the analyzer stage.
// The slice of findings preserves the order of the input checklist.
type Finding struct {
	CheckID       string     `json:"check_id"`
	Cue           string     `json:"cue"`
	Component     string     `json:"component"`
	Present       bool       `json:"present"`
	Observation   string     `json:"observation"`
	Severity      Severity   `json:"severity,omitempty"`
	Confidence    Confidence `json:"confidence,omitempty"`
	EstimatedCost string     `json:"estimated_cost,omitempty"`
	Risk          string     `json:"risk,omitempty"`
	RepairAction  string     `json:"repair_action,omitempty"`
}

// Recommendation aggregates flagged findings into a report-level outcome.
type Recommendation struct {
	Summary          string    `json:"summary"`
	RemediationItems []string  `json:"remediation_items"`
	SeverityLevel    RiskLevel `json:"severity_level"`
}

// Decision holds the extended output of the decision stage beyond the
// recommendation itself.
type Decision struct {
	ClaimDecision      ClaimDecision `json:"claim_decision"`
	EstimatedTotalCost string        `json:"estimated_total_cost,omitempty"`
	FraudIndicators    []string      `json:"fraud_indicators,omitempty"`
	Reasoning          string        `json:"reasoning,omitempty"`
}

// Suggestion is a catalog action matched to one or more flagged findings.
type Suggestion struct {
	ItemID              string   `json:"item_id"`
	Name                string   `json:"name"`
	AddressedComponents []string `json:"addressed_components"`
	Justification       string   `json:"justification"`
	Priority            Priority `json:"priority"`
}
