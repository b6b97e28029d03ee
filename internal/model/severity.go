package model

// Severity grades a single damage finding.
type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityModerate Severity = "MODERATE"
	SeveritySevere   Severity = "SEVERE"
)

// severityRank orders severities for sorting and aggregation.
// Unknown values rank below MINOR.
var severityRank = map[Severity]int{
	SeverityMinor:    1,
	SeverityModerate: 2,
	SeveritySevere:   3,
}

// Rank returns the numeric order of the severity (higher = worse).
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the known severity levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Confidence grades how certain the model was about a finding.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// RiskLevel is the aggregate severity of a whole assessment.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

var riskRank = map[RiskLevel]int{
	RiskLow:    1,
	RiskMedium: 2,
	RiskHigh:   3,
}

// Valid reports whether r is one of the known risk levels.
func (r RiskLevel) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

// Priority grades a suggested follow-up action.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// PriorityForSeverity derives an action priority from the worst severity
// among the findings the action addresses.
func PriorityForSeverity(s Severity) Priority {
	switch s {
	case SeveritySevere:
		return PriorityHigh
	case SeverityModerate:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ClaimDecision is the adjuster-style outcome of the decision stage.
type ClaimDecision string

const (
	DecisionApprove        ClaimDecision = "APPROVE"
	DecisionApproveInspect ClaimDecision = "APPROVE_WITH_INSPECTION"
	DecisionInvestigate    ClaimDecision = "INVESTIGATE"
	DecisionPartialApprove ClaimDecision = "PARTIAL_APPROVE"
	DecisionReject         ClaimDecision = "REJECT"
	DecisionTotalLoss      ClaimDecision = "TOTAL_LOSS"
)

// AllClaimDecisions lists the closed set of decision values.
func AllClaimDecisions() []ClaimDecision {
	return []ClaimDecision{
		DecisionApprove,
		DecisionApproveInspect,
		DecisionInvestigate,
		DecisionPartialApprove,
		DecisionReject,
		DecisionTotalLoss,
	}
}

// Valid reports whether d is one of the known claim decisions.
func (d ClaimDecision) Valid() bool {
	for _, v := range AllClaimDecisions() {
		if v == d {
			return true
		}
	}
	return false
}
