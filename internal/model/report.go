package model

import "time"

// Report is the response shape exposed by the service facade.
// Array fields are always non-nil so a skipped run serializes as [].
type Report struct {
	SourceID             string           `json:"source_identifier"`
	Category             string           `json:"category"`
	Title                string           `json:"title"`
	SceneDescription     string           `json:"scene_description"`
	Skipped              bool             `json:"skipped"`
	SkipReason           *string          `json:"skip_reason"`
	Findings             []Finding        `json:"findings"`
	AffectedComponents   []string         `json:"affected_components"`
	Recommendations      []Recommendation `json:"recommendations"`
	SecondarySuggestions []Suggestion     `json:"secondary_suggestions"`
	Decision             *Decision        `json:"decision,omitempty"`
	TotalTokens          int              `json:"total_tokens"`
	TotalCost            float64          `json:"total_cost"`
}

// RunStatus represents the current state of an assessment run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusValidating  RunStatus = "validating"
	RunStatusAnalyzing   RunStatus = "analyzing"
	RunStatusDeciding    RunStatus = "deciding"
	RunStatusComplete    RunStatus = "complete"
	RunStatusSkipped     RunStatus = "skipped"
	RunStatusFailed      RunStatus = "failed"
)

// Run is a stored record of one assessment.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	Report    *Report   `json:"report,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenUsage tracks token consumption across model calls.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	Cost                float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Cost += other.Cost
}
