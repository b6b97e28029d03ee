package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-vision/internal/llm"
	"github.com/sells-group/claims-vision/internal/model"
)

// Phase is a node in the run's state machine.
type Phase string

const (
	PhaseStart       Phase = "START"
	PhaseClassified  Phase = "CLASSIFIED"
	PhaseValid       Phase = "VALID"
	PhaseInvalid     Phase = "INVALID"
	PhaseAnalyzed    Phase = "ANALYZED"
	PhaseRecommended Phase = "RECOMMENDED"
	PhaseActioned    Phase = "ACTIONED"
	PhaseSkipped     Phase = "SKIPPED"
)

// transitions is the complete edge set of the state machine. The only
// branch point is CLASSIFIED, where the validator's verdict selects
// VALID or INVALID; INVALID leads to the terminal SKIPPED state.
var transitions = map[Phase][]Phase{
	PhaseStart:       {PhaseClassified},
	PhaseClassified:  {PhaseValid, PhaseInvalid},
	PhaseValid:       {PhaseAnalyzed},
	PhaseInvalid:     {PhaseSkipped},
	PhaseAnalyzed:    {PhaseRecommended},
	PhaseRecommended: {PhaseActioned},
}

// State is the mutable record threaded through the stages of one run.
// It is owned exclusively by that run and discarded after the report is
// extracted; nothing is shared across runs.
type State struct {
	RunID  string
	Source string

	// Image is the bounded base64 payload sent with every vision call.
	// Set once at initialization, read-only afterwards.
	Image llm.Image

	Phase Phase

	// Classifier outputs.
	Classification model.Classification

	// Validator outputs.
	FilterResult *model.FilterVerdict
	ShouldSkip   bool

	// Analyzer outputs. Findings preserves the order of RelevantChecks;
	// Flagged is the present==true subset sorted worst-severity first.
	RelevantChecks []model.ChecklistItem
	Findings       []model.Finding
	Flagged        []model.Finding

	// Decision stage outputs.
	Recommendations    []model.Recommendation
	Decision           *model.Decision
	AffectedComponents []string

	// Action stage outputs.
	Suggestions []model.Suggestion

	Usage model.TokenUsage
	Trace []TraceEntry

	StartedAt time.Time
}

// TraceEntry records one model exchange or stage note, for diagnostics only.
// Stage logic never reads the trace.
type TraceEntry struct {
	Stage        string        `json:"stage"`
	Model        string        `json:"model,omitempty"`
	Attempts     int           `json:"attempts,omitempty"`
	FallbackUsed bool          `json:"fallback_used,omitempty"`
	InputTokens  int64         `json:"input_tokens,omitempty"`
	OutputTokens int64         `json:"output_tokens,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
	Note         string        `json:"note,omitempty"`
	At           time.Time     `json:"at"`
}

func newState(source string, image llm.Image) *State {
	return &State{
		RunID:     uuid.New().String(),
		Source:    source,
		Image:     image,
		Phase:     PhaseStart,
		StartedAt: time.Now().UTC(),
	}
}

// advance moves the state machine to the next phase, rejecting edges that
// are not part of the designed graph.
func (s *State) advance(to Phase) error {
	for _, next := range transitions[s.Phase] {
		if next == to {
			s.Phase = to
			return nil
		}
	}
	return eris.Errorf("pipeline: illegal transition %s -> %s", s.Phase, to)
}

// recordExchange appends a model exchange to the trace and folds its token
// usage and estimated cost into the run totals.
func (s *State) recordExchange(stage string, res *llm.Result) {
	res.Usage.LogCost(res.Model, stage)
	s.Usage.Add(model.TokenUsage{
		InputTokens:         int(res.Usage.InputTokens),
		OutputTokens:        int(res.Usage.OutputTokens),
		CacheCreationTokens: int(res.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(res.Usage.CacheReadInputTokens),
		Cost:                res.Usage.EstimateCost(res.Model),
	})
	s.Trace = append(s.Trace, TraceEntry{
		Stage:        stage,
		Model:        res.Model,
		Attempts:     res.Attempts,
		FallbackUsed: res.FallbackUsed,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		Duration:     res.Duration,
		At:           time.Now().UTC(),
	})
}

// note appends a diagnostic message to the trace without a model call.
func (s *State) note(stage, msg string) {
	s.Trace = append(s.Trace, TraceEntry{
		Stage: stage,
		Note:  msg,
		At:    time.Now().UTC(),
	})
}
