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

const validateMaxTokens = 512

const validateSystemPrompt = `You are a claims intake reviewer. You decide whether a photo is usable
for automated vehicle damage assessment. A usable photo clearly shows a vehicle or vehicle part
with enough lighting and focus to judge damage. Unusable photos include non-vehicle subjects,
extreme blur, heavy obstruction, screenshots of documents, or frames where the vehicle is too
distant to assess.`

const validatePromptTemplate = `This photo was classified as category %q (%s).

Decide whether it is usable for damage assessment.

Respond ONLY with a JSON object:
{
  "validity": "VALID" or "INVALID",
  "reason": "<one sentence explaining the verdict>",
  "notes": "<optional hints for the damage analyst, or empty string>"
}`

type validateResponse struct {
	Validity string `json:"validity"`
	Reason   string `json:"reason"`
	Notes    string `json:"notes"`
}

// validate runs the second stage: a strict usability gate on the photo.
// An INVALID verdict is the single early exit of the whole pipeline; it
// marks the run for skipping rather than returning an error.
func (p *Pipeline) validate(ctx context.Context, st *State) error {
	prompt := fmt.Sprintf(validatePromptTemplate, st.Classification.Category, st.Classification.Title)

	var parsed validateResponse
	res, err := p.inv.Invoke(ctx, llm.Request{
		Stage:     "validate",
		System:    validateSystemPrompt,
		Prompt:    prompt,
		Image:     &st.Image,
		MaxTokens: validateMaxTokens,
		Decode: func(raw string) error {
			parsed = validateResponse{}
			if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
				return err
			}
			v := strings.ToUpper(strings.TrimSpace(parsed.Validity))
			if v != "VALID" && v != "INVALID" {
				return eris.Errorf("validity %q is not VALID or INVALID", parsed.Validity)
			}
			parsed.Validity = v
			return nil
		},
	})
	if err != nil {
		return err
	}
	st.recordExchange("validate", res)

	verdict := &model.FilterVerdict{
		IsValid: parsed.Validity == "VALID",
		Reason:  strings.TrimSpace(parsed.Reason),
		Notes:   strings.TrimSpace(parsed.Notes),
	}
	if verdict.Reason == "" {
		if verdict.IsValid {
			verdict.Reason = "photo is usable for assessment"
		} else {
			verdict.Reason = "photo is not usable for assessment"
		}
	}
	st.FilterResult = verdict
	st.ShouldSkip = !verdict.IsValid

	zap.L().Info("photo validated",
		zap.String("run_id", st.RunID),
		zap.Bool("valid", verdict.IsValid),
		zap.String("reason", verdict.Reason),
	)
	return nil
}
