package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-vision/internal/llm"
	"github.com/sells-group/claims-vision/internal/refdata"
)

const classifyMaxTokens = 1024

const classifySystemPrompt = `You are a senior vehicle damage assessor working insurance claims.
You examine a single claim photo and classify the damage scenario it shows.
Be literal about what is visible. Do not speculate about damage outside the frame.`

const classifyPromptTemplate = `Classify this vehicle claim photo.

Pick exactly ONE damage category from this list:
%s

If the photo shows a vehicle but none of the listed categories fit, use "OTHERS".
If the photo does not show a vehicle at all, still use "OTHERS" and say so in the scene description.

Respond ONLY with a JSON object, no prose before or after:
{
  "category": "<one category from the list, or OTHERS>",
  "title": "<short title for the damage scenario, max 10 words>",
  "scene_description": "<one or two sentences describing what the photo shows>"
}`

type classifyResponse struct {
	Category         string `json:"category"`
	Title            string `json:"title"`
	SceneDescription string `json:"scene_description"`
}

// classify runs the first stage: one vision call that assigns the photo a
// damage category, title, and scene description. The raw category string is
// normalized against the reference pack; an unrecognized category maps to
// OTHERS with a warning instead of failing the run.
func (p *Pipeline) classify(ctx context.Context, st *State) error {
	categories := p.ref.Categories()
	prompt := fmt.Sprintf(classifyPromptTemplate, "- "+strings.Join(categories, "\n- "))

	var parsed classifyResponse
	res, err := p.inv.Invoke(ctx, llm.Request{
		Stage:     "classify",
		System:    classifySystemPrompt,
		Prompt:    prompt,
		Image:     &st.Image,
		MaxTokens: classifyMaxTokens,
		Decode: func(raw string) error {
			parsed = classifyResponse{}
			if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
				return err
			}
			if strings.TrimSpace(parsed.Category) == "" {
				return eris.New("missing category")
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	st.recordExchange("classify", res)

	matched := p.ref.MatchCategory(parsed.Category)
	if matched == refdata.CategoryOthers && !strings.EqualFold(strings.TrimSpace(parsed.Category), refdata.CategoryOthers) {
		zap.L().Warn("classifier returned unknown category",
			zap.String("run_id", st.RunID),
			zap.String("raw_category", parsed.Category),
		)
		st.note("classify", fmt.Sprintf("unknown category %q mapped to %s", parsed.Category, refdata.CategoryOthers))
	}

	st.Classification.Category = matched
	st.Classification.Title = strings.TrimSpace(parsed.Title)
	st.Classification.SceneDescription = strings.TrimSpace(parsed.SceneDescription)
	if st.Classification.Title == "" {
		st.Classification.Title = "Unspecified vehicle damage"
	}

	zap.L().Info("photo classified",
		zap.String("run_id", st.RunID),
		zap.String("category", matched),
		zap.String("title", st.Classification.Title),
		zap.String("model", res.Model),
	)
	return nil
}
