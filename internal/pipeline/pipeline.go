package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-vision/internal/llm"
	"github.com/sells-group/claims-vision/internal/model"
	"github.com/sells-group/claims-vision/internal/refdata"
	"github.com/sells-group/claims-vision/internal/store"
)

// Pipeline wires the assessment stages to their collaborators. One
// Pipeline serves many runs; all per-run data lives in State.
type Pipeline struct {
	inv   llm.Invoker
	ref   *refdata.Store
	store store.Store
}

// New creates a Pipeline. The store may be nil, in which case runs are
// not persisted.
func New(inv llm.Invoker, ref *refdata.Store, st store.Store) *Pipeline {
	return &Pipeline{inv: inv, ref: ref, store: st}
}

// Run assesses a single claim photo end to end and returns the report.
// The image must already be normalized (JPEG, bounded size) and base64
// encoded. Stage errors abort the run; an unusable photo is not an error
// and produces a skipped report instead.
func (p *Pipeline) Run(ctx context.Context, source string, image llm.Image) (*model.Report, error) {
	st := newState(source, image)
	log := zap.L().With(zap.String("run_id", st.RunID), zap.String("source", source))
	log.Info("assessment starting")

	if p.store != nil {
		if err := p.store.CreateRun(ctx, st.RunID, source); err != nil {
			log.Warn("failed to create run record", zap.Error(err))
		}
	}

	report, err := p.execute(ctx, st, log)
	if err != nil {
		p.setFinal(ctx, st.RunID, model.RunStatusFailed, nil, err, log)
		return nil, err
	}

	status := model.RunStatusComplete
	if report.Skipped {
		status = model.RunStatusSkipped
	}
	p.setFinal(ctx, st.RunID, status, report, nil, log)

	log.Info("assessment finished",
		zap.Bool("skipped", report.Skipped),
		zap.Int("findings", len(report.Findings)),
		zap.Int("total_tokens", report.TotalTokens),
		zap.Float64("total_cost", report.TotalCost),
		zap.Duration("elapsed", time.Since(st.StartedAt)),
	)
	return report, nil
}

func (p *Pipeline) execute(ctx context.Context, st *State, log *zap.Logger) (*model.Report, error) {
	if err := p.runStage(ctx, st, "classify", PhaseClassified, model.RunStatusClassifying, p.classify); err != nil {
		return nil, err
	}
	if err := p.runStage(ctx, st, "validate", "", model.RunStatusValidating, p.validate); err != nil {
		return nil, err
	}

	// The single branch point: an unusable photo exits through SKIPPED.
	if st.ShouldSkip {
		if err := st.advance(PhaseInvalid); err != nil {
			return nil, err
		}
		if err := st.advance(PhaseSkipped); err != nil {
			return nil, err
		}
		log.Info("assessment skipped", zap.String("reason", st.FilterResult.Reason))
		return BuildReport(st), nil
	}
	if err := st.advance(PhaseValid); err != nil {
		return nil, err
	}

	if err := p.runStage(ctx, st, "analyze", PhaseAnalyzed, model.RunStatusAnalyzing, p.analyze); err != nil {
		return nil, err
	}
	if err := p.runStage(ctx, st, "decide", PhaseRecommended, model.RunStatusDeciding, p.decide); err != nil {
		return nil, err
	}
	if err := p.runStage(ctx, st, "actions", PhaseActioned, model.RunStatusDeciding, p.actions); err != nil {
		return nil, err
	}

	return BuildReport(st), nil
}

// runStage executes one stage, advances the state machine on success, and
// mirrors progress to the run store.
func (p *Pipeline) runStage(ctx context.Context, st *State, name string, to Phase, status model.RunStatus, fn func(context.Context, *State) error) error {
	if p.store != nil {
		if err := p.store.UpdateRunStatus(ctx, st.RunID, status); err != nil {
			zap.L().Warn("failed to update run status",
				zap.String("run_id", st.RunID),
				zap.String("stage", name),
				zap.Error(err),
			)
		}
	}

	start := time.Now()
	if err := fn(ctx, st); err != nil {
		zap.L().Error("stage failed",
			zap.String("run_id", st.RunID),
			zap.String("stage", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return eris.Wrapf(err, "pipeline: %s stage", name)
	}
	zap.L().Debug("stage complete",
		zap.String("run_id", st.RunID),
		zap.String("stage", name),
		zap.Duration("elapsed", time.Since(start)),
	)

	if to != "" {
		if err := st.advance(to); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) setFinal(ctx context.Context, runID string, status model.RunStatus, report *model.Report, runErr error, log *zap.Logger) {
	if p.store == nil {
		return
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := p.store.CompleteRun(ctx, runID, status, report, errMsg); err != nil {
		log.Warn("failed to persist run result", zap.Error(err))
	}
}
