package prediction

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Predictor is the remote strategy of a Resolver.
type Predictor interface {
	Predict(ctx context.Context, f Features) (*Result, error)
}

// Resolver tries the remote predictor and falls back to the local engine on
// any failure. Callers get a Result in every case.
type Resolver struct {
	remote   Predictor
	fallback *FallbackEngine
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewResolver(remote Predictor, fallback *FallbackEngine, timeout time.Duration, logger zerolog.Logger) *Resolver {
	if fallback == nil {
		fallback = NewFallbackEngine()
	}
	return &Resolver{remote: remote, fallback: fallback, timeout: timeout, logger: logger}
}

// RequestPredictions never fails. A successful empty remote list is returned
// as is with SourceRemote.
func (r *Resolver) RequestPredictions(ctx context.Context, f Features) Result {
	if r.remote == nil {
		return r.fallback.Predict(f.Diagnosis)
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.remote.Predict(callCtx, f)
	if err != nil || res == nil {
		r.logger.Warn().Err(err).Msg("prediction service unavailable, using fallback engine")
		return r.fallback.Predict(f.Diagnosis)
	}

	preds := res.Predictions
	if preds == nil {
		preds = []Prediction{}
	}
	return Result{Predictions: preds, Source: SourceRemote}
}
