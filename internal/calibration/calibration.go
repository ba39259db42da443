package calibration

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/policyscore/internal/choquet"
	"github.com/danielpatrickdp/policyscore/internal/congruence"
	"github.com/danielpatrickdp/policyscore/internal/contextual"
	"github.com/danielpatrickdp/policyscore/internal/layer"
	"github.com/danielpatrickdp/policyscore/internal/meta"
	"github.com/danielpatrickdp/policyscore/internal/registry"
	"github.com/danielpatrickdp/policyscore/internal/unit"
)

var tracer = otel.Tracer("policyscore.calibration")

var calibrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "policyscore",
	Subsystem: "calibration",
	Name:      "requests_total",
	Help:      "Calibration requests by role and outcome.",
}, []string{"role", "outcome"})

// #region calibrator
// Calibrator computes Cal(I) for method invocations. It holds only
// immutable inputs and is safe for concurrent use.
type Calibrator struct {
	reg         *registry.Registry
	measure     choquet.FuzzyMeasure
	units       *unit.Evaluator
	contexts    *contextual.Evaluator
	congruences *congruence.Evaluator
	metas       *meta.Evaluator
	concurrency int
}

// New validates the measure and wires the layer evaluators.
func New(reg *registry.Registry, measure choquet.FuzzyMeasure, config Config) (*Calibrator, error) {
	if reg == nil {
		return nil, errors.New("new calibrator: nil registry")
	}
	if err := measure.Validate(); err != nil {
		return nil, fmt.Errorf("new calibrator: %w", err)
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Calibrator{
		reg:         reg,
		measure:     measure,
		units:       unit.NewEvaluator(config.Unit),
		contexts:    contextual.NewEvaluator(reg),
		congruences: congruence.NewEvaluator(reg),
		metas:       meta.NewEvaluator(config.Meta),
		concurrency: config.Concurrency,
	}, nil
}

// MeasureVersion returns the version of the fuzzy measure in use.
func (c *Calibrator) MeasureVersion() string {
	return c.measure.Version
}

// Calibrate evaluates exactly the layers the request's role requires and
// integrates them. Any failure is a *CalibrationError.
func (c *Calibrator) Calibrate(ctx context.Context, req Request) (Result, error) {
	res, err := c.calibrate(req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		clog.FromContext(ctx).With("method_id", req.MethodID, "role", string(req.Role)).Warnf("calibration failed: %v", err)
	}
	calibrationsTotal.WithLabelValues(string(req.Role), outcome).Inc()
	return res, err
}

func (c *Calibrator) calibrate(req Request) (Result, error) {
	fail := func(id layer.ID, err error) (Result, error) {
		return Result{}, &CalibrationError{MethodID: req.MethodID, Role: req.Role, Layer: id, Err: err}
	}

	desc, ok := c.reg.Get(req.MethodID)
	if !ok {
		return fail("", fmt.Errorf("method %q not in registry %s", req.MethodID, c.reg.Version()))
	}
	required, err := choquet.RequiredLayers(req.Role)
	if err != nil {
		return fail("", err)
	}

	layers := make(map[layer.ID]layer.Score, len(required))
	values := make(map[layer.ID]float64, len(required))
	for _, id := range required {
		s, err := c.evaluate(id, desc, req)
		if err != nil {
			return fail(id, err)
		}
		layers[id] = s
		values[id] = s.Value
	}

	b, err := c.measure.Integrate(req.Role, values)
	if err != nil {
		var missing *choquet.MissingLayerError
		if errors.As(err, &missing) {
			return fail(missing.Layer, err)
		}
		return fail("", err)
	}

	return Result{
		MethodID:        req.MethodID,
		Role:            req.Role,
		Context:         req.Context,
		Value:           b.Value,
		Layers:          layers,
		Breakdown:       b,
		MeasureVersion:  c.measure.Version,
		RegistryVersion: c.reg.Version(),
	}, nil
}

func (c *Calibrator) evaluate(id layer.ID, desc registry.MethodDescriptor, req Request) (layer.Score, error) {
	switch id {
	case layer.Base:
		return layer.EvaluateBase(desc), nil
	case layer.Chain:
		return layer.EvaluateChain(req.Chain), nil
	case layer.Unit:
		if req.Document == nil {
			return layer.Score{}, fmt.Errorf("%w: no document", layer.ErrNotComputable)
		}
		return c.units.EvaluateLayer(*req.Document), nil
	case layer.Question, layer.Dimension, layer.PolicyArea:
		return c.contexts.Evaluate(req.MethodID, id, req.Context)
	case layer.Congruence:
		if req.Ensemble == nil {
			return layer.Score{}, fmt.Errorf("%w: no ensemble", layer.ErrNotComputable)
		}
		e := req.Ensemble
		return c.congruences.EvaluateLayer(e.MethodIDs, e.SubgraphID, e.FusionRule, e.ProvidedInputs), nil
	case layer.Meta:
		return c.metas.Evaluate(desc, req.Manifest)
	default:
		return layer.Score{}, fmt.Errorf("unknown layer %s", id)
	}
}

// #endregion calibrator

// #region batch
// CalibrateBatch calibrates independent requests in parallel. Results keep
// the order of reqs. The first failure cancels the rest and is returned.
func (c *Calibrator) CalibrateBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "calibration.Calibrator.CalibrateBatch",
		trace.WithAttributes(attribute.Int("requests", len(reqs))))
	defer span.End()

	out := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := c.Calibrate(gctx, req)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("calibrate batch: %w", err)
	}

	clog.FromContext(ctx).With("requests", len(reqs), "measure", c.measure.Version).Info("calibration batch complete")
	return out, nil
}

// TrustWeights maps question ids to their calibration value. When several
// results share a question, the mean is used.
func TrustWeights(results []Result) map[string]float64 {
	sum := make(map[string]float64)
	n := make(map[string]int)
	for _, r := range results {
		q := r.Context.QuestionID
		if q == "" {
			continue
		}
		sum[q] += r.Value
		n[q]++
	}
	out := make(map[string]float64, len(sum))
	for q, s := range sum {
		out[q] = s / float64(n[q])
	}
	return out
}

// #endregion batch
