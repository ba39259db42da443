package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/policyscore/internal/aggregate"
	"github.com/danielpatrickdp/policyscore/internal/confidence"
	"github.com/danielpatrickdp/policyscore/internal/contract"
	"github.com/danielpatrickdp/policyscore/internal/penalty"
)

var tracer = otel.Tracer("policyscore.hierarchy")

var (
	levelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "policyscore",
		Subsystem: "hierarchy",
		Name:      "level_duration_seconds",
		Help:      "Time to aggregate one level of the hierarchy.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"level"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policyscore",
		Subsystem: "hierarchy",
		Name:      "runs_total",
		Help:      "Hierarchical roll-ups by outcome.",
	}, []string{"outcome"})
)

// #region aggregator
// Aggregator rolls evidence up the questionnaire tree.
type Aggregator struct {
	schema         *Schema
	config         Config
	clock          func() time.Time
	measureVersion string
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock injects the time source used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) { a.clock = clock }
}

// WithMeasureVersion records the fuzzy measure version in provenance.
func WithMeasureVersion(v string) Option {
	return func(a *Aggregator) { a.measureVersion = v }
}

// NewAggregator creates a roll-up over schema.
func NewAggregator(schema *Schema, config Config, opts ...Option) *Aggregator {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	a := &Aggregator{schema: schema, config: config, clock: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// child is one input to a group at the next level.
type child struct {
	id     string
	parent string
	value  float64
}

// Run aggregates evidence bottom-up: MICRO → DIMENSION → AREA → CLUSTER →
// MACRO. trust scales question weights; a question absent from trust keeps
// its base weight. Levels are strict barriers and ctx is only consulted
// between them. In abort mode the first violation is returned; otherwise
// violations are recorded on the run and aggregation continues with the
// children that are present.
func (a *Aggregator) Run(ctx context.Context, evidence []EvidenceScore, trust map[string]float64) (*Run, error) {
	mode := contract.ModeRecord
	if a.config.AbortOnViolation {
		mode = contract.ModeAbort
	}
	c := contract.New(mode)
	est := confidence.NewEstimator(a.config.Bootstrap)
	eng := penalty.NewEngine(a.config.Penalty)

	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: a.clock(),
		Levels:    make(map[Level][]AggregateScore, len(Levels())),
	}
	log := clog.FromContext(ctx).With("run_id", run.ID, "schema", a.schema.Version)
	ctx, span := tracer.Start(ctx, "hierarchy.Aggregator.Run",
		trace.WithAttributes(attribute.String("run_id", run.ID), attribute.Int("evidence", len(evidence))))
	defer span.End()

	fail := func(err error) (*Run, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		runsTotal.WithLabelValues("error").Inc()
		run.Violations = sortViolations(c.Violations())
		return run, err
	}

	micro, children, err := a.micro(run, c, evidence)
	if err != nil {
		return fail(fmt.Errorf("aggregate %s: %w", LevelMicro, err))
	}
	run.Levels[LevelMicro] = micro

	for _, level := range Levels()[1:] {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("aggregate %s: %w", level, err))
		}
		start := time.Now()
		scores, err := a.level(ctx, run, level, children, trust, c, est, eng)
		levelDuration.WithLabelValues(string(level)).Observe(time.Since(start).Seconds())
		if err != nil {
			return fail(fmt.Errorf("aggregate %s: %w", level, err))
		}
		run.Levels[level] = scores
		log.With("level", string(level), "groups", len(scores)).Debug("level complete")

		children = children[:0:0]
		for _, s := range scores {
			children = append(children, child{id: s.GroupID, parent: s.ParentID, value: s.Value})
		}
	}

	if macro := run.Levels[LevelMacro]; len(macro) == 1 {
		run.Macro = &macro[0]
	}
	run.Violations = sortViolations(c.Violations())
	run.FinishedAt = a.clock()
	runsTotal.WithLabelValues("ok").Inc()
	if run.Macro != nil {
		log.With("macro", run.Macro.Value, "violations", len(run.Violations)).Info("roll-up complete")
	} else {
		log.With("violations", len(run.Violations)).Warn("roll-up produced no macro score")
	}
	return run, nil
}

// micro validates the evidence and turns it into MICRO scores. Orphans and
// duplicates are surfaced through a stream-wide hermeticity check; only
// the first occurrence of a question is kept.
func (a *Aggregator) micro(run *Run, c *contract.Contract, evidence []EvidenceScore) ([]AggregateScore, []child, error) {
	ids := make([]string, len(evidence))
	for i, e := range evidence {
		ids[i] = e.QuestionID
	}
	if d := contract.DiagnoseHermeticity(ids, a.schema.Groups(LevelMicro)); len(d.ExtraIDs) > 0 || len(d.DuplicateIDs) > 0 {
		if _, err := a.hermeticity(c, string(LevelMicro), ids, a.schema.Groups(LevelMicro)); err != nil {
			return nil, nil, err
		}
	}

	seen := make(map[string]bool, len(evidence))
	var scores []AggregateScore
	var children []child
	for _, e := range evidence {
		parent, ok := a.schema.Parent(LevelMicro, e.QuestionID)
		if !ok || seen[e.QuestionID] {
			continue
		}
		seen[e.QuestionID] = true

		value := e.Score
		if _, err := c.ValidateScoreBounds(e.QuestionID, value, contract.RawScale); err != nil {
			return nil, nil, err
		}
		value = clampScale(value, contract.RawScale)

		scores = append(scores, AggregateScore{
			ID:         uuid.NewString(),
			Level:      LevelMicro,
			GroupID:    e.QuestionID,
			ParentID:   parent,
			Value:      value,
			Normalized: value / contract.RawScale.Max,
			Bounds:     contract.RawScale,
			Violations: c.ViolationsFor(e.QuestionID),
			Provenance: a.provenance(run, nil, nil),
		})
		children = append(children, child{id: e.QuestionID, parent: parent, value: value})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].GroupID < scores[j].GroupID })
	sort.Slice(children, func(i, j int) bool { return children[i].id < children[j].id })
	return scores, children, nil
}

// level aggregates every group of one level in parallel. Wait is the barrier.
func (a *Aggregator) level(
	ctx context.Context,
	run *Run,
	level Level,
	children []child,
	trust map[string]float64,
	c *contract.Contract,
	est *confidence.Estimator,
	eng *penalty.Engine,
) ([]AggregateScore, error) {
	_, span := tracer.Start(ctx, "hierarchy.Aggregator.level",
		trace.WithAttributes(attribute.String("level", string(level))))
	defer span.End()

	byParent := make(map[string][]child)
	for _, ch := range children {
		byParent[ch.parent] = append(byParent[ch.parent], ch)
	}

	agg := aggregate.Standard(c, est)
	if level == LevelCluster {
		agg = aggregate.Penalized(c, est, eng)
	}

	groups := a.schema.Groups(level)
	results := make([]*AggregateScore, len(groups))

	var g errgroup.Group
	g.SetLimit(a.config.Concurrency)
	for i, groupID := range groups {
		g.Go(func() error {
			s, err := a.group(run, level, groupID, byParent[groupID], trust, agg, c, eng)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make([]AggregateScore, 0, len(groups))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

// group aggregates one group. A group with no children at all is skipped
// after its hermeticity breach is recorded.
func (a *Aggregator) group(
	run *Run,
	level Level,
	groupID string,
	kids []child,
	trust map[string]float64,
	agg aggregate.Aggregator,
	c *contract.Contract,
	eng *penalty.Engine,
) (*AggregateScore, error) {
	expected := a.schema.Children(level, groupID)
	if len(kids) == 0 {
		if _, err := a.hermeticity(c, groupID, nil, expected); err != nil {
			return nil, err
		}
		return nil, nil
	}

	sort.Slice(kids, func(i, j int) bool { return kids[i].id < kids[j].id })
	ids := make([]string, len(kids))
	scores := make([]float64, len(kids))
	for i, k := range kids {
		ids[i] = k.id
		scores[i] = k.value
	}
	if a.config.AbortOnInsufficient {
		if _, err := c.RequireHermeticity(groupID, ids, expected); err != nil {
			return nil, err
		}
	}
	weights := a.weights(level, ids, trust)

	out, err := agg.Aggregate(aggregate.Input{
		GroupID:     groupID,
		ChildIDs:    ids,
		Scores:      scores,
		Weights:     weights,
		ExpectedIDs: expected,
		Scale:       contract.RawScale,
	})
	if err != nil {
		var ve *contract.ViolationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, fmt.Errorf("group %s: %w", groupID, err)
	}

	parent, _ := a.schema.Parent(level, groupID)
	s := &AggregateScore{
		ID:                 uuid.NewString(),
		Level:              level,
		GroupID:            groupID,
		ParentID:           parent,
		Value:              out.Value,
		Normalized:         out.Value / contract.RawScale.Max,
		Bounds:             contract.RawScale,
		PenaltyApplied:     out.PenaltyApplied,
		Dispersion:         out.Dispersion,
		ConfidenceInterval: out.Interval,
		Diagnosis:          out.Diagnosis,
		Provenance:         a.provenance(run, ids, weights),
	}

	if level == LevelCluster || level == LevelMacro {
		m := out.Dispersion
		if m == nil {
			dm := eng.ComputeDispersionMetrics(scores)
			m = &dm
		}
		coherence := penalty.Coherence(*m)
		if _, err := c.ValidateCoherenceBounds(groupID, coherence); err != nil {
			return nil, err
		}
		s.Coherence = &coherence
	}
	s.Violations = c.ViolationsFor(groupID)
	return s, nil
}

// hermeticity checks a child set, failing in either contract mode when
// incomplete groups must abort.
func (a *Aggregator) hermeticity(c *contract.Contract, groupID string, actual, expected []string) (contract.Diagnosis, error) {
	if a.config.AbortOnInsufficient {
		return c.RequireHermeticity(groupID, actual, expected)
	}
	return c.ValidateHermeticity(groupID, actual, expected)
}

// weights returns normalised base weights, scaled by trust at the question
// level. If trust zeroes every weight the base weights are used.
func (a *Aggregator) weights(level Level, ids []string, trust map[string]float64) []float64 {
	childLvl := childLevel(level)
	raw := make([]float64, len(ids))
	var sum float64
	for i, id := range ids {
		w := a.schema.Weight(childLvl, id)
		if childLvl == LevelMicro && trust != nil {
			if t, ok := trust[id]; ok {
				w *= t
			}
		}
		raw[i] = w
		sum += w
	}
	if sum <= 0 {
		sum = 0
		for i, id := range ids {
			raw[i] = a.schema.Weight(childLvl, id)
			sum += raw[i]
		}
	}
	if sum <= 0 {
		for i := range raw {
			raw[i] = 1
		}
		sum = float64(len(raw))
	}
	for i := range raw {
		raw[i] /= sum
	}
	return raw
}

func (a *Aggregator) provenance(run *Run, ids []string, weights []float64) Provenance {
	return Provenance{
		RunID:          run.ID,
		Inputs:         ids,
		Weights:        weights,
		Timestamp:      a.clock(),
		SchemaVersion:  a.schema.Version,
		MeasureVersion: a.measureVersion,
	}
}

// #endregion aggregator

// #region helpers
func clampScale(v float64, s contract.Scale) float64 {
	if math.IsNaN(v) || v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

func sortViolations(vs []contract.Violation) []contract.Violation {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].GroupID != vs[j].GroupID {
			return vs[i].GroupID < vs[j].GroupID
		}
		return vs[i].InvariantID < vs[j].InvariantID
	})
	return vs
}

// #endregion helpers
