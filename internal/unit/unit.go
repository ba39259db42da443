package unit

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/policyscore/internal/layer"
)

// #region evaluator
// Evaluator scores a source document's structural trustworthiness (@u).
type Evaluator struct {
	config      Config
	placeholder map[string]struct{}
	sources     map[string]struct{}
}

// NewEvaluator creates an evaluator with the given configuration.
func NewEvaluator(config Config) *Evaluator {
	e := &Evaluator{
		config:      config,
		placeholder: make(map[string]struct{}, len(config.PlaceholderTerms)),
		sources:     make(map[string]struct{}, len(config.KnownSources)),
	}
	for _, p := range config.PlaceholderTerms {
		e.placeholder[normalize(p)] = struct{}{}
	}
	for _, s := range config.KnownSources {
		e.sources[normalize(s)] = struct{}{}
	}
	return e
}

// Evaluate checks hard gates first, then aggregates the components and
// subtracts the anti-gaming penalty.
func (e *Evaluator) Evaluate(doc Document) Result {
	s, sDetails := e.structure(doc)
	m := e.mandatory(doc)
	i, iDetails := e.indicators(doc)
	p, pDetails, budgetPresent := e.budget(doc)

	details := map[string]float64{}
	for k, v := range sDetails {
		details[k] = v
	}
	for k, v := range iDetails {
		details[k] = v
	}
	for k, v := range pDetails {
		details[k] = v
	}

	components := map[string]float64{
		ComponentStructure:  s,
		ComponentMandatory:  m,
		ComponentIndicators: i,
	}
	// An optional matrix that is absent is left out instead of collapsing
	// the weakest-link mean.
	if budgetPresent || e.config.RequireBudget {
		components[ComponentBudget] = p
	}

	// --- Hard gate pass ---
	var gates []Gate
	if s < e.config.MinStructure {
		gates = append(gates, Gate{
			Type:   GateStructure,
			Reason: fmt.Sprintf("structure score %.4f below %.2f", s, e.config.MinStructure),
		})
	}
	if iDetails["I_struct"] < e.config.MinIndicatorStruct {
		gates = append(gates, Gate{
			Type:   GateIndicatorStruct,
			Reason: fmt.Sprintf("indicator structure %.4f below %.2f", iDetails["I_struct"], e.config.MinIndicatorStruct),
		})
	}
	if e.config.RequireBudget && !budgetPresent {
		gates = append(gates, Gate{
			Type:   GateBudgetMissing,
			Reason: "budget matrix required but absent",
		})
	}
	if budgetPresent && pDetails["P_struct"] < e.config.MinBudgetStruct {
		gates = append(gates, Gate{
			Type:   GateBudgetStruct,
			Reason: fmt.Sprintf("budget structure %.4f below %.2f", pDetails["P_struct"], e.config.MinBudgetStruct),
		})
	}

	gaming := e.gaming(doc)

	if len(gates) > 0 {
		return Result{
			Value:      0,
			Raw:        0,
			Components: components,
			Details:    details,
			Gates:      gates,
			Gaming:     gaming,
			Tier:       TierInsufficient,
		}
	}

	raw := e.aggregate(components)
	value := raw - gaming.Penalty
	if value < 0 {
		value = 0
	}

	return Result{
		Value:      value,
		Raw:        raw,
		Components: components,
		Details:    details,
		Gaming:     gaming,
		Tier:       TierFor(value),
	}
}

// EvaluateLayer wraps Evaluate as a layer score.
func (e *Evaluator) EvaluateLayer(doc Document) layer.Score {
	r := e.Evaluate(doc)
	comps := make(map[string]float64, len(r.Components)+len(r.Details)+1)
	for k, v := range r.Components {
		comps[k] = v
	}
	for k, v := range r.Details {
		comps[k] = v
	}
	comps["gaming_penalty"] = r.Gaming.Penalty

	meta := map[string]string{"document_id": doc.ID, "tier": string(r.Tier)}
	if len(r.Gates) > 0 {
		meta["gate"] = string(r.Gates[0].Type)
	}
	return layer.Score{Layer: layer.Unit, Value: layer.Clamp01(r.Value), Components: comps, Metadata: meta}
}

// TierFor maps a unit score to its quality tier.
func TierFor(v float64) Tier {
	switch {
	case v >= 0.85:
		return TierOutstanding
	case v >= 0.70:
		return TierRobust
	case v >= 0.50:
		return TierMinimum
	default:
		return TierInsufficient
	}
}

// #endregion evaluator

// #region structure
// structure is coverage of the canonical blocks averaged with how well the
// present blocks respect canonical order.
func (e *Evaluator) structure(doc Document) (float64, map[string]float64) {
	canon := make(map[string]int, len(e.config.CanonicalBlocks))
	for idx, name := range e.config.CanonicalBlocks {
		canon[normalize(name)] = idx
	}

	type found struct {
		canonIdx int
		position int
	}
	seen := map[int]bool{}
	var present []found
	for _, b := range doc.Blocks {
		idx, ok := canon[normalize(b.Name)]
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		present = append(present, found{canonIdx: idx, position: b.Position})
	}

	if len(canon) == 0 {
		return 0, map[string]float64{"S_coverage": 0, "S_ordering": 0}
	}
	coverage := float64(len(present)) / float64(len(canon))

	var ordering float64
	switch len(present) {
	case 0:
		ordering = 0
	case 1:
		ordering = 1
	default:
		sort.SliceStable(present, func(a, b int) bool { return present[a].position < present[b].position })
		inOrder := 0
		for k := 1; k < len(present); k++ {
			if present[k].canonIdx > present[k-1].canonIdx {
				inOrder++
			}
		}
		ordering = float64(inOrder) / float64(len(present)-1)
	}

	s := 0.5*coverage + 0.5*ordering
	return s, map[string]float64{"S_coverage": coverage, "S_ordering": ordering}
}

// #endregion structure

// #region mandatory
func (e *Evaluator) mandatory(doc Document) float64 {
	tokens := make(map[string]int, len(doc.Sections))
	for _, s := range doc.Sections {
		tokens[normalize(s.Name)] += s.Tokens
	}

	var total, got float64
	for _, rule := range e.config.MandatorySections {
		total += rule.Weight
		n, ok := tokens[normalize(rule.Name)]
		switch {
		case !ok:
		case n >= rule.MinTokens:
			got += rule.Weight
		default:
			got += 0.5 * rule.Weight
		}
	}
	if total == 0 {
		return 1
	}
	return got / total
}

// #endregion mandatory

// #region indicators
func (e *Evaluator) indicators(doc Document) (float64, map[string]float64) {
	if doc.Indicators == nil || len(doc.Indicators.Rows) == 0 {
		return 0, map[string]float64{"I_struct": 0, "I_link": 0, "I_logic": 0}
	}

	programs := make(map[string]struct{}, len(doc.ProgramCodes))
	for _, p := range doc.ProgramCodes {
		programs[normalize(p)] = struct{}{}
	}

	rows := doc.Indicators.Rows
	var structured, linked, logical int
	for _, r := range rows {
		if e.filled(r.Name) && e.filled(r.Baseline) && e.filled(r.Target) && e.filled(r.Unit) && e.filled(r.Source) {
			structured++
		}
		if e.filled(r.LinkedProgram) {
			if len(programs) == 0 {
				linked++
			} else if _, ok := programs[normalize(r.LinkedProgram)]; ok {
				linked++
			}
		}
		_, bOK := parseNumber(r.Baseline)
		_, tOK := parseNumber(r.Target)
		if bOK && tOK && r.BaselineYear > 0 && r.TargetYear > r.BaselineYear {
			logical++
		}
	}

	n := float64(len(rows))
	iStruct := float64(structured) / n
	iLink := float64(linked) / n
	iLogic := float64(logical) / n
	return 0.4*iStruct + 0.3*iLink + 0.3*iLogic, map[string]float64{
		"I_struct": iStruct,
		"I_link":   iLink,
		"I_logic":  iLogic,
	}
}

// #endregion indicators

// #region budget
func (e *Evaluator) budget(doc Document) (float64, map[string]float64, bool) {
	if doc.Budget == nil || len(doc.Budget.Rows) == 0 {
		return 0, map[string]float64{"P_presence": 0, "P_struct": 0, "P_consistency": 0}, false
	}

	rows := doc.Budget.Rows
	var structured, consistent int
	for _, r := range rows {
		amount, ok := parseNumber(r.Amount)
		if e.filled(r.ProgramCode) && ok && amount > 0 && e.filled(r.Source) && r.Year > 0 {
			structured++
		}
		inHorizon := r.Year > 0
		if doc.HorizonStart > 0 && doc.HorizonEnd >= doc.HorizonStart {
			inHorizon = r.Year >= doc.HorizonStart && r.Year <= doc.HorizonEnd
		}
		knownSource := e.filled(r.Source)
		if knownSource && len(e.sources) > 0 {
			_, knownSource = e.sources[normalize(r.Source)]
		}
		if inHorizon && knownSource {
			consistent++
		}
	}

	n := float64(len(rows))
	pStruct := float64(structured) / n
	pCons := float64(consistent) / n
	return 0.2*1.0 + 0.4*pStruct + 0.4*pCons, map[string]float64{
		"P_presence":    1,
		"P_struct":      pStruct,
		"P_consistency": pCons,
	}, true
}

// #endregion budget

// #region aggregate
func (e *Evaluator) aggregate(components map[string]float64) float64 {
	names := make([]string, 0, len(components))
	for k := range components {
		names = append(names, k)
	}
	sort.Strings(names)

	var wsum float64
	weights := make(map[string]float64, len(names))
	for _, k := range names {
		w, ok := e.config.Weights[k]
		if !ok {
			w = 1
		}
		weights[k] = w
		wsum += w
	}
	if wsum == 0 {
		return 0
	}

	switch e.config.Method {
	case MethodHarmonic:
		var denom float64
		for _, k := range names {
			x := components[k]
			if x <= 0 {
				return 0
			}
			denom += (weights[k] / wsum) / x
		}
		return layer.Clamp01(1 / denom)
	case MethodArithmetic:
		var sum float64
		for _, k := range names {
			sum += (weights[k] / wsum) * components[k]
		}
		return layer.Clamp01(sum)
	default:
		var logSum float64
		for _, k := range names {
			x := components[k]
			if x <= 0 {
				return 0
			}
			logSum += (weights[k] / wsum) * math.Log(x)
		}
		return layer.Clamp01(math.Exp(logSum))
	}
}

// #endregion aggregate

// #region gaming
// gaming reads placeholder density, near-duplicate numeric values and numeric
// density across all table cells and converts the excess into a penalty.
func (e *Evaluator) gaming(doc Document) Gaming {
	var cells, placeholders int
	var numericExpected, numericFound int
	var values []string

	check := func(cell string, numeric bool) {
		c := strings.TrimSpace(cell)
		if numeric {
			numericExpected++
			if v, ok := parseNumber(c); ok {
				numericFound++
				values = append(values, strconv.FormatFloat(v, 'g', 6, 64))
			}
		}
		if c == "" {
			return
		}
		cells++
		if e.isPlaceholder(c) {
			placeholders++
		}
	}

	if doc.Indicators != nil {
		for _, r := range doc.Indicators.Rows {
			check(r.Name, false)
			check(r.Baseline, true)
			check(r.Target, true)
			check(r.Unit, false)
			check(r.Source, false)
		}
	}
	if doc.Budget != nil {
		for _, r := range doc.Budget.Rows {
			check(r.ProgramCode, false)
			check(r.Amount, true)
			check(r.Source, false)
		}
	}

	g := Gaming{NumericDensity: 1}
	if cells > 0 {
		g.PlaceholderRatio = float64(placeholders) / float64(cells)
	}
	if len(values) >= 3 {
		distinct := make(map[string]struct{}, len(values))
		for _, v := range values {
			distinct[v] = struct{}{}
		}
		g.DuplicateRatio = 1 - float64(len(distinct))/float64(len(values))
	}
	if numericExpected > 0 {
		g.NumericDensity = float64(numericFound) / float64(numericExpected)
	}

	excess := math.Max(0, g.PlaceholderRatio-e.config.PlaceholderTolerance) +
		math.Max(0, g.DuplicateRatio-e.config.DuplicateTolerance) +
		math.Max(0, e.config.MinNumericDensity-g.NumericDensity)
	g.Penalty = math.Min(e.config.MaxGamingPenalty, e.config.GamingWeight*excess)
	return g
}

func (e *Evaluator) isPlaceholder(cell string) bool {
	_, ok := e.placeholder[normalize(cell)]
	return ok
}

// filled reports whether a cell carries real content.
func (e *Evaluator) filled(cell string) bool {
	c := strings.TrimSpace(cell)
	return c != "" && !e.isPlaceholder(c)
}

// #endregion gaming

// #region helpers
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseNumber accepts plain numbers with optional thousands separators,
// currency prefix and percent suffix.
func parseNumber(s string) (float64, bool) {
	c := strings.TrimSpace(s)
	c = strings.TrimPrefix(c, "$")
	c = strings.TrimSuffix(c, "%")
	c = strings.ReplaceAll(c, ",", "")
	c = strings.ReplaceAll(c, " ", "")
	if c == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(c, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// #endregion helpers
