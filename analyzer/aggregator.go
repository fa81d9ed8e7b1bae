package analyzer

import "math"

// weightProfile is the weighting variant chosen once per run. Both variants
// renormalise over the sub-scores actually present.
type weightProfile interface {
	effectiveWeights(scores Scores) map[SubScore]float64
}

// withAI weights every present sub-score including the qualitative one
type withAI struct {
	weights map[SubScore]float64
}

// withoutAI spreads the qualitative weight over the deterministic sub-scores
type withoutAI struct {
	weights map[SubScore]float64
}

func (p withAI) effectiveWeights(scores Scores) map[SubScore]float64 {
	return redistribute(p.weights, scores, nil)
}

func (p withoutAI) effectiveWeights(scores Scores) map[SubScore]float64 {
	return redistribute(p.weights, scores, map[SubScore]bool{SubScoreAIAnalysis: true})
}

func selectWeightProfile(cfg WeightConfig, aiPresent bool) weightProfile {
	if aiPresent {
		return withAI{weights: cfg.Weights}
	}
	return withoutAI{weights: cfg.Weights}
}

// redistribute drops absent or excluded sub-scores and scales the remaining
// weights proportionally so they sum to 1.
func redistribute(base map[SubScore]float64, scores Scores, exclude map[SubScore]bool) map[SubScore]float64 {
	out := make(map[SubScore]float64)
	total := 0.0
	for _, name := range subScoreOrder {
		if exclude[name] {
			continue
		}
		if _, ok := scores.Get(name); !ok {
			continue
		}
		out[name] = base[name]
		total += base[name]
	}
	if total <= 0 {
		for name := range out {
			out[name] = 1 / float64(len(out))
		}
		return out
	}
	for name, w := range out {
		out[name] = w / total
	}
	return out
}

// aggregate computes the overall score and its breakdown. The result is kept
// inside [min, max] of the sub-scores that carry weight.
func aggregate(scores Scores, profile weightProfile) (int, []ScoreContribution) {
	weights := profile.effectiveWeights(scores)
	breakdown := []ScoreContribution{}
	sum := 0.0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, name := range subScoreOrder {
		w, ok := weights[name]
		if !ok {
			continue
		}
		s, _ := scores.Get(name)
		sum += w * float64(s)
		if w > 0 {
			lo = math.Min(lo, float64(s))
			hi = math.Max(hi, float64(s))
		}
		breakdown = append(breakdown, ScoreContribution{
			Name:         name,
			Score:        s,
			Weight:       math.Round(w*10000) / 10000,
			Contribution: round2(w * float64(s)),
		})
	}
	if math.IsInf(lo, 1) {
		return 0, breakdown
	}
	overall := math.Min(math.Max(math.Round(sum), lo), hi)
	return int(overall), breakdown
}
