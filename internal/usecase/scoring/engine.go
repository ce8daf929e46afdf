package scoring

import (
	"fmt"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// Config holds every tunable scoring constant. Tests parametrize these
// instead of assuming the defaults.
type Config struct {
	// Weights maps source name to its weight in (0,1]. Unknown sources
	// fall back to DefaultWeight.
	Weights       map[string]float64
	DefaultWeight float64

	// DecisiveSources can force a CRITICAL verdict with a single hit.
	DecisiveSources map[string]bool
	// DecisiveFloor is the minimum source score counted as a decisive hit.
	DecisiveFloor int

	// Corroboration: every additional source at or above CorroborationMin
	// adds CorroborationBonus, capped at CorroborationCap.
	CorroborationBonus int
	CorroborationMin   int
	CorroborationCap   int

	// Derived-signal deltas.
	EntropyThreshold float64
	EntropyDelta     int
	FamilyDelta      int
	FamilyCap        int
	TacticDelta      int
	TacticCap        int
}

// DefaultConfig returns the production scoring constants.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			"usom":              1.0,
			"abuseipdb":         0.9,
			"virustotal":        0.9,
			"threatfox":         0.85,
			"urlhaus":           0.85,
			"alienvault_otx":    0.7,
			"shodan_internetdb": 0.5,
		},
		DefaultWeight:      0.6,
		DecisiveSources:    map[string]bool{"usom": true},
		DecisiveFloor:      75,
		CorroborationBonus: 5,
		CorroborationMin:   50,
		CorroborationCap:   15,
		EntropyThreshold:   3.5,
		EntropyDelta:       15,
		FamilyDelta:        10,
		FamilyCap:          20,
		TacticDelta:        5,
		TacticCap:          15,
	}
}

// Engine folds partial results and derived analyses into one normalized
// score. Scoring never fails: an empty partial set yields the MINIMAL
// default with a single informational factor.
type Engine struct {
	cfg Config
}

// NewEngine creates a scoring engine with the given constants.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine's constants (used by the info endpoint).
func (e *Engine) Config() Config {
	return e.cfg
}

// Score combines per-source sub-scores and derived signals. The base
// combination is a weighted maximum plus a corroboration bonus: one
// strong signal cannot be diluted by silent sources, because absence of
// detection is weak evidence of safety while presence is strong
// evidence of risk. Derived signals add fixed deltas on top, and the
// total is clamped to [0,100]. The caller receives factors already
// sorted by class precedence.
func (e *Engine) Score(ind entity.Indicator, partials []entity.PartialResult, derived Derived) entity.NormalizedScore {
	var factors []entity.ContributingFactor

	if len(partials) == 0 {
		factors = append(factors, entity.ContributingFactor{
			Class: entity.FactorInfo,
			Text:  "no intelligence available for this indicator",
		})
		score := e.applyDerived(0, derived, &factors)
		return e.finalize(score, factors)
	}

	base := 0.0
	decisive := false
	corroborating := 0

	for _, p := range partials {
		weight := e.cfg.DefaultWeight
		if w, ok := e.cfg.Weights[p.Source]; ok {
			weight = w
		}

		weighted := float64(p.Score) * weight
		if weighted > base {
			base = weighted
		}
		if p.Score >= e.cfg.CorroborationMin {
			corroborating++
		}

		if e.cfg.DecisiveSources[p.Source] && p.Score >= e.cfg.DecisiveFloor {
			decisive = true
			factors = append(factors, entity.ContributingFactor{
				Class: entity.FactorCritical,
				Text:  fmt.Sprintf("flagged by decisive source %s (%s)", p.Source, p.Verdict),
			})
			continue
		}

		switch {
		case p.Score >= 75:
			factors = append(factors, entity.ContributingFactor{
				Class: entity.FactorHigh,
				Text:  fmt.Sprintf("%s reports %s (score %d)", p.Source, p.Verdict, p.Score),
			})
		case p.Score >= 40:
			factors = append(factors, entity.ContributingFactor{
				Class: entity.FactorMedium,
				Text:  fmt.Sprintf("%s reports %s (score %d)", p.Source, p.Verdict, p.Score),
			})
		case p.Score > 0:
			factors = append(factors, entity.ContributingFactor{
				Class: entity.FactorInfo,
				Text:  fmt.Sprintf("%s reports weak signal (score %d)", p.Source, p.Score),
			})
		}
	}

	score := int(base + 0.5)

	if extra := corroborating - 1; extra > 0 {
		bonus := extra * e.cfg.CorroborationBonus
		if bonus > e.cfg.CorroborationCap {
			bonus = e.cfg.CorroborationCap
		}
		score += bonus
		factors = append(factors, entity.ContributingFactor{
			Class: entity.FactorInfo,
			Text:  fmt.Sprintf("corroborated by %d sources", corroborating),
		})
	}

	if decisive {
		score = 100
	}

	score = e.applyDerived(score, derived, &factors)
	return e.finalize(score, factors)
}

// applyDerived adds the fixed deltas for entropy, malware families and
// MITRE tactics, emitting one factor per derived signal.
func (e *Engine) applyDerived(score int, derived Derived, factors *[]entity.ContributingFactor) int {
	if da := derived.DomainAnalysis; da != nil && da.IsSuspicious {
		score += e.cfg.EntropyDelta
		*factors = append(*factors, entity.ContributingFactor{
			Class: entity.FactorMedium,
			Text:  fmt.Sprintf("high domain entropy %.2f (threshold %.2f), possible DGA", da.Entropy, da.Threshold),
		})
	}

	if n := len(derived.MalwareFamilies); n > 0 {
		delta := n * e.cfg.FamilyDelta
		if delta > e.cfg.FamilyCap {
			delta = e.cfg.FamilyCap
		}
		score += delta
		for _, family := range derived.MalwareFamilies {
			*factors = append(*factors, entity.ContributingFactor{
				Class: entity.FactorHigh,
				Text:  "associated malware family: " + family,
			})
		}
	}

	if n := len(derived.MitreTactics); n > 0 {
		delta := n * e.cfg.TacticDelta
		if delta > e.cfg.TacticCap {
			delta = e.cfg.TacticCap
		}
		score += delta
		for _, tactic := range derived.MitreTactics {
			*factors = append(*factors, entity.ContributingFactor{
				Class: entity.FactorMedium,
				Text:  "mapped ATT&CK tactic: " + tactic,
			})
		}
	}

	return score
}

// finalize clamps, buckets and orders. Severity is always derived from
// the final score so the two can never disagree.
func (e *Engine) finalize(score int, factors []entity.ContributingFactor) entity.NormalizedScore {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	entity.SortFactors(factors)

	return entity.NormalizedScore{
		FinalScore:          score,
		Severity:            entity.SeverityForScore(score),
		ContributingFactors: factors,
	}
}
