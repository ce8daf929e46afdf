package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

func testConfig() Config {
	cfg := DefaultConfig()
	// Tests pin the constants explicitly instead of trusting defaults.
	cfg.Weights = map[string]float64{
		"cert_blocklist": 1.0,
		"source_a":       0.9,
		"source_b":       0.8,
		"source_c":       0.5,
	}
	cfg.DecisiveSources = map[string]bool{"cert_blocklist": true}
	cfg.DecisiveFloor = 75
	cfg.CorroborationBonus = 5
	cfg.CorroborationMin = 50
	cfg.CorroborationCap = 15
	cfg.EntropyThreshold = 3.5
	cfg.EntropyDelta = 15
	cfg.FamilyDelta = 10
	cfg.FamilyCap = 20
	cfg.TacticDelta = 5
	cfg.TacticCap = 15
	return cfg
}

func mustIndicator(t *testing.T, raw string) entity.Indicator {
	t.Helper()
	ind, err := entity.ParseIndicator(raw)
	require.NoError(t, err)
	return ind
}

func TestScoreEmptyPartialsYieldsMinimal(t *testing.T) {
	e := NewEngine(testConfig())
	score := e.Score(mustIndicator(t, "192.0.2.1"), nil, Derived{})

	assert.Equal(t, 0, score.FinalScore)
	assert.Equal(t, entity.SeverityMinimal, score.Severity)
	require.Len(t, score.ContributingFactors, 1)
	assert.Contains(t, score.ContributingFactors[0].Text, "no intelligence available")
}

func TestScoreDecisiveSourceForcesCritical(t *testing.T) {
	e := NewEngine(testConfig())

	// One decisive hit, every other source silent.
	partials := []entity.PartialResult{
		{Source: "cert_blocklist", Score: 100, Verdict: "blocklisted"},
		{Source: "source_a", Score: 0, Verdict: "clean"},
		{Source: "source_b", Score: 0, Verdict: "clean"},
	}

	score := e.Score(mustIndicator(t, "evil.example"), partials, Derived{})

	assert.Equal(t, 100, score.FinalScore)
	assert.Equal(t, entity.SeverityCritical, score.Severity)
	require.NotEmpty(t, score.ContributingFactors)
	assert.Equal(t, entity.FactorCritical, score.ContributingFactors[0].Class,
		"decisive factor must sort first")
}

func TestScoreDecisiveSourceBelowFloorIsNotDecisive(t *testing.T) {
	e := NewEngine(testConfig())

	partials := []entity.PartialResult{
		{Source: "cert_blocklist", Score: 40, Verdict: "suspicious"},
	}

	score := e.Score(mustIndicator(t, "evil.example"), partials, Derived{})
	assert.NotEqual(t, 100, score.FinalScore)
	assert.NotEqual(t, entity.SeverityCritical, score.Severity)
}

func TestScoreWeightedMaxResistsDilution(t *testing.T) {
	e := NewEngine(testConfig())

	// One strong signal among silent sources: a plain average would give
	// 90*0.9/4 = 20, but the weighted max keeps the strong signal intact.
	partials := []entity.PartialResult{
		{Source: "source_a", Score: 90, Verdict: "malicious"},
		{Source: "source_b", Score: 0, Verdict: "clean"},
		{Source: "source_c", Score: 0, Verdict: "clean"},
		{Source: "other", Score: 0, Verdict: "clean"},
	}

	score := e.Score(mustIndicator(t, "192.0.2.1"), partials, Derived{})
	assert.Equal(t, 81, score.FinalScore) // 90 * 0.9
	assert.Equal(t, entity.SeverityHigh, score.Severity)
}

func TestScoreCorroborationBonus(t *testing.T) {
	e := NewEngine(testConfig())

	partials := []entity.PartialResult{
		{Source: "source_a", Score: 80, Verdict: "malicious"},
		{Source: "source_b", Score: 70, Verdict: "malicious"},
		{Source: "source_c", Score: 60, Verdict: "suspicious"},
	}

	score := e.Score(mustIndicator(t, "192.0.2.1"), partials, Derived{})
	// base = 80*0.9 = 72, plus 2 extra corroborating sources * 5 = 82.
	assert.Equal(t, 82, score.FinalScore)
}

func TestScoreCorroborationBonusIsCapped(t *testing.T) {
	cfg := testConfig()
	cfg.CorroborationCap = 5
	e := NewEngine(cfg)

	partials := []entity.PartialResult{
		{Source: "source_a", Score: 80},
		{Source: "source_b", Score: 80},
		{Source: "source_c", Score: 80},
		{Source: "x", Score: 80},
		{Source: "y", Score: 80},
	}

	score := e.Score(mustIndicator(t, "192.0.2.1"), partials, Derived{})
	assert.Equal(t, 77, score.FinalScore) // 80*0.9=72 + capped 5
}

func TestScoreDerivedDeltas(t *testing.T) {
	e := NewEngine(testConfig())

	derived := Derived{
		MalwareFamilies: []string{"emotet", "qakbot", "trickbot"}, // 3*10 capped at 20
		MitreTactics:    []string{"TA0011 Command and Control"},   // +5
		DomainAnalysis: &entity.DomainAnalysis{
			Entropy: 3.9, Threshold: 3.5, IsSuspicious: true, // +15
		},
	}

	partials := []entity.PartialResult{{Source: "source_c", Score: 40, Verdict: "suspicious"}}

	score := e.Score(mustIndicator(t, "x7q9z1.example"), partials, derived)
	// base 40*0.5=20, +15 entropy, +20 families (capped), +5 tactic = 60.
	assert.Equal(t, 60, score.FinalScore)
	assert.Equal(t, entity.SeverityMedium, score.Severity)
}

func TestScoreEntropyAloneOnCleanDomain(t *testing.T) {
	e := NewEngine(testConfig())

	derived := Derived{
		DomainAnalysis: &entity.DomainAnalysis{
			Entropy: 3.6, Threshold: 3.5, IsSuspicious: true,
		},
	}

	score := e.Score(mustIndicator(t, "x7q9z1.example"), nil, derived)
	assert.Equal(t, 15, score.FinalScore, "score reflects the entropy delta alone")
	assert.Equal(t, entity.SeverityLow, score.Severity)

	var entropyFactor bool
	for _, f := range score.ContributingFactors {
		if f.Class == entity.FactorMedium {
			entropyFactor = true
		}
	}
	assert.True(t, entropyFactor, "entropy must contribute a medium-class factor")
}

func TestScoreClampedToHundred(t *testing.T) {
	e := NewEngine(testConfig())

	partials := []entity.PartialResult{
		{Source: "source_a", Score: 100},
		{Source: "source_b", Score: 100},
		{Source: "source_c", Score: 100},
	}
	derived := Derived{MalwareFamilies: []string{"a", "b", "c"}}

	score := e.Score(mustIndicator(t, "192.0.2.1"), partials, derived)
	assert.Equal(t, 100, score.FinalScore)
	assert.Equal(t, entity.SeverityCritical, score.Severity)
}

func TestScoreFactorOrderingIsObservableContract(t *testing.T) {
	e := NewEngine(testConfig())

	partials := []entity.PartialResult{
		{Source: "source_c", Score: 20, Verdict: "clean"},
		{Source: "cert_blocklist", Score: 100, Verdict: "blocklisted"},
		{Source: "source_a", Score: 80, Verdict: "malicious"},
	}
	derived := Derived{MalwareFamilies: []string{"emotet"}}

	score := e.Score(mustIndicator(t, "evil.example"), partials, derived)

	classes := make([]entity.FactorClass, 0, len(score.ContributingFactors))
	for _, f := range score.ContributingFactors {
		classes = append(classes, f.Class)
	}

	// Non-increasing precedence: critical, then high, then medium/info.
	rank := map[entity.FactorClass]int{
		entity.FactorCritical: 0, entity.FactorHigh: 1,
		entity.FactorMedium: 2, entity.FactorInfo: 3,
	}
	for i := 1; i < len(classes); i++ {
		assert.LessOrEqual(t, rank[classes[i-1]], rank[classes[i]])
	}
}
