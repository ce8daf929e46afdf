package entity

import (
	"sort"
	"time"
)

// Severity is the five-tier bucketing of a normalized score.
type Severity string

const (
	SeverityMinimal  Severity = "MINIMAL"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityForScore buckets a 0-100 score into a severity tier.
// Boundary values resolve to the higher bucket.
func SeverityForScore(score int) Severity {
	switch {
	case score >= 90:
		return SeverityCritical
	case score >= 70:
		return SeverityHigh
	case score >= 40:
		return SeverityMedium
	case score >= 15:
		return SeverityLow
	default:
		return SeverityMinimal
	}
}

// FactorClass tags a contributing factor with its severity class at
// generation time. Consumers order factors by class, never by
// inspecting the text.
type FactorClass string

const (
	FactorCritical FactorClass = "critical"
	FactorHigh     FactorClass = "high"
	FactorMedium   FactorClass = "medium"
	FactorInfo     FactorClass = "info"
)

var factorRank = map[FactorClass]int{
	FactorCritical: 0,
	FactorHigh:     1,
	FactorMedium:   2,
	FactorInfo:     3,
}

// ContributingFactor is one human-readable reason behind a score.
type ContributingFactor struct {
	Class FactorClass `json:"class"`
	Text  string      `json:"text"`
}

// SortFactors orders factors by class precedence (critical first).
// The sort is stable so factors keep their generation order within a class.
func SortFactors(factors []ContributingFactor) {
	sort.SliceStable(factors, func(i, j int) bool {
		return factorRank[factors[i].Class] < factorRank[factors[j].Class]
	})
}

// NormalizedScore is the composed verdict for an indicator.
// Severity is always SeverityForScore(FinalScore).
type NormalizedScore struct {
	FinalScore          int                  `json:"final_score"`
	Severity            Severity             `json:"severity"`
	ContributingFactors []ContributingFactor `json:"contributing_factors"`
}

// PartialResult is the normalized output of a single intelligence source.
type PartialResult struct {
	Source          string            `json:"source"`
	Score           int               `json:"score"` // 0-100 in the common scale
	RawScore        int               `json:"raw_score"`
	Verdict         string            `json:"verdict"`
	Tags            []string          `json:"tags,omitempty"`
	MalwareFamilies []string          `json:"malware_families,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	FetchedAt       time.Time         `json:"fetched_at"`
}

// DetectionRules holds generated rule text per target platform.
type DetectionRules struct {
	KQL   []string `json:"kql"`
	SPL   []string `json:"spl"`
	Sigma []string `json:"sigma"`
	XQL   []string `json:"xql"`
	YARA  []string `json:"yara"`
}

// Count returns the total number of rules across all platforms.
func (d DetectionRules) Count() int {
	return len(d.KQL) + len(d.SPL) + len(d.Sigma) + len(d.XQL) + len(d.YARA)
}

// DomainAnalysis is the entropy-based DGA heuristic result.
type DomainAnalysis struct {
	Domain       string  `json:"domain"`
	Entropy      float64 `json:"entropy"`
	Threshold    float64 `json:"threshold"`
	IsSuspicious bool    `json:"is_suspicious"`
}

// AnalysisResult is the full composed record stored in the cache and
// returned to callers.
type AnalysisResult struct {
	ID                  string                    `json:"id"`
	IOC                 string                    `json:"ioc"`
	IOCType             Kind                      `json:"ioc_type"`
	NormalizedScore     NormalizedScore           `json:"normalized_score"`
	IntelligenceSources map[string]*PartialResult `json:"intelligence_sources"`
	DetectionRules      DetectionRules            `json:"detection_rules"`
	MalwareFamilies     []string                  `json:"_malware_families"`
	MitreTactics        []string                  `json:"_mitre_tactics"`
	DomainAnalysis      *DomainAnalysis           `json:"_domain_analysis,omitempty"`
	SourceErrors        map[string]string         `json:"source_errors,omitempty"`
	AnalyzedAt          time.Time                 `json:"analyzed_at"`
}
