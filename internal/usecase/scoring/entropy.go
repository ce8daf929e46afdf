package scoring

import (
	"math"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// ShannonEntropy computes the character-level Shannon entropy of s in
// bits. Algorithmically generated (DGA) domains have flatter character
// distributions than human-chosen names and therefore higher entropy.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}

	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}

	entropy := 0.0
	for _, count := range freq {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// AnalyzeDomain runs the entropy heuristic over the full domain name and
// flags it suspicious above the threshold. Independent of any external
// source.
func AnalyzeDomain(domain string, threshold float64) *entity.DomainAnalysis {
	if domain == "" {
		return nil
	}

	entropy := ShannonEntropy(domain)
	return &entity.DomainAnalysis{
		Domain:       domain,
		Entropy:      entropy,
		Threshold:    threshold,
		IsSuspicious: entropy > threshold,
	}
}
