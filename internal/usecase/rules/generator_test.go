package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ugurrates/threat-intel-web/internal/entity"
	"github.com/ugurrates/threat-intel-web/internal/usecase/scoring"
)

func highScore() entity.NormalizedScore {
	return entity.NormalizedScore{FinalScore: 85, Severity: entity.SeverityHigh}
}

func mustIndicator(t *testing.T, raw string) entity.Indicator {
	t.Helper()
	ind, err := entity.ParseIndicator(raw)
	require.NoError(t, err)
	return ind
}

func TestGenerateMinimalSeverityEmitsNoRules(t *testing.T) {
	g := NewGenerator()
	rules := g.Generate(mustIndicator(t, "192.0.2.1"),
		entity.NormalizedScore{FinalScore: 5, Severity: entity.SeverityMinimal}, scoring.Derived{})

	assert.Zero(t, rules.Count())
	// Platforms are present but empty, never nil, for a stable JSON shape.
	assert.NotNil(t, rules.KQL)
	assert.NotNil(t, rules.YARA)
}

func TestGenerateHashRules(t *testing.T) {
	g := NewGenerator()
	hash := strings.Repeat("ab", 32)
	rules := g.Generate(mustIndicator(t, hash), highScore(), scoring.Derived{})

	require.Len(t, rules.YARA, 1)
	assert.Contains(t, rules.YARA[0], `import "hash"`)
	assert.Contains(t, rules.YARA[0], `hash.sha256(0, filesize) == "`+hash+`"`)
	assert.Contains(t, rules.YARA[0], "HIGH")

	require.Len(t, rules.KQL, 1)
	assert.Contains(t, rules.KQL[0], `SHA256 == "`+hash+`"`)

	require.Len(t, rules.SPL, 1)
	assert.Contains(t, rules.SPL[0], hash)

	require.Len(t, rules.XQL, 1)
	assert.Contains(t, rules.XQL[0], `action_file_sha256 = "`+hash+`"`)

	require.Len(t, rules.Sigma, 1)
	assert.Contains(t, rules.Sigma[0], "category: file_event")
	assert.Contains(t, rules.Sigma[0], "level: high")
}

func TestGenerateMD5UsesMD5Fields(t *testing.T) {
	g := NewGenerator()
	hash := strings.Repeat("cd", 16)
	rules := g.Generate(mustIndicator(t, hash), highScore(), scoring.Derived{})

	assert.Contains(t, rules.YARA[0], "hash.md5")
	assert.Contains(t, rules.KQL[0], `MD5 == "`+hash+`"`)
}

func TestGenerateNetworkRulesAcrossAllPlatforms(t *testing.T) {
	g := NewGenerator()
	rules := g.Generate(mustIndicator(t, "198.51.100.7"), highScore(), scoring.Derived{})

	assert.Len(t, rules.KQL, 1)
	assert.Len(t, rules.SPL, 1)
	assert.Len(t, rules.Sigma, 1)
	assert.Len(t, rules.XQL, 1)
	assert.Len(t, rules.YARA, 1)

	assert.Contains(t, rules.KQL[0], `RemoteIP == "198.51.100.7"`)
	assert.Contains(t, rules.SPL[0], `dest_ip="198.51.100.7"`)
	assert.Contains(t, rules.XQL[0], `action_remote_ip = "198.51.100.7"`)
	assert.Contains(t, rules.Sigma[0], "destination.ip: '198.51.100.7'")
	assert.Contains(t, rules.YARA[0], `$ioc = "198.51.100.7"`)
}

func TestGenerateDomainRulesUseDNSShapes(t *testing.T) {
	g := NewGenerator()
	rules := g.Generate(mustIndicator(t, "evil.example"), highScore(), scoring.Derived{})

	assert.Contains(t, rules.Sigma[0], "category: dns_query")
	assert.Contains(t, rules.XQL[0], `dns_query_name = "evil.example"`)
}

func TestGenerateEmbedsIndicatorVerbatimAndBasis(t *testing.T) {
	g := NewGenerator()
	score := entity.NormalizedScore{FinalScore: 92, Severity: entity.SeverityCritical}
	derived := scoring.Derived{MalwareFamilies: []string{"emotet"}}
	rules := g.Generate(mustIndicator(t, "https://evil.example/dropper"), score, derived)

	for _, set := range [][]string{rules.KQL, rules.SPL, rules.XQL} {
		require.Len(t, set, 1)
		assert.Contains(t, set[0], "https://evil.example/dropper", "indicator embedded verbatim")
		assert.Contains(t, set[0], "CRITICAL", "severity basis embedded")
	}
	assert.Contains(t, rules.KQL[0], "families=emotet")
}

func TestYaraRuleNameIsValidIdentifier(t *testing.T) {
	g := NewGenerator()
	rules := g.Generate(mustIndicator(t, "sub.domain-with-dash.example"), highScore(), scoring.Derived{})

	require.Len(t, rules.YARA, 1)
	// First line after the optional import is "rule <name>".
	assert.Contains(t, rules.YARA[0], "rule ioc_domain_sub_domain_with_dash_example")
	assert.NotContains(t, rules.YARA[0][strings.Index(rules.YARA[0], "rule "):strings.Index(rules.YARA[0], "{")], "-")
}
