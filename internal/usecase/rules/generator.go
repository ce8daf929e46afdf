package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/entity"
	"github.com/ugurrates/threat-intel-web/internal/usecase/scoring"
)

// Generator synthesizes platform-specific detection rules for a scored
// indicator. Five target syntaxes: KQL (Microsoft Sentinel/Defender),
// SPL (Splunk), Sigma, XQL (Cortex XDR) and YARA.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a rule generator.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate returns rule text per platform. A MINIMAL verdict produces no
// rules: there is nothing actionable to detect.
func (g *Generator) Generate(ind entity.Indicator, score entity.NormalizedScore, derived scoring.Derived) entity.DetectionRules {
	rules := entity.DetectionRules{
		KQL:   []string{},
		SPL:   []string{},
		Sigma: []string{},
		XQL:   []string{},
		YARA:  []string{},
	}

	if score.Severity == entity.SeverityMinimal {
		return rules
	}

	basis := g.basisComment(ind, score, derived)

	if ind.Kind.IsHash() {
		rules.KQL = append(rules.KQL, g.kqlHash(ind, basis))
		rules.SPL = append(rules.SPL, g.splHash(ind, basis))
		rules.Sigma = append(rules.Sigma, g.sigmaHash(ind, score))
		rules.XQL = append(rules.XQL, g.xqlHash(ind, basis))
		rules.YARA = append(rules.YARA, g.yaraHash(ind, score))
		return rules
	}

	rules.KQL = append(rules.KQL, g.kqlNetwork(ind, basis))
	rules.SPL = append(rules.SPL, g.splNetwork(ind, basis))
	rules.Sigma = append(rules.Sigma, g.sigmaNetwork(ind, score))
	rules.XQL = append(rules.XQL, g.xqlNetwork(ind, basis))
	rules.YARA = append(rules.YARA, g.yaraNetwork(ind, score))

	return rules
}

// basisComment builds the one-line provenance comment embedded in each rule.
func (g *Generator) basisComment(ind entity.Indicator, score entity.NormalizedScore, derived scoring.Derived) string {
	parts := []string{
		fmt.Sprintf("severity=%s", score.Severity),
		fmt.Sprintf("score=%d", score.FinalScore),
	}
	if len(derived.MalwareFamilies) > 0 {
		parts = append(parts, "families="+strings.Join(derived.MalwareFamilies, ","))
	}
	return fmt.Sprintf("IOC %s (%s) %s generated=%s",
		ind.Value, ind.Kind, strings.Join(parts, " "), g.now().UTC().Format("2006-01-02"))
}

func (g *Generator) ruleName(ind entity.Indicator) string {
	sanitized := strings.NewReplacer(".", "_", ":", "_", "/", "_", "-", "_").Replace(ind.Value)
	if len(sanitized) > 48 {
		sanitized = sanitized[:48]
	}
	return "ioc_" + string(ind.Kind) + "_" + sanitized
}

func (g *Generator) hashField(kind entity.Kind) string {
	switch kind {
	case entity.KindMD5:
		return "MD5"
	case entity.KindSHA1:
		return "SHA1"
	default:
		return "SHA256"
	}
}

func (g *Generator) kqlHash(ind entity.Indicator, basis string) string {
	return fmt.Sprintf(`// %s
DeviceFileEvents
| where %s == "%s"
| project Timestamp, DeviceName, FileName, FolderPath, InitiatingProcessFileName`,
		basis, g.hashField(ind.Kind), ind.Value)
}

func (g *Generator) kqlNetwork(ind entity.Indicator, basis string) string {
	var predicate string
	switch ind.Kind {
	case entity.KindURL:
		predicate = fmt.Sprintf(`RemoteUrl == "%s"`, ind.Value)
	case entity.KindDomain:
		predicate = fmt.Sprintf(`RemoteUrl has "%s"`, ind.Value)
	default:
		predicate = fmt.Sprintf(`RemoteIP == "%s"`, ind.Value)
	}
	return fmt.Sprintf(`// %s
DeviceNetworkEvents
| where %s
| project Timestamp, DeviceName, RemoteIP, RemotePort, InitiatingProcessFileName`,
		basis, predicate)
}

func (g *Generator) splHash(ind entity.Indicator, basis string) string {
	field := strings.ToLower(g.hashField(ind.Kind))
	return fmt.Sprintf("`comment(\"%s\")`\nindex=* sourcetype=*endpoint* file_hash_%s=\"%s\"\n| stats count by host, file_name, file_path",
		basis, field, ind.Value)
}

func (g *Generator) splNetwork(ind entity.Indicator, basis string) string {
	var predicate string
	switch ind.Kind {
	case entity.KindURL:
		predicate = fmt.Sprintf("url=\"%s\"", ind.Value)
	case entity.KindDomain:
		predicate = fmt.Sprintf("query=\"%s\" OR dest_host=\"%s\"", ind.Value, ind.Value)
	default:
		predicate = fmt.Sprintf("dest_ip=\"%s\" OR src_ip=\"%s\"", ind.Value, ind.Value)
	}
	return fmt.Sprintf("`comment(\"%s\")`\nindex=* %s\n| stats count by host, sourcetype", basis, predicate)
}

func (g *Generator) sigmaHash(ind entity.Indicator, score entity.NormalizedScore) string {
	return fmt.Sprintf(`title: File hash IOC match %s
status: experimental
description: Detects file hash flagged at severity %s (score %d)
date: %s
logsource:
    category: file_event
detection:
    selection:
        Hashes|contains: '%s'
    condition: selection
level: %s`,
		ind.Value, score.Severity, score.FinalScore,
		g.now().UTC().Format("2006/01/02"), ind.Value, sigmaLevel(score.Severity))
}

func (g *Generator) sigmaNetwork(ind entity.Indicator, score entity.NormalizedScore) string {
	var selection string
	switch ind.Kind {
	case entity.KindURL:
		selection = fmt.Sprintf("        url: '%s'", ind.Value)
	case entity.KindDomain:
		selection = fmt.Sprintf("        query|contains: '%s'", ind.Value)
	default:
		selection = fmt.Sprintf("        destination.ip: '%s'", ind.Value)
	}
	category := "network_connection"
	if ind.Kind == entity.KindDomain {
		category = "dns_query"
	}
	return fmt.Sprintf(`title: Network IOC match %s
status: experimental
description: Detects traffic to indicator flagged at severity %s (score %d)
date: %s
logsource:
    category: %s
detection:
    selection:
%s
    condition: selection
level: %s`,
		ind.Value, score.Severity, score.FinalScore,
		g.now().UTC().Format("2006/01/02"), category, selection, sigmaLevel(score.Severity))
}

func (g *Generator) xqlHash(ind entity.Indicator, basis string) string {
	return fmt.Sprintf(`// %s
dataset = xdr_data
| filter event_type = FILE and action_file_%s = "%s"
| fields agent_hostname, action_file_name, action_file_path`,
		basis, strings.ToLower(g.hashField(ind.Kind)), ind.Value)
}

func (g *Generator) xqlNetwork(ind entity.Indicator, basis string) string {
	var predicate string
	switch ind.Kind {
	case entity.KindURL:
		predicate = fmt.Sprintf(`action_url = "%s"`, ind.Value)
	case entity.KindDomain:
		predicate = fmt.Sprintf(`dns_query_name = "%s"`, ind.Value)
	default:
		predicate = fmt.Sprintf(`action_remote_ip = "%s"`, ind.Value)
	}
	return fmt.Sprintf(`// %s
dataset = xdr_data
| filter event_type = NETWORK and %s
| fields agent_hostname, action_remote_ip, action_remote_port`,
		basis, predicate)
}

func (g *Generator) yaraHash(ind entity.Indicator, score entity.NormalizedScore) string {
	var condition string
	switch ind.Kind {
	case entity.KindMD5:
		condition = fmt.Sprintf(`hash.md5(0, filesize) == "%s"`, ind.Value)
	case entity.KindSHA1:
		condition = fmt.Sprintf(`hash.sha1(0, filesize) == "%s"`, ind.Value)
	default:
		condition = fmt.Sprintf(`hash.sha256(0, filesize) == "%s"`, ind.Value)
	}

	return fmt.Sprintf(`import "hash"

rule %s
{
    meta:
        description = "File hash IOC, severity %s (score %d)"
        date = "%s"
    condition:
        %s
}`, g.ruleName(ind), score.Severity, score.FinalScore,
		g.now().UTC().Format("2006-01-02"), condition)
}

func (g *Generator) yaraNetwork(ind entity.Indicator, score entity.NormalizedScore) string {
	// Network indicators embedded in binaries or scripts (hardcoded C2
	// addresses, download URLs).
	return fmt.Sprintf(`rule %s
{
    meta:
        description = "Embedded network IOC, severity %s (score %d)"
        date = "%s"
    strings:
        $ioc = "%s" ascii wide nocase
    condition:
        $ioc
}`, g.ruleName(ind), score.Severity, score.FinalScore,
		g.now().UTC().Format("2006-01-02"), ind.Value)
}

func sigmaLevel(sev entity.Severity) string {
	switch sev {
	case entity.SeverityCritical:
		return "critical"
	case entity.SeverityHigh:
		return "high"
	case entity.SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Platforms lists the supported rule syntaxes.
func Platforms() []string {
	p := []string{"kql", "spl", "sigma", "xql", "yara"}
	sort.Strings(p)
	return p
}
