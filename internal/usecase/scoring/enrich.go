package scoring

import (
	"sort"
	"strings"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// Derived holds the analyses computed from partial results rather than
// fetched from a source.
type Derived struct {
	MalwareFamilies []string
	MitreTactics    []string
	DomainAnalysis  *entity.DomainAnalysis
}

// tacticByKeyword maps source tag fragments to ATT&CK tactics. Tags are
// free-form across providers, so matching is on lowercase substrings.
var tacticByKeyword = []struct {
	keyword string
	tactic  string
}{
	{"c2", "TA0011 Command and Control"},
	{"command and control", "TA0011 Command and Control"},
	{"botnet", "TA0011 Command and Control"},
	{"phishing", "TA0001 Initial Access"},
	{"payload_delivery", "TA0001 Initial Access"},
	{"malware_download", "TA0001 Initial Access"},
	{"exploit", "TA0002 Execution"},
	{"bruteforce", "TA0006 Credential Access"},
	{"brute-force", "TA0006 Credential Access"},
	{"credential", "TA0006 Credential Access"},
	{"scanner", "TA0043 Reconnaissance"},
	{"scanning", "TA0043 Reconnaissance"},
	{"ransomware", "TA0040 Impact"},
	{"exfil", "TA0010 Exfiltration"},
	{"proxy", "TA0011 Command and Control"},
	{"tor", "TA0011 Command and Control"},
}

// Derive extracts malware families, ATT&CK tactic mappings and the
// domain entropy verdict from the partial results.
func (e *Engine) Derive(ind entity.Indicator, partials []entity.PartialResult) Derived {
	var d Derived

	familySet := make(map[string]struct{})
	tacticSet := make(map[string]struct{})

	for _, p := range partials {
		for _, family := range p.MalwareFamilies {
			normalized := strings.TrimSpace(family)
			if normalized == "" {
				continue
			}
			familySet[normalized] = struct{}{}
		}
		for _, tag := range p.Tags {
			lower := strings.ToLower(tag)
			for _, m := range tacticByKeyword {
				if strings.Contains(lower, m.keyword) {
					tacticSet[m.tactic] = struct{}{}
				}
			}
		}
	}

	for family := range familySet {
		d.MalwareFamilies = append(d.MalwareFamilies, family)
	}
	sort.Strings(d.MalwareFamilies)

	for tactic := range tacticSet {
		d.MitreTactics = append(d.MitreTactics, tactic)
	}
	sort.Strings(d.MitreTactics)

	if ind.Kind == entity.KindDomain {
		d.DomainAnalysis = AnalyzeDomain(ind.Value, e.cfg.EntropyThreshold)
	} else if ind.Kind == entity.KindURL {
		if host := ind.Host(); host != "" {
			d.DomainAnalysis = AnalyzeDomain(host, e.cfg.EntropyThreshold)
		}
	}

	return d
}
