package reports

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// PDFGenerator renders an analysis result as a PDF report.
type PDFGenerator struct{}

// NewPDFGenerator creates a new PDF generator.
func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{}
}

// Color definitions
var (
	colorPrimary = []int{37, 99, 235}   // Blue
	colorDanger  = []int{239, 68, 68}   // Red
	colorWarning = []int{245, 158, 11}  // Amber
	colorSuccess = []int{34, 197, 94}   // Green
	colorMuted   = []int{107, 114, 128} // Gray
	colorDark    = []int{31, 41, 55}    // Dark gray
	colorLight   = []int{243, 244, 246} // Light gray
	colorWhite   = []int{255, 255, 255}
)

func severityColor(sev entity.Severity) []int {
	switch sev {
	case entity.SeverityCritical:
		return colorDanger
	case entity.SeverityHigh:
		return []int{249, 115, 22}
	case entity.SeverityMedium:
		return colorWarning
	case entity.SeverityLow:
		return colorPrimary
	default:
		return colorSuccess
	}
}

// Generate creates a PDF report for one analysis result.
func (g *PDFGenerator) Generate(result *entity.AnalysisResult) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)

	g.addCoverPage(pdf, result)
	g.addVerdictSection(pdf, result)
	g.addSourcesSection(pdf, result)

	if len(result.MalwareFamilies) > 0 || len(result.MitreTactics) > 0 || result.DomainAnalysis != nil {
		g.addContextSection(pdf, result)
	}

	if result.DetectionRules.Count() > 0 {
		g.addRulesSection(pdf, result)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	return buf.Bytes(), nil
}

func (g *PDFGenerator) addCoverPage(pdf *fpdf.Fpdf, result *entity.AnalysisResult) {
	pdf.AddPage()

	accent := severityColor(result.NormalizedScore.Severity)

	// Background header
	pdf.SetFillColor(accent[0], accent[1], accent[2])
	pdf.Rect(0, 0, 210, 100, "F")

	// Title
	pdf.SetTextColor(colorWhite[0], colorWhite[1], colorWhite[2])
	pdf.SetFont("Helvetica", "B", 28)
	pdf.SetY(30)
	pdf.CellFormat(0, 12, "THREAT INTELLIGENCE", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 8, "IOC Analysis Report", "", 1, "C", false, 0, "")

	// Indicator
	pdf.SetY(62)
	pdf.SetFont("Courier", "B", 13)
	pdf.CellFormat(0, 8, g.truncateString(result.IOC, 64), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s  |  %s  |  score %d/100",
		result.IOCType, result.NormalizedScore.Severity, result.NormalizedScore.FinalScore),
		"", 1, "C", false, 0, "")

	// Generation info
	pdf.SetY(120)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(colorMuted[0], colorMuted[1], colorMuted[2])
	pdf.CellFormat(0, 6, fmt.Sprintf("Analyzed: %s", result.AnalyzedAt.Format("January 2, 2006 at 15:04 UTC")), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Report ID: %s", result.ID), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format("January 2, 2006 at 15:04 UTC")), "", 1, "C", false, 0, "")

	// Footer
	pdf.SetY(270)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 4, "Confidential - For authorized personnel only", "", 1, "C", false, 0, "")
}

func (g *PDFGenerator) addVerdictSection(pdf *fpdf.Fpdf, result *entity.AnalysisResult) {
	pdf.AddPage()
	g.addSectionHeader(pdf, "Verdict")

	score := result.NormalizedScore

	// Key metrics cards
	startY := pdf.GetY() + 5
	g.drawMetricCard(pdf, 15, startY, 55, 25, "Final Score", fmt.Sprintf("%d / 100", score.FinalScore), severityColor(score.Severity))
	g.drawMetricCard(pdf, 75, startY, 55, 25, "Severity", string(score.Severity), severityColor(score.Severity))
	g.drawMetricCard(pdf, 135, startY, 55, 25, "Sources Queried", fmt.Sprintf("%d", len(result.IntelligenceSources)+len(result.SourceErrors)), colorPrimary)

	pdf.SetY(startY + 35)

	// Contributing factors
	g.addSubHeader(pdf, "Contributing Factors")

	if len(score.ContributingFactors) == 0 {
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(colorMuted[0], colorMuted[1], colorMuted[2])
		pdf.CellFormat(0, 8, "No contributing factors recorded.", "", 1, "L", false, 0, "")
		return
	}

	pdf.SetFont("Helvetica", "", 9)
	for _, f := range score.ContributingFactors {
		color := colorMuted
		switch f.Class {
		case entity.FactorCritical:
			color = colorDanger
		case entity.FactorHigh:
			color = []int{249, 115, 22}
		case entity.FactorMedium:
			color = colorWarning
		}
		pdf.SetTextColor(color[0], color[1], color[2])
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(22, 6, string(f.Class), "", 0, "L", false, 0, "")
		pdf.SetTextColor(colorDark[0], colorDark[1], colorDark[2])
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 6, f.Text, "", "L", false)
	}
}

func (g *PDFGenerator) addSourcesSection(pdf *fpdf.Fpdf, result *entity.AnalysisResult) {
	pdf.Ln(8)
	g.addSectionHeader(pdf, "Intelligence Sources")

	if len(result.IntelligenceSources) > 0 {
		headers := []string{"Source", "Score", "Verdict", "Families"}
		widths := []float64{50, 25, 45, 60}

		g.drawTableHeader(pdf, headers, widths)

		names := make([]string, 0, len(result.IntelligenceSources))
		for name := range result.IntelligenceSources {
			names = append(names, name)
		}
		sort.Strings(names)

		for i, name := range names {
			p := result.IntelligenceSources[name]
			families := "-"
			if len(p.MalwareFamilies) > 0 {
				families = g.truncateString(joinComma(p.MalwareFamilies), 35)
			}
			values := []string{
				name,
				fmt.Sprintf("%d", p.Score),
				g.truncateString(p.Verdict, 25),
				families,
			}
			g.drawTableRow(pdf, values, widths, i%2 == 0)
		}
	} else {
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(colorMuted[0], colorMuted[1], colorMuted[2])
		pdf.CellFormat(0, 8, "No source returned intelligence for this indicator.", "", 1, "L", false, 0, "")
	}

	if len(result.SourceErrors) > 0 {
		pdf.Ln(8)
		g.addSubHeader(pdf, "Unavailable Sources")

		headers := []string{"Source", "Failure"}
		widths := []float64{60, 120}
		g.drawTableHeader(pdf, headers, widths)

		names := make([]string, 0, len(result.SourceErrors))
		for name := range result.SourceErrors {
			names = append(names, name)
		}
		sort.Strings(names)

		for i, name := range names {
			g.drawTableRow(pdf, []string{name, result.SourceErrors[name]}, widths, i%2 == 0)
		}
	}
}

func (g *PDFGenerator) addContextSection(pdf *fpdf.Fpdf, result *entity.AnalysisResult) {
	pdf.AddPage()
	g.addSectionHeader(pdf, "Threat Context")

	if len(result.MalwareFamilies) > 0 {
		g.addSubHeader(pdf, "Associated Malware Families")
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(colorDark[0], colorDark[1], colorDark[2])
		for _, family := range result.MalwareFamilies {
			pdf.CellFormat(0, 6, "- "+family, "", 1, "L", false, 0, "")
		}
		pdf.Ln(5)
	}

	if len(result.MitreTactics) > 0 {
		g.addSubHeader(pdf, "Mapped ATT&CK Tactics")
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(colorDark[0], colorDark[1], colorDark[2])
		for _, tactic := range result.MitreTactics {
			pdf.CellFormat(0, 6, "- "+tactic, "", 1, "L", false, 0, "")
		}
		pdf.Ln(5)
	}

	if da := result.DomainAnalysis; da != nil {
		g.addSubHeader(pdf, "Domain Entropy Analysis")
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(colorDark[0], colorDark[1], colorDark[2])
		verdict := "within normal range"
		if da.IsSuspicious {
			verdict = "above threshold, possible DGA"
		}
		pdf.MultiCell(0, 6, fmt.Sprintf(
			"Shannon entropy of %q is %.3f against a threshold of %.2f (%s).",
			da.Domain, da.Entropy, da.Threshold, verdict,
		), "", "L", false)
	}
}

func (g *PDFGenerator) addRulesSection(pdf *fpdf.Fpdf, result *entity.AnalysisResult) {
	pdf.AddPage()
	g.addSectionHeader(pdf, "Detection Rules")

	rules := result.DetectionRules
	sections := []struct {
		Title string
		Rules []string
	}{
		{"KQL (Microsoft Sentinel / Defender)", rules.KQL},
		{"SPL (Splunk)", rules.SPL},
		{"Sigma", rules.Sigma},
		{"XQL (Cortex XDR)", rules.XQL},
		{"YARA", rules.YARA},
	}

	for _, section := range sections {
		if len(section.Rules) == 0 {
			continue
		}
		g.addSubHeader(pdf, section.Title)
		pdf.SetFont("Courier", "", 7)
		pdf.SetTextColor(colorDark[0], colorDark[1], colorDark[2])
		for _, rule := range section.Rules {
			pdf.SetFillColor(colorLight[0], colorLight[1], colorLight[2])
			pdf.MultiCell(0, 3.5, rule, "", "L", true)
			pdf.Ln(3)
		}
	}
}

// Helper functions

func (g *PDFGenerator) addSectionHeader(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(colorDark[0], colorDark[1], colorDark[2])
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.SetLineWidth(0.5)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(5)
}

func (g *PDFGenerator) addSubHeader(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(colorDark[0], colorDark[1], colorDark[2])
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func (g *PDFGenerator) drawMetricCard(pdf *fpdf.Fpdf, x, y, w, h float64, label string, value string, color []int) {
	// Card background
	pdf.SetFillColor(colorLight[0], colorLight[1], colorLight[2])
	pdf.RoundedRect(x, y, w, h, 2, "1234", "F")

	// Color accent
	pdf.SetFillColor(color[0], color[1], color[2])
	pdf.Rect(x, y, 3, h, "F")

	// Label
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(colorMuted[0], colorMuted[1], colorMuted[2])
	pdf.SetXY(x+6, y+3)
	pdf.CellFormat(w-8, 4, label, "", 0, "L", false, 0, "")

	// Value
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(colorDark[0], colorDark[1], colorDark[2])
	pdf.SetXY(x+6, y+10)
	pdf.CellFormat(w-8, 8, value, "", 0, "L", false, 0, "")
}

func (g *PDFGenerator) drawTableHeader(pdf *fpdf.Fpdf, headers []string, widths []float64) {
	pdf.SetFillColor(colorDark[0], colorDark[1], colorDark[2])
	pdf.SetTextColor(colorWhite[0], colorWhite[1], colorWhite[2])
	pdf.SetFont("Helvetica", "B", 9)

	for i, header := range headers {
		pdf.CellFormat(widths[i], 7, header, "", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func (g *PDFGenerator) drawTableRow(pdf *fpdf.Fpdf, values []string, widths []float64, alternate bool) {
	if alternate {
		pdf.SetFillColor(colorLight[0], colorLight[1], colorLight[2])
	} else {
		pdf.SetFillColor(colorWhite[0], colorWhite[1], colorWhite[2])
	}
	pdf.SetTextColor(colorDark[0], colorDark[1], colorDark[2])
	pdf.SetFont("Helvetica", "", 8)

	for i, value := range values {
		pdf.CellFormat(widths[i], 6, value, "", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func (g *PDFGenerator) truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func joinComma(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
