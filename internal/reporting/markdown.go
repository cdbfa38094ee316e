package reporting

import (
	"fmt"
	"strings"
	"time"

	"cometguard/internal/engine"
)

// RenderAssessmentMarkdown renders assessment results as a Markdown report.
func RenderAssessmentMarkdown(results []engine.MarketResult, generatedAt time.Time) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Risk Assessment Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", generatedAt.Format(time.RFC3339)))

	// Summary table
	sb.WriteString("## Markets\n\n")
	sb.WriteString("| Market | Address | Risk Score | Findings | Status |\n")
	sb.WriteString("|--------|---------|------------|----------|--------|\n")
	for _, r := range results {
		if r.Err != nil {
			sb.WriteString(fmt.Sprintf("| - | %s | - | - | FAILED |\n", shortAddress(r.MarketID)))
			continue
		}
		a := r.Assessment
		sb.WriteString(fmt.Sprintf("| %s | %s | %d/100 | %d | OK |\n",
			a.MarketName, shortAddress(a.MarketID), a.RiskScore, len(a.Findings)))
	}
	sb.WriteString("\n")

	// Per-market findings
	for _, r := range results {
		if r.Err != nil {
			sb.WriteString(fmt.Sprintf("## %s\n\n", shortAddress(r.MarketID)))
			sb.WriteString(fmt.Sprintf("Assessment failed: %s\n\n", errorMessage(r.Err)))
			continue
		}
		a := r.Assessment
		sb.WriteString(fmt.Sprintf("## %s\n\n", a.MarketName))
		if len(a.Findings) == 0 {
			sb.WriteString("No risks identified.\n\n")
			continue
		}
		for _, f := range a.Findings {
			sb.WriteString(fmt.Sprintf("- **%s** (%s): %s\n", f.Severity, f.Factor, f.Description))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
