package reporting

import (
	"fmt"
	"strings"
	"time"

	"cometguard/internal/engine"
)

// RenderAssessmentCSV renders assessment results as CSV, one row per market.
// Findings collapse into a semicolon-joined column.
func RenderAssessmentCSV(results []engine.MarketResult) string {
	var sb strings.Builder

	// Header
	sb.WriteString("market_id,market_name,risk_score,finding_count,findings,snapshot_time,error\n")

	// Rows
	for _, r := range results {
		if r.Err != nil {
			sb.WriteString(fmt.Sprintf("%s,,,,,,%s\n", r.MarketID, csvEscape(errorMessage(r.Err))))
			continue
		}
		a := r.Assessment

		descriptions := make([]string, len(a.Findings))
		for i, f := range a.Findings {
			descriptions[i] = fmt.Sprintf("[%s] %s", f.Severity, f.Description)
		}

		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%s,%s,\n",
			a.MarketID,
			csvEscape(a.MarketName),
			a.RiskScore,
			len(a.Findings),
			csvEscape(strings.Join(descriptions, "; ")),
			a.SnapshotTime.Format(time.RFC3339),
		))
	}

	return sb.String()
}

// csvEscape quotes a field containing commas or quotes.
func csvEscape(field string) string {
	if !strings.ContainsAny(field, ",\"\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
