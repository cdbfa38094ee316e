package reporting

import (
	"fmt"
	"strings"

	"cometguard/internal/domain"
	"cometguard/internal/engine"
)

// RenderAssessmentText renders assessment results in the plain console
// report layout.
func RenderAssessmentText(results []engine.MarketResult) string {
	var sb strings.Builder

	sb.WriteString("=== RISK ASSESSMENT REPORT ===\n")
	for _, r := range results {
		if r.Err != nil {
			sb.WriteString(fmt.Sprintf("\nMarket: %s\n", shortAddress(r.MarketID)))
			sb.WriteString(fmt.Sprintf("Assessment failed: %s\n", errorMessage(r.Err)))
			continue
		}

		a := r.Assessment
		sb.WriteString(fmt.Sprintf("\nMarket: %s (%s)\n", a.MarketName, shortAddress(a.MarketID)))
		sb.WriteString(fmt.Sprintf("Risk Score: %d/100\n", a.RiskScore))

		if len(a.Findings) == 0 {
			sb.WriteString("No risks identified\n")
			continue
		}
		sb.WriteString("\nRisks Identified:\n")
		for i, f := range a.Findings {
			sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, f.Severity, f.Description))
		}
	}

	return sb.String()
}

// RenderProtocolText renders market size and liquidity figures.
func RenderProtocolText(metrics []domain.ProtocolMetrics) string {
	if len(metrics) == 0 {
		return ""
	}
	var sb strings.Builder

	sb.WriteString("=== PROTOCOL METRICS ===\n")
	for _, m := range metrics {
		sb.WriteString(fmt.Sprintf("\nMarket: %s (%s)\n", m.MarketName, shortAddress(m.MarketID)))
		sb.WriteString(fmt.Sprintf("TVL: %.2f\n", m.TVL))
		sb.WriteString(fmt.Sprintf("Total Borrow: %.2f\n", m.TotalBorrow))
		sb.WriteString(fmt.Sprintf("Collateral Value: %.2f\n", m.CollateralValue))
		sb.WriteString(fmt.Sprintf("Utilization: %.2f%%\n", m.Utilization*100))
		sb.WriteString(fmt.Sprintf("Available Liquidity: %.2f\n", m.AvailableLiquidity))
	}

	return sb.String()
}

// RenderSimulationText renders what-if scenario outcomes for one market.
func RenderSimulationText(marketID string, outcomes []engine.ScenarioOutcome) string {
	var sb strings.Builder

	sb.WriteString("=== MARKET SIMULATION ===\n")
	sb.WriteString(fmt.Sprintf("Market: %s\n", shortAddress(marketID)))

	for _, o := range outcomes {
		sb.WriteString(fmt.Sprintf("\nScenario: %s\n", o.Description))
		if o.Err != nil {
			sb.WriteString(fmt.Sprintf("Scenario failed: %s\n", errorMessage(o.Err)))
			continue
		}

		res := o.Result
		sb.WriteString(fmt.Sprintf("Severity: %s\n", res.Severity))
		sb.WriteString(fmt.Sprintf("Risk Score: %d -> %d (%+d)\n",
			res.BaselineScore, res.ProjectedScore, res.ScoreDelta))
		if res.CrossingFraction != nil {
			sb.WriteString(fmt.Sprintf("Cascade threshold: %.2f%% price drop\n",
				*res.CrossingFraction*100))
		}
		if res.LiquidatedFraction != nil {
			sb.WriteString(fmt.Sprintf("Positions liquidated: %.2f%%\n",
				*res.LiquidatedFraction*100))
		}
		if res.Narrative != "" {
			sb.WriteString(res.Narrative + "\n")
		}
	}

	return sb.String()
}

// RenderUserText renders one account's position health check.
func RenderUserText(report *engine.UserPositionReport) string {
	var sb strings.Builder

	sb.WriteString("=== USER POSITION CHECK ===\n")
	sb.WriteString(fmt.Sprintf("Market: %s (%s)\n", report.MarketName, shortAddress(report.MarketID)))
	sb.WriteString(fmt.Sprintf("User: %s\n", report.User))
	sb.WriteString(fmt.Sprintf("\nBorrow Balance: %.2f\n", report.BorrowBalance))
	sb.WriteString(fmt.Sprintf("Collateral Value: %.2f\n", report.CollateralValue))
	sb.WriteString(fmt.Sprintf("Health Factor: %.2f\n", report.HealthFactor))

	status := "AT RISK"
	if report.Healthy {
		status = "Healthy"
	}
	sb.WriteString(fmt.Sprintf("\nPosition Status: %s\n", status))
	if report.Finding != nil {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", report.Finding.Severity, report.Finding.Description))
	}

	return sb.String()
}
