package guardian

import (
	"fmt"

	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/model"
)

// DQIConsistencyReport is the result of checking a DQI score against the
// underlying feature data.
type DQIConsistencyReport struct {
	Valid           bool    `json:"valid"`
	Issues          []Issue `json:"issues"`
	FeaturesChecked int     `json:"features_checked"`
}

// ValidateDQIConsistency checks pairwise expectations between the overall
// DQI score and raw features. A missing feature skips its check — absent
// data must never manufacture a false positive. FeaturesChecked reports how
// many checks had sufficient data to run.
func ValidateDQIConsistency(score float64, features model.FeatureSet, gc config.GuardianConfig) DQIConsistencyReport {
	report := DQIConsistencyReport{Valid: true}

	// DQI_QUERY_MISMATCH: a healthy-looking index with a query mountain
	// underneath it.
	if v, ok := features.Get("open_queries"); ok {
		report.FeaturesChecked++
		if score >= 65 && v >= gc.OpenQueriesHigh {
			report.Issues = append(report.Issues, Issue{
				Type:        model.EventDQIQueryMismatch,
				Severity:    model.SeverityWarning,
				Description: "DQI in acceptable range despite heavy open-query backlog",
				Expected:    fmt.Sprintf("open_queries < %.0f when DQI >= 65", gc.OpenQueriesHigh),
				Actual:      fmt.Sprintf("DQI %.1f with %.0f open queries", score, v),
				Recommendation: "verify the query-quality agent is receiving " +
					"current query counts",
			})
		}
	}

	// DQI_SAFETY_MISMATCH is always CRITICAL — an acceptable score sitting
	// on top of unreviewed SAEs is the single worst failure mode here.
	if v, ok := features.Get("overdue_sae_reviews"); ok {
		report.FeaturesChecked++
		if score >= 65 && v >= gc.OverdueSAECritical {
			report.Issues = append(report.Issues, Issue{
				Type:        model.EventDQISafetyMismatch,
				Severity:    model.SeverityCritical,
				Description: "DQI in acceptable range despite overdue SAE reviews",
				Expected:    fmt.Sprintf("overdue_sae_reviews < %.0f when DQI >= 65", gc.OverdueSAECritical),
				Actual:      fmt.Sprintf("DQI %.1f with %.0f overdue SAE reviews", score, v),
				Recommendation: "escalate to the medical monitor immediately and " +
					"re-check the safety agent's inputs",
			})
		}
	}

	// DQI_COMPLETENESS_MISMATCH: a GREEN score requires the data to
	// actually be there.
	if v, ok := features.Get("completeness_rate"); ok {
		report.FeaturesChecked++
		if score >= 85 && v < gc.CompletenessLow {
			report.Issues = append(report.Issues, Issue{
				Type:        model.EventDQICompletenessMismatch,
				Severity:    model.SeverityWarning,
				Description: "GREEN-band DQI despite low completeness",
				Expected:    fmt.Sprintf("completeness_rate >= %.2f when DQI >= 85", gc.CompletenessLow),
				Actual:      fmt.Sprintf("DQI %.1f with completeness %.2f", score, v),
				Recommendation: "verify the completeness agent's dimension weight " +
					"and inputs",
			})
		}
	}

	// DQI_MISSING_DATA_MISMATCH.
	if v, ok := features.Get("missing_required_fields"); ok {
		report.FeaturesChecked++
		if score >= 65 && v >= gc.MissingFieldsHigh {
			report.Issues = append(report.Issues, Issue{
				Type:        model.EventDQIMissingDataMismatch,
				Severity:    model.SeverityWarning,
				Description: "DQI in acceptable range despite widespread missing required fields",
				Expected:    fmt.Sprintf("missing_required_fields < %.0f when DQI >= 65", gc.MissingFieldsHigh),
				Actual:      fmt.Sprintf("DQI %.1f with %.0f missing required fields", score, v),
				Recommendation: "audit the completeness feature pipeline for this study",
			})
		}
	}

	// DQI_UNDERESTIMATE: the inverse failure — near-perfect completeness
	// with a failing score may mean the system is too pessimistic.
	if v, ok := features.Get("completeness_rate"); ok {
		report.FeaturesChecked++
		if score < 50 && v >= gc.CompletenessExcellent {
			report.Issues = append(report.Issues, Issue{
				Type:        model.EventDQIUnderestimate,
				Severity:    model.SeverityInfo,
				Description: "low DQI despite near-complete data",
				Expected:    fmt.Sprintf("DQI >= 50 when completeness_rate >= %.2f", gc.CompletenessExcellent),
				Actual:      fmt.Sprintf("DQI %.1f with completeness %.2f", score, v),
				Recommendation: "review whether the non-completeness agents are " +
					"over-penalizing this study",
			})
		}
	}

	report.Valid = len(report.Issues) == 0
	return report
}
