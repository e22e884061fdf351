package agent

import "github.com/ppiankov/trialwatch/internal/model"

// crossEvidenceExpectedSAERatio is the SAE/AE ratio below which the
// cross-evidence agent suspects safety under-reporting. Empirical; studies
// with a healthy reporting culture sit well above it.
const crossEvidenceExpectedSAERatio = 0.15

// crossEvidenceMinAECount is the minimum AE volume before the
// under-reporting ratio is meaningful at all.
const crossEvidenceMinAECount = 20

// Registry returns the closed set of signal agents in canonical order.
// Weights and thresholds come from configuration; the feature contracts
// here are structural and fixed.
func Registry() []Agent {
	return []Agent{
		{
			Spec: Spec{
				Kind:            model.AgentSafety,
				Required:        []string{"overdue_sae_reviews", "sae_count"},
				Preferred:       []string{"ae_rate", "deaths_on_study"},
				CriticalFeature: "overdue_sae_reviews",
			},
			Assess: assessSafety,
		},
		{
			Spec: Spec{
				Kind:            model.AgentCompleteness,
				Required:        []string{"completeness_rate", "missing_required_fields"},
				Preferred:       []string{"missing_visits"},
				CriticalFeature: "completeness_rate",
			},
			Assess: assessCompleteness,
		},
		{
			Spec: Spec{
				Kind:            model.AgentQueryQuality,
				Required:        []string{"open_queries", "query_aging_over_30d"},
				Preferred:       []string{"query_resolution_days"},
				CriticalFeature: "query_aging_over_30d",
			},
			Assess: assessQueryQuality,
		},
		{
			Spec: Spec{
				Kind:            model.AgentCoding,
				Required:        []string{"uncoded_ae_terms", "uncoded_conmed_terms"},
				Preferred:       []string{"coding_backlog_days"},
				CriticalFeature: "uncoded_ae_terms",
			},
			Assess: assessCoding,
		},
		{
			Spec: Spec{
				Kind:            model.AgentTimeline,
				Required:        []string{"overdue_visits", "visit_completion_rate"},
				Preferred:       []string{"enrollment_lag_days"},
				CriticalFeature: "visit_completion_rate",
			},
			Assess: assessTimeline,
		},
		{
			Spec: Spec{
				Kind:            model.AgentOperations,
				Required:        []string{"protocol_deviations", "screen_failure_rate"},
				Preferred:       []string{"dropout_rate"},
				CriticalFeature: "protocol_deviations",
			},
			Assess: assessOperations,
		},
		{
			Spec: Spec{
				Kind:            model.AgentStability,
				Required:        []string{"data_correction_rate", "retention_rate"},
				Preferred:       []string{},
				CriticalFeature: "retention_rate",
			},
			Assess: assessStability,
		},
		{
			Spec: Spec{
				Kind:            model.AgentCrossEvidence,
				Required:        []string{"ae_count", "sae_count", "enrolled_count"},
				Preferred:       []string{"open_queries"},
				CriticalFeature: "sae_count",
			},
			Assess: assessCrossEvidence,
		},
	}
}

// ByKind returns the registered agent of the given kind.
func ByKind(kind model.AgentKind) (Agent, bool) {
	for _, ag := range Registry() {
		if ag.Kind == kind {
			return ag, true
		}
	}
	return Agent{}, false
}

func assessSafety(a *Assessment) {
	a.Grade("overdue_sae_reviews",
		"SAE reviews overdue beyond the reconciliation window",
		"prioritize overdue SAE reviews for medical monitor sign-off")
	a.Grade("sae_count",
		"SAE volume above expected range",
		"verify SAE volume against enrollment and indication baseline")
	a.Grade("ae_rate",
		"adverse event rate per subject above expected range",
		"review AE rate with the pharmacovigilance team")
	a.Grade("deaths_on_study",
		"on-study deaths reported",
		"confirm every on-study death has a completed causality assessment")
}

func assessCompleteness(a *Assessment) {
	a.Grade("completeness_rate",
		"CRF completeness below target",
		"schedule data entry catch-up with lagging sites")
	a.Grade("missing_required_fields",
		"required fields missing across CRFs",
		"issue data clarification requests for missing required fields")
	a.Grade("missing_visits",
		"expected visits without entered data",
		"reconcile visit schedule against entered visit data")
}

func assessQueryQuality(a *Assessment) {
	a.Grade("open_queries",
		"open query backlog above target",
		"allocate data management capacity to query resolution")
	a.Grade("query_aging_over_30d",
		"queries open for more than 30 days",
		"escalate aged queries to site monitors")
	a.Grade("query_resolution_days",
		"median query resolution time above target",
		"review query workflow for resolution bottlenecks")
}

func assessCoding(a *Assessment) {
	a.Grade("uncoded_ae_terms",
		"adverse event terms awaiting MedDRA coding",
		"clear uncoded AE terms before the next coding review")
	a.Grade("uncoded_conmed_terms",
		"concomitant medication terms awaiting WHODrug coding",
		"clear uncoded conmed terms before the next coding review")
	a.Grade("coding_backlog_days",
		"coding backlog age above target",
		"add coding capacity until backlog age recovers")
}

func assessTimeline(a *Assessment) {
	a.Grade("overdue_visits",
		"subject visits past their scheduled window",
		"contact sites with overdue visits to reschedule")
	a.Grade("visit_completion_rate",
		"visit completion rate below target",
		"investigate sites driving low visit completion")
	a.Grade("enrollment_lag_days",
		"enrollment behind projection",
		"review enrollment projections with underperforming sites")
}

func assessOperations(a *Assessment) {
	a.Grade("protocol_deviations",
		"protocol deviations above expected range",
		"review deviation root causes with site staff")
	a.Grade("screen_failure_rate",
		"screen failure rate above expected range",
		"audit screening criteria application at high-failure sites")
	a.Grade("dropout_rate",
		"subject dropout rate above expected range",
		"investigate retention issues at high-dropout sites")
}

// assessStability looks for signs of an unstable data foundation. Its
// consensus weight is negative: when it finds nothing, it actively pulls
// the consensus toward lower risk.
func assessStability(a *Assessment) {
	a.Grade("data_correction_rate",
		"post-entry data correction rate above expected range",
		"audit sites with high correction rates for entry process issues")
	a.Grade("retention_rate",
		"subject retention below target",
		"review retention strategy with clinical operations")
}

// assessCrossEvidence corroborates signals across feature families rather
// than reading any one metric in isolation.
func assessCrossEvidence(a *Assessment) {
	aeCount, haveAE := a.Feature("ae_count")
	saeCount, haveSAE := a.Feature("sae_count")
	if haveAE && haveSAE && aeCount >= crossEvidenceMinAECount {
		// High AE volume with an implausibly low SAE share suggests the
		// serious events are there but not being escalated.
		shortfall := crossEvidenceExpectedSAERatio - saeCount/aeCount
		if shortfall > 0 {
			a.GradeValue("sae_underreporting_ratio", shortfall,
				"SAE share of AE volume implausibly low",
				"audit AE-to-SAE escalation compliance at reporting sites")
		}
	}

	enrolled, haveEnrolled := a.Feature("enrolled_count")
	openQueries, haveQueries := a.Feature("open_queries")
	if haveEnrolled && haveQueries && enrolled > 0 {
		a.GradeValue("queries_per_subject", openQueries/enrolled,
			"query load per enrolled subject above expected range",
			"cross-check query density against site data entry quality")
	}
}
