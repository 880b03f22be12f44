package core

import "time"

// Plan is a subscription plan name as stored in the tenants table.
type Plan string

const (
	PlanFree         Plan = "free"
	PlanStarter      Plan = "starter"
	PlanStandard     Plan = "standard"
	PlanProfessional Plan = "professional"
)

// PlanTerm is the fixed duration of a paid plan period.
const PlanTerm = 30 * 24 * time.Hour

// Limit metric keys. They match the keys accepted in custom_limits.
const (
	MetricMaxEvents           = "maxEvents"
	MetricMaxTeamsPerEvent    = "maxTeamsPerEvent"
	MetricMaxCatalogsPerEvent = "maxCatalogsPerEvent"
	MetricMaxChatbots         = "maxChatbots"
)

var planLimits = map[Plan]map[string]int{
	PlanFree: {
		MetricMaxEvents:           1,
		MetricMaxTeamsPerEvent:    5,
		MetricMaxCatalogsPerEvent: 5,
		MetricMaxChatbots:         0,
	},
	PlanStarter: {
		MetricMaxEvents:           1,
		MetricMaxTeamsPerEvent:    10,
		MetricMaxCatalogsPerEvent: 10,
		MetricMaxChatbots:         1,
	},
	PlanStandard: {
		MetricMaxEvents:           5,
		MetricMaxTeamsPerEvent:    25,
		MetricMaxCatalogsPerEvent: 20,
		MetricMaxChatbots:         3,
	},
	PlanProfessional: {
		MetricMaxEvents:           20,
		MetricMaxTeamsPerEvent:    100,
		MetricMaxCatalogsPerEvent: 50,
		MetricMaxChatbots:         10,
	},
}

// ValidPlan reports whether name is a known plan.
func ValidPlan(name string) bool {
	_, ok := planLimits[Plan(name)]
	return ok
}

// PlanLimitsFor returns a copy of the catalog limits for the plan.
// Unknown plans get the free limits.
func PlanLimitsFor(plan Plan) map[string]int {
	src, ok := planLimits[plan]
	if !ok {
		src = planLimits[PlanFree]
	}
	limits := make(map[string]int, len(src))
	for metric, max := range src {
		limits[metric] = max
	}
	return limits
}

// AllMetrics lists every metric the catalog knows about.
func AllMetrics() []string {
	return []string{
		MetricMaxEvents,
		MetricMaxTeamsPerEvent,
		MetricMaxCatalogsPerEvent,
		MetricMaxChatbots,
	}
}
