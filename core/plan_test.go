package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidPlan(t *testing.T) {
	tests := []struct {
		name string
		plan string
		want bool
	}{
		{name: "Free", plan: "free", want: true},
		{name: "Starter", plan: "starter", want: true},
		{name: "Standard", plan: "standard", want: true},
		{name: "Professional", plan: "professional", want: true},
		{name: "Unknown", plan: "platinum", want: false},
		{name: "Empty", plan: "", want: false},
		{name: "Case sensitive", plan: "Free", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidPlan(tt.plan))
		})
	}
}

func TestPlanLimitsForReturnsCopy(t *testing.T) {
	limits := PlanLimitsFor(PlanStarter)
	limits[MetricMaxEvents] = 999

	again := PlanLimitsFor(PlanStarter)
	assert.Equal(t, 1, again[MetricMaxEvents])
}

func TestPlanLimitsForUnknownPlanFallsBackToFree(t *testing.T) {
	limits := PlanLimitsFor(Plan("platinum"))
	assert.Equal(t, PlanLimitsFor(PlanFree), limits)
}

func TestPlanLimitsCoverAllMetrics(t *testing.T) {
	for _, plan := range []Plan{PlanFree, PlanStarter, PlanStandard, PlanProfessional} {
		limits := PlanLimitsFor(plan)
		for _, metric := range AllMetrics() {
			_, ok := limits[metric]
			assert.True(t, ok, "plan %s is missing metric %s", plan, metric)
		}
	}
}
