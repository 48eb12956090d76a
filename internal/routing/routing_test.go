package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

func testJob(trade models.TradeCategory, urgency models.Urgency) *models.Job {
	return &models.Job{
		ID:            "job-1",
		TradeCategory: trade,
		Urgency:       urgency,
		CreatedAt:     time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		AddressSnapshot: models.Address{PostalCode: "10115"},
	}
}

func fallbackRule() *models.RoutingRule {
	return &models.RoutingRule{
		ID: "fallback", Name: "fallback", Priority: 999, IsFallback: true, Active: true,
		Action: models.RuleAction{DepartmentID: "dept-general"},
	}
}

func TestRoute_FirstMatchingRuleWins(t *testing.T) {
	e := New(zap.NewNop())
	job := testJob(models.TradeElectrical, models.UrgencyUrgent)
	rules := []*models.RoutingRule{
		{ID: "r1", Name: "electrical", Priority: 1, Active: true,
			Conditions: models.RuleConditions{TaskTypes: []models.TradeCategory{models.TradeElectrical}},
			Action:     models.RuleAction{DepartmentID: "dept-electrical"}},
		fallbackRule(),
	}

	decision, err := e.Route(job, rules)
	require.NoError(t, err)
	assert.Equal(t, "dept-electrical", decision.DepartmentID)
	assert.Equal(t, "r1", decision.MatchedRuleID)
}

func TestRoute_NoMatchFallsBackToFallbackRule(t *testing.T) {
	e := New(zap.NewNop())
	job := testJob(models.TradePlumbingHeating, models.UrgencyNormal)
	rules := []*models.RoutingRule{
		{ID: "r1", Name: "electrical-only", Priority: 1, Active: true,
			Conditions: models.RuleConditions{TaskTypes: []models.TradeCategory{models.TradeElectrical}},
			Action:     models.RuleAction{DepartmentID: "dept-electrical"}},
		fallbackRule(),
	}

	decision, err := e.Route(job, rules)
	require.NoError(t, err)
	assert.Equal(t, "dept-general", decision.DepartmentID)
	assert.Equal(t, "fallback", decision.MatchedRuleID)
}

func TestRoute_NoFallbackConfigured_ReturnsError(t *testing.T) {
	e := New(zap.NewNop())
	job := testJob(models.TradeGeneral, models.UrgencyNormal)
	rules := []*models.RoutingRule{
		{ID: "r1", Name: "electrical-only", Priority: 1, Active: true,
			Conditions: models.RuleConditions{TaskTypes: []models.TradeCategory{models.TradeElectrical}},
			Action:     models.RuleAction{DepartmentID: "dept-electrical"}},
	}

	_, err := e.Route(job, rules)
	assert.Error(t, err)
}

func TestRoute_InactiveRuleIsSkippedEvenIfItWouldMatch(t *testing.T) {
	e := New(zap.NewNop())
	job := testJob(models.TradeElectrical, models.UrgencyNormal)
	rules := []*models.RoutingRule{
		{ID: "r1", Name: "electrical", Priority: 1, Active: false,
			Conditions: models.RuleConditions{TaskTypes: []models.TradeCategory{models.TradeElectrical}},
			Action:     models.RuleAction{DepartmentID: "dept-electrical"}},
		fallbackRule(),
	}

	decision, err := e.Route(job, rules)
	require.NoError(t, err)
	assert.Equal(t, "dept-general", decision.DepartmentID)
}

func TestRoute_DefaultPriorityFallsBackToUrgencyTier(t *testing.T) {
	e := New(zap.NewNop())
	job := testJob(models.TradeGeneral, models.UrgencyEmergency)
	rules := []*models.RoutingRule{fallbackRule()}

	decision, err := e.Route(job, rules)
	require.NoError(t, err)
	assert.Equal(t, urgencyDefaultPriority[models.UrgencyEmergency], decision.Priority)
}

func TestRoute_EscalationDeadlineComputedFromRuleMinutes(t *testing.T) {
	e := New(zap.NewNop())
	job := testJob(models.TradeGeneral, models.UrgencyUrgent)
	rules := []*models.RoutingRule{
		{ID: "r1", Name: "urgent", Priority: 1, Active: true, EscalationDeadlineMin: 15,
			Action: models.RuleAction{DepartmentID: "dept-general"}},
	}

	decision, err := e.Route(job, rules)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, decision.EscalationDeadline)
}

func TestRoute_IsDeterministicForSameInput(t *testing.T) {
	e := New(zap.NewNop())
	job := testJob(models.TradeSanitary, models.UrgencyNormal)
	rules := []*models.RoutingRule{
		{ID: "r1", Name: "sanitary", Priority: 1, Active: true,
			Conditions: models.RuleConditions{TaskTypes: []models.TradeCategory{models.TradeSanitary}},
			Action:     models.RuleAction{DepartmentID: "dept-sanitary"}},
		fallbackRule(),
	}

	first, err := e.Route(job, rules)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := e.Route(job, rules)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRoute_NotificationChannelsDefaultWhenUnset(t *testing.T) {
	e := New(zap.NewNop())
	job := testJob(models.TradeGeneral, models.UrgencyNormal)
	rules := []*models.RoutingRule{
		{ID: "r1", Name: "notify", Priority: 1, Active: true, NotificationFlag: true,
			Action: models.RuleAction{DepartmentID: "dept-general"}},
	}

	decision, err := e.Route(job, rules)
	require.NoError(t, err)
	assert.True(t, decision.SendNotification)
	assert.Equal(t, defaultNotificationChannels, decision.NotificationChannels)
}

func TestRaisePriorityTier_MovesToNextHigherTier(t *testing.T) {
	assert.Equal(t, urgencyDefaultPriority[models.UrgencyUrgent], raisePriorityTier(urgencyDefaultPriority[models.UrgencyNormal]))
	assert.Equal(t, urgencyDefaultPriority[models.UrgencyEmergency], raisePriorityTier(urgencyDefaultPriority[models.UrgencyUrgent]))
}

func TestRaisePriorityTier_AlreadyTopTierStaysPut(t *testing.T) {
	top := urgencyDefaultPriority[models.UrgencyEmergency]
	assert.Equal(t, top, raisePriorityTier(top))
}
