package detection

import (
	"fmt"
	"time"

	"family-shield/internal/models"
)

const (
	// critical once inactivity reaches this percentage of the user's threshold
	defaultCriticalPercent = 150
	hoursPerDay            = 24
)

// DefaultRules rule rows seeded at initialization.
// inactivity reads its threshold from ShieldSettings; the row only carries severity and the on/off flag.
func DefaultRules(userID string, cfg Config, now time.Time) []models.DetectionRule {
	return []models.DetectionRule{
		{UserID: userID, RuleType: models.RuleInactivity, ThresholdValue: models.DefaultInactivityPeriodMonths, Severity: models.SeverityHigh, IsEnabled: true, CreatedAt: now},
		{UserID: userID, RuleType: models.RuleCriticalInactivity, ThresholdValue: defaultCriticalPercent, Severity: models.SeverityCritical, IsEnabled: true, CreatedAt: now},
		{UserID: userID, RuleType: models.RuleInactivityWarning, ThresholdValue: cfg.InactivityWarningDays, Severity: models.SeverityMedium, IsEnabled: true, CreatedAt: now},
		{UserID: userID, RuleType: models.RuleHealthCheckMissed, ThresholdValue: cfg.HealthCheckMissThreshold, Severity: models.SeverityHigh, IsEnabled: true, CreatedAt: now},
	}
}

// ruleSet indexes rules by type, falling back to the defaults for any type the user lacks
type ruleSet map[string]models.DetectionRule

func newRuleSet(stored []models.DetectionRule, cfg Config) ruleSet {
	rs := ruleSet{}
	for _, r := range DefaultRules("", cfg, time.Time{}) {
		rs[r.RuleType] = r
	}
	for _, r := range stored {
		rs[r.RuleType] = r
	}
	return rs
}

func (rs ruleSet) enabled(ruleType string) (models.DetectionRule, bool) {
	r, ok := rs[ruleType]
	return r, ok && r.IsEnabled && r.ThresholdValue > 0
}

// Evaluate applies the rule set to one tracker snapshot. It is pure: same inputs, same result.
func Evaluate(tracker *models.ActivityTracker, stored []models.DetectionRule, cfg Config, hasPending bool, now time.Time) *models.TriggerEvaluation {
	eval := &models.TriggerEvaluation{Severity: models.SeverityNone, Reasons: []string{}}

	if !tracker.ShieldEnabled {
		eval.Reasons = append(eval.Reasons, "Family shield is not enabled")
		return eval
	}
	if hasPending {
		eval.Reasons = append(eval.Reasons, "An emergency activation is already pending verification")
		return eval
	}

	rules := newRuleSet(stored, cfg)
	months := tracker.InactivityThresholdMonth
	if months <= 0 {
		months = models.DefaultInactivityPeriodMonths
	}
	thresholdAt := tracker.LastActivity.AddDate(0, months, 0)
	window := thresholdAt.Sub(tracker.LastActivity)
	inactiveFor := now.Sub(tracker.LastActivity)

	if rule, ok := rules.enabled(models.RuleInactivity); ok && !now.Before(thresholdAt) {
		trigger(eval, models.TriggerInactivityDetected, rule.Severity,
			fmt.Sprintf("No activity for %d days (threshold: %d months)", tracker.InactiveDays, months))

		if crit, ok := rules.enabled(models.RuleCriticalInactivity); ok {
			criticalAfter := window * time.Duration(crit.ThresholdValue) / 100
			if inactiveFor >= criticalAfter {
				eval.Severity = eval.Severity.Max(crit.Severity)
				eval.Reasons = append(eval.Reasons, "Inactivity has exceeded the critical threshold")
			}
		}
	} else if warn, ok := rules.enabled(models.RuleInactivityWarning); ok {
		warnAt := thresholdAt.AddDate(0, 0, -warn.ThresholdValue)
		if !now.Before(warnAt) && now.Before(thresholdAt) {
			remaining := int(thresholdAt.Sub(now).Hours()/hoursPerDay) + 1
			eval.Severity = eval.Severity.Max(warn.Severity)
			eval.Reasons = append(eval.Reasons,
				fmt.Sprintf("Approaching inactivity threshold: %d days remaining", remaining))
		}
	}

	if rule, ok := rules.enabled(models.RuleHealthCheckMissed); ok && tracker.ConsecutiveMissedChecks >= rule.ThresholdValue {
		trigger(eval, models.TriggerHealthCheckFailure, rule.Severity,
			fmt.Sprintf("%d consecutive health checks missed", tracker.ConsecutiveMissedChecks))
	}

	return eval
}

// trigger records a firing rule; the first rule to fire names the trigger type
func trigger(eval *models.TriggerEvaluation, t models.TriggerType, severity models.Severity, reason string) {
	if !eval.ShouldTrigger {
		eval.ShouldTrigger = true
		tt := t
		eval.TriggerType = &tt
	}
	eval.Severity = eval.Severity.Max(severity)
	eval.Reasons = append(eval.Reasons, reason)
}
