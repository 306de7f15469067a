package chatbot

import "comms-hub/internal/models"

// ShouldHandoff decides whether a turn escalates to a human agent.
//
// An absent intent or a confidence below the global floor always hands
// off. Otherwise every active rule is evaluated and any single firing
// rule hands off: rules scoped to the matched intent and general rules
// (no intent scope) both fire when confidence is below their threshold.
// Pure function of its inputs; callers load the rule set fresh per turn.
func ShouldHandoff(match *IntentMatch, confidence float64, rules []models.HandoffRule, globalFloor float64) bool {
	if match == nil || confidence < globalFloor {
		return true
	}

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if rule.IntentID != nil && *rule.IntentID != match.IntentID {
			continue
		}
		if confidence < rule.ConfidenceThreshold {
			return true
		}
	}
	return false
}
