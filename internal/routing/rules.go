package routing

import (
	"sort"
	"strings"

	"github.com/darkdragon/drift-api-router/internal/model"
)

// GroupRules returns the active rules of every product ordered by assignment
// order, then rule name.
func GroupRules(rules []model.APIKeyRule) map[string][]model.APIKeyRule {
	grouped := map[string][]model.APIKeyRule{}
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		rule.VersionPatterns = append([]string(nil), rule.VersionPatterns...)
		grouped[rule.ProductName] = append(grouped[rule.ProductName], rule)
	}
	for _, list := range grouped {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].AssignmentOrder != list[j].AssignmentOrder {
				return list[i].AssignmentOrder < list[j].AssignmentOrder
			}
			return list[i].RuleName < list[j].RuleName
		})
	}
	return grouped
}

// MatchRule returns the first rule of an ordered list that applies to version.
func MatchRule(rules []model.APIKeyRule, version string) (model.APIKeyRule, bool) {
	for _, rule := range rules {
		if ruleMatches(rule, version) {
			return rule, true
		}
	}
	return model.APIKeyRule{}, false
}

func ruleMatches(rule model.APIKeyRule, version string) bool {
	if len(rule.VersionPatterns) == 0 {
		return true
	}
	for _, pattern := range rule.VersionPatterns {
		if rule.MatchType == model.MatchTypeExact {
			if version == pattern {
				return true
			}
			continue
		}
		prefix := strings.TrimSuffix(pattern, "*")
		if prefix == "" || strings.HasPrefix(version, prefix) {
			return true
		}
	}
	return false
}
