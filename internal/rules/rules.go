// Package rules auto-categorizes transactions by description. A rule maps a
// description substring to a category; when several rules match, the lowest
// priority number wins.
package rules

import (
	"context"
	"strings"

	"tally/internal/core"
	"tally/internal/store"
)

type Service struct {
	store store.RuleStore
}

func New(st store.RuleStore) *Service {
	return &Service{store: st}
}

// Add stores a new rule. The target category is normalized like any other
// category so matched transactions land in the right bucket.
func (s *Service) Add(ctx context.Context, matchText, category string, priority int) (core.CategoryRule, error) {
	matchText = strings.TrimSpace(matchText)
	if matchText == "" {
		return core.CategoryRule{}, core.Validationf("match text cannot be empty")
	}
	normalized := core.NormalizeCategory(category)
	if normalized == "" {
		return core.CategoryRule{}, core.Validationf("category cannot be blank")
	}
	if priority < 1 {
		return core.CategoryRule{}, core.Validationf("priority must be at least 1")
	}

	rule, err := s.store.AddRule(ctx, core.CategoryRule{
		MatchText: matchText,
		Category:  normalized,
		Priority:  priority,
	})
	if err != nil {
		return core.CategoryRule{}, core.StoreErr("add rule", err)
	}
	return rule, nil
}

func (s *Service) List(ctx context.Context) ([]core.CategoryRule, error) {
	out, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, core.StoreErr("list rules", err)
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	return nil
}

// Apply returns the category of the best-priority rule whose match text
// appears in the description, case-insensitively. The second return is false
// when no rule matches.
func (s *Service) Apply(ctx context.Context, description string) (string, bool, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return "", false, core.StoreErr("list rules", err)
	}
	category, matched := Match(rules, description)
	return category, matched, nil
}

// Match runs the rule list (already ordered by priority ascending) against a
// description.
func Match(rules []core.CategoryRule, description string) (string, bool) {
	haystack := strings.ToLower(description)
	for _, r := range rules {
		if strings.Contains(haystack, strings.ToLower(r.MatchText)) {
			return r.Category, true
		}
	}
	return "", false
}
