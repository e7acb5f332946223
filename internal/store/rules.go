package store

import (
	"database/sql"
	"fmt"

	"github.com/brelow/eml-archiver/internal/archive"
)

// Rule is a stored conversion rule. Layout and scope hold the policy names;
// they are parsed when the rule is resolved for a conversion.
type Rule struct {
	ID        int64
	Name      string
	Layout    string
	Scope     string
	CreatedAt NullTime
}

// InsertRule stores a conversion rule and returns its id. The policy names
// are validated so resolution cannot fail later.
func (s *Store) InsertRule(rule *Rule) (int64, error) {
	if _, err := archive.ParseLayoutPolicy(rule.Layout); err != nil {
		return 0, err
	}
	if _, err := archive.ParseScopePolicy(rule.Scope); err != nil {
		return 0, err
	}

	result, err := s.Exec(
		"INSERT INTO rules (name, layout, scope) VALUES (?, ?, ?)",
		rule.Name, rule.Layout, rule.Scope)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rule: %w", err)
	}
	return result.LastInsertId()
}

// GetRuleByID retrieves a rule by id, or nil when it does not exist.
func (s *Store) GetRuleByID(id int64) (*Rule, error) {
	rule := &Rule{}
	err := s.QueryRow(
		"SELECT id, name, layout, scope, created_at FROM rules WHERE id = ?", id,
	).Scan(&rule.ID, &rule.Name, &rule.Layout, &rule.Scope, &rule.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules retrieves all stored rules.
func (s *Store) ListRules() ([]*Rule, error) {
	rows, err := s.Query("SELECT id, name, layout, scope, created_at FROM rules ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		rule := &Rule{}
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Layout, &rule.Scope, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// ConversionRule resolves a stored rule into conversion policies. A nil rule
// with a nil error means the id is unknown.
func (s *Store) ConversionRule(id int64) (*archive.Rule, error) {
	rule, err := s.GetRuleByID(id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, nil
	}

	layout, err := archive.ParseLayoutPolicy(rule.Layout)
	if err != nil {
		return nil, fmt.Errorf("rule %d: %w", id, err)
	}
	scope, err := archive.ParseScopePolicy(rule.Scope)
	if err != nil {
		return nil, fmt.Errorf("rule %d: %w", id, err)
	}
	return &archive.Rule{Layout: layout, Scope: scope}, nil
}

var _ archive.RuleResolver = (*Store)(nil)
