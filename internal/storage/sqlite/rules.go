package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docuflow/backend/internal/storage/models"
)

// ListActiveRules returns the active rules visible to one tenant:
// its own plus global rules, ordered by descending priority with
// declaration order breaking ties.
func (c *Client) ListActiveRules(tenantID int64) ([]models.MatchingRule, error) {
	rows, err := c.db.Query(
		`SELECT id, tenant_id, name, is_active, priority, algorithm, pattern, case_sensitive,
			assign_type, assign_employee_id, assign_status, assign_tags, match_count, last_matched_at
		 FROM matching_rules
		 WHERE is_active = 1 AND (tenant_id = ? OR tenant_id IS NULL)
		 ORDER BY priority DESC, id ASC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []models.MatchingRule
	for rows.Next() {
		var r models.MatchingRule
		var tenant, assignEmployee sql.NullInt64
		var active, caseSensitive int
		var algorithm, assignStatus, tagsJSON string
		var lastMatched sql.NullInt64

		err := rows.Scan(
			&r.ID, &tenant, &r.Name, &active, &r.Priority, &algorithm, &r.Pattern, &caseSensitive,
			&r.AssignType, &assignEmployee, &assignStatus, &tagsJSON, &r.MatchCount, &lastMatched,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		if tenant.Valid {
			r.TenantID = &tenant.Int64
		}
		if assignEmployee.Valid {
			r.AssignEmployeeID = &assignEmployee.Int64
		}
		r.IsActive = active != 0
		r.CaseSensitive = caseSensitive != 0
		r.Algorithm = models.RuleAlgorithm(algorithm)
		r.AssignStatus = models.DocumentStatus(assignStatus)
		json.Unmarshal([]byte(tagsJSON), &r.AssignTags)
		if lastMatched.Valid {
			t := time.Unix(lastMatched.Int64, 0)
			r.LastMatchedAt = &t
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// RecordRuleMatch bumps a rule's match statistics.
func (c *Client) RecordRuleMatch(ruleID int64) error {
	_, err := c.db.Exec(
		`UPDATE matching_rules SET match_count = match_count + 1, last_matched_at = ? WHERE id = ?`,
		time.Now().Unix(), ruleID,
	)
	if err != nil {
		return fmt.Errorf("failed to record rule match: %w", err)
	}
	return nil
}

func (c *Client) CreateMatchingRule(rule *models.MatchingRule) error {
	tagsJSON, err := json.Marshal(rule.AssignTags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	res, err := c.db.Exec(
		`INSERT INTO matching_rules (tenant_id, name, is_active, priority, algorithm, pattern,
			case_sensitive, assign_type, assign_employee_id, assign_status, assign_tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.TenantID, rule.Name, boolToInt(rule.IsActive), rule.Priority, string(rule.Algorithm),
		rule.Pattern, boolToInt(rule.CaseSensitive), rule.AssignType, rule.AssignEmployeeID,
		string(rule.AssignStatus), string(tagsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	rule.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read rule id: %w", err)
	}
	return nil
}

func (c *Client) GetMatchingRule(id int64) (*models.MatchingRule, error) {
	var r models.MatchingRule
	var tenant, assignEmployee, lastMatched sql.NullInt64
	var active, caseSensitive int
	var algorithm, assignStatus, tagsJSON string

	err := c.db.QueryRow(
		`SELECT id, tenant_id, name, is_active, priority, algorithm, pattern, case_sensitive,
			assign_type, assign_employee_id, assign_status, assign_tags, match_count, last_matched_at
		 FROM matching_rules WHERE id = ?`, id,
	).Scan(
		&r.ID, &tenant, &r.Name, &active, &r.Priority, &algorithm, &r.Pattern, &caseSensitive,
		&r.AssignType, &assignEmployee, &assignStatus, &tagsJSON, &r.MatchCount, &lastMatched,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	if tenant.Valid {
		r.TenantID = &tenant.Int64
	}
	if assignEmployee.Valid {
		r.AssignEmployeeID = &assignEmployee.Int64
	}
	r.IsActive = active != 0
	r.CaseSensitive = caseSensitive != 0
	r.Algorithm = models.RuleAlgorithm(algorithm)
	r.AssignStatus = models.DocumentStatus(assignStatus)
	json.Unmarshal([]byte(tagsJSON), &r.AssignTags)
	if lastMatched.Valid {
		t := time.Unix(lastMatched.Int64, 0)
		r.LastMatchedAt = &t
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
