package classify

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/storage/models"
)

// RuleStore is the storage surface the rule engine needs. Satisfied
// by *sqlite.Client.
type RuleStore interface {
	ListActiveRules(tenantID int64) ([]models.MatchingRule, error)
	RecordRuleMatch(ruleID int64) error
}

// Engine evaluates tenant-visible matching rules against a document
// and applies the first hit's assignments. Rules only ever fill in
// fields the pipeline left empty; they never overwrite earlier
// classification.
type Engine struct {
	store RuleStore
	log   *zap.Logger
}

func NewEngine(store RuleStore, log *zap.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// MatchDocument evaluates rules against the filename and title of doc.
// Returns true when a rule matched and its assignments were applied.
func (e *Engine) MatchDocument(doc *models.Document) (bool, error) {
	return e.match(doc, doc.OriginalFilename+" "+doc.Title)
}

// MatchFilename evaluates rules against the filename alone. Used
// during ingestion, before a title exists.
func (e *Engine) MatchFilename(doc *models.Document) (bool, error) {
	return e.match(doc, doc.OriginalFilename)
}

func (e *Engine) match(doc *models.Document, searchText string) (bool, error) {
	rules, err := e.store.ListActiveRules(doc.TenantID)
	if err != nil {
		return false, fmt.Errorf("failed to load matching rules: %w", err)
	}

	for _, rule := range rules {
		if !e.ruleMatches(rule, searchText) {
			continue
		}
		e.apply(rule, doc)
		if err := e.store.RecordRuleMatch(rule.ID); err != nil {
			e.log.Warn("Failed to record rule match",
				zap.Int64("rule_id", rule.ID),
				zap.Error(err),
			)
		}
		e.log.Debug("Rule matched",
			zap.Int64("rule_id", rule.ID),
			zap.String("rule", rule.Name),
			zap.String("document_id", doc.ID),
		)
		return true, nil
	}
	return false, nil
}

func (e *Engine) ruleMatches(rule models.MatchingRule, text string) bool {
	pattern := rule.Pattern
	if pattern == "" {
		return false
	}
	if !rule.CaseSensitive {
		pattern = strings.ToLower(pattern)
		text = strings.ToLower(text)
	}

	switch rule.Algorithm {
	case models.AlgorithmExact:
		return strings.Contains(text, pattern)
	case models.AlgorithmAny:
		for _, word := range strings.Fields(pattern) {
			if strings.Contains(text, word) {
				return true
			}
		}
		return false
	case models.AlgorithmAll:
		for _, word := range strings.Fields(pattern) {
			if !strings.Contains(text, word) {
				return false
			}
		}
		return len(strings.Fields(pattern)) > 0
	case models.AlgorithmRegex:
		expr := rule.Pattern
		if !rule.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			e.log.Warn("Invalid rule regex",
				zap.Int64("rule_id", rule.ID),
				zap.String("pattern", rule.Pattern),
				zap.Error(err),
			)
			return false
		}
		return re.MatchString(text)
	case models.AlgorithmFuzzy:
		for _, word := range strings.Fields(pattern) {
			if fuzzyContains(text, word) {
				return true
			}
		}
		return false
	default:
		// NONE and anything unknown never match.
		return false
	}
}

// fuzzyContains slides word over text and accepts any window where at
// least 80% of positions carry the same character. Words shorter than
// four characters are too noisy for positional matching and are
// skipped.
func fuzzyContains(text, word string) bool {
	w := []rune(word)
	if len(w) < 4 {
		return false
	}
	t := []rune(text)
	threshold := float64(len(w)) * 0.8

	for i := 0; i+len(w) <= len(t); i++ {
		matches := 0
		for j, c := range w {
			if t[i+j] == c {
				matches++
			}
		}
		if float64(matches) >= threshold {
			return true
		}
	}
	return false
}

// apply copies the rule's assignments onto fields the document does
// not have yet. Status only moves off UNASSIGNED.
func (e *Engine) apply(rule models.MatchingRule, doc *models.Document) {
	if rule.AssignType != "" && doc.DocumentType == "" {
		doc.DocumentType = rule.AssignType
	}
	if rule.AssignEmployeeID != nil && doc.EmployeeID == nil {
		id := *rule.AssignEmployeeID
		doc.EmployeeID = &id
	}
	if rule.AssignStatus != "" && doc.Status == models.StatusUnassigned {
		doc.Status = rule.AssignStatus
	}
	for _, tag := range rule.AssignTags {
		if !containsTag(doc.Tags, tag) {
			doc.Tags = append(doc.Tags, tag)
		}
	}
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
