package agent

import (
	"regexp"
	"strings"

	"github.com/quillworks/quillops/session"
	"github.com/quillworks/quillops/workflow"
)

// Classification is an utterance resolved to an intent and parameters.
type Classification struct {
	// Intent is the classified intent name.
	Intent string

	// Params are the extracted intent parameters.
	Params map[string]any
}

// Classifier resolves an utterance to an intent. The conversation history
// is available for context resolution; the default classifier ignores it.
type Classifier interface {
	Classify(utterance string, history []session.Message) (Classification, error)
}

// Rule maps keywords to an intent. Every keyword must appear in the
// utterance for the rule to match.
type Rule struct {
	// Intent is the intent to classify as.
	Intent string `yaml:"intent"`

	// Keywords must all appear (case-insensitively) in the utterance.
	Keywords []string `yaml:"keywords"`
}

// RuleClassifier matches utterances against an ordered keyword rule list.
// The first matching rule wins. Inline key=value pairs in the utterance
// become intent parameters.
type RuleClassifier struct {
	rules []Rule
}

// NewRuleClassifier creates a classifier from ordered rules.
func NewRuleClassifier(rules []Rule) *RuleClassifier {
	return &RuleClassifier{rules: rules}
}

// RulesFromIntents derives one rule per intent, matching the intent name's
// words. A fallback when no curated rule list is configured.
func RulesFromIntents(intents []string) []Rule {
	rules := make([]Rule, 0, len(intents))
	for _, intent := range intents {
		rules = append(rules, Rule{
			Intent:   intent,
			Keywords: strings.Split(intent, "_"),
		})
	}
	return rules
}

// paramRe matches key=value and key="quoted value" pairs.
var paramRe = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)=(?:"([^"]*)"|(\S+))`)

// Classify implements Classifier.
func (c *RuleClassifier) Classify(utterance string, _ []session.Message) (Classification, error) {
	lower := strings.ToLower(utterance)

	for _, rule := range c.rules {
		if matchesAll(lower, rule.Keywords) {
			return Classification{
				Intent: rule.Intent,
				Params: extractParams(utterance),
			}, nil
		}
	}

	return Classification{}, &workflow.UnknownIntentError{Intent: truncate(utterance, 80)}
}

func matchesAll(lower string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	for _, kw := range keywords {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

// extractParams pulls key=value pairs out of the utterance.
func extractParams(utterance string) map[string]any {
	params := make(map[string]any)
	for _, m := range paramRe.FindAllStringSubmatch(utterance, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		params[m[1]] = value
	}
	return params
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
