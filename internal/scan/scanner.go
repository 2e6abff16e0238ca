// Package scan detects security-relevant lexical patterns in VBA macro source.
//
// Each check is a named capability so a tokenizer-based implementation can
// replace the regular-expression one without changing the report.
package scan

import (
	"fmt"
	"regexp"
	"strings"
)

// RiskyCallDetector finds uses of risky identifiers.
type RiskyCallDetector interface {
	DetectRiskyCalls(src string) []Finding
}

// ErrorHandlingDetector reports whether the source installs an error handler.
type ErrorHandlingDetector interface {
	HasErrorHandling(src string) bool
}

// SanitizationDetector flags SQL text that may be built unsafely.
type SanitizationDetector interface {
	DetectSanitizationIssues(src string) []Finding
}

// Scanner composes the three detectors into a report. ErrorMarker is the
// handler statement named in the missing-handler finding.
type Scanner struct {
	Risky         RiskyCallDetector
	ErrorHandling ErrorHandlingDetector
	Sanitization  SanitizationDetector
	ErrorMarker   string
}

// New returns a regex-backed Scanner for the given rules. It fails when a
// risky rule does not compile.
func New(rules RuleSet) (*Scanner, error) {
	if rules.ErrorMarker == "" {
		rules.ErrorMarker = DefaultErrorMarker
	}
	risky, err := NewRegexRiskyDetector(rules.Risky)
	if err != nil {
		return nil, err
	}
	return &Scanner{
		Risky:         risky,
		ErrorHandling: MarkerDetector{Marker: rules.ErrorMarker},
		Sanitization:  NewSQLDetector(),
		ErrorMarker:   rules.ErrorMarker,
	}, nil
}

// Default returns a Scanner using the builtin rules.
func Default() *Scanner {
	s, err := New(BuiltinRules())
	if err != nil {
		panic(err)
	}
	return s
}

// Scan runs every detector over src. It never fails; empty input yields a
// report of "none" statements with error handling absent.
func (s *Scanner) Scan(src string) *Report {
	return &Report{
		RiskyPatterns:        s.Risky.DetectRiskyCalls(src),
		ErrorHandlingPresent: s.ErrorHandling.HasErrorHandling(src),
		SanitizationIssues:   s.Sanitization.DetectSanitizationIssues(src),
		ErrorMarker:          s.ErrorMarker,
	}
}

// RegexRiskyDetector matches each rule's pattern case-insensitively. Matches
// are grouped by rule, in rule order, and duplicates are kept.
type RegexRiskyDetector struct {
	rules []RiskyRule
}

// NewRegexRiskyDetector compiles rules into a detector.
func NewRegexRiskyDetector(rules []RiskyRule) (*RegexRiskyDetector, error) {
	d := &RegexRiskyDetector{rules: make([]RiskyRule, len(rules))}
	copy(d.rules, rules)
	for i := range d.rules {
		if d.rules[i].Pattern != nil {
			continue
		}
		if err := d.rules[i].Compile(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return d, nil
}

func (d *RegexRiskyDetector) DetectRiskyCalls(src string) []Finding {
	var found []Finding
	for _, rule := range d.rules {
		for _, m := range rule.Pattern.FindAllString(src, -1) {
			found = append(found, Finding{
				Category: CategoryRiskyPattern,
				Evidence: m,
				Rule:     rule.Name,
				Severity: rule.Severity,
			})
		}
	}
	return found
}

// MarkerDetector checks for a literal marker anywhere in the source.
type MarkerDetector struct {
	Marker string
}

func (d MarkerDetector) HasErrorHandling(src string) bool {
	return d.Marker != "" && strings.Contains(src, d.Marker)
}

// sqlShape is one SQL statement pattern and the text reported when it fires.
type sqlShape struct {
	label   string
	pattern *regexp.Regexp
}

// SQLDetector flags a SQL shape when it matches and a single quote appears
// anywhere in the source. The quote check is global, not per statement.
type SQLDetector struct {
	shapes []sqlShape
}

// NewSQLDetector returns the detector with the fixed insert, select-star,
// update-set and delete shapes.
func NewSQLDetector() *SQLDetector {
	labels := []string{
		`INSERT INTO`,
		`SELECT \* FROM`,
		`UPDATE .* SET`,
		`DELETE FROM`,
	}
	d := &SQLDetector{}
	for _, l := range labels {
		d.shapes = append(d.shapes, sqlShape{
			label:   l,
			pattern: regexp.MustCompile(`(?i)` + l),
		})
	}
	return d
}

func (d *SQLDetector) DetectSanitizationIssues(src string) []Finding {
	if !strings.Contains(src, "'") {
		return nil
	}
	var found []Finding
	for _, s := range d.shapes {
		if s.pattern.MatchString(src) {
			found = append(found, Finding{
				Category: CategorySanitization,
				Evidence: s.label,
				Severity: "medium",
			})
		}
	}
	return found
}
