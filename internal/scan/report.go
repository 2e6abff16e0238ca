package scan

import "strings"

// Category classifies a finding.
type Category string

const (
	CategoryRiskyPattern         Category = "risky-pattern"
	CategoryMissingErrorHandling Category = "missing-error-handling"
	CategorySanitization         Category = "sanitization-issue"
)

// Finding is a single security observation.
type Finding struct {
	Category Category `json:"category"`
	Evidence string   `json:"evidence"`
	Rule     string   `json:"rule,omitempty"`
	Severity string   `json:"severity,omitempty"`
}

// Report is the result of one scan. It has no identity beyond the scan that
// produced it.
type Report struct {
	RiskyPatterns        []Finding `json:"riskyPatterns"`
	ErrorHandlingPresent bool      `json:"errorHandlingPresent"`
	SanitizationIssues   []Finding `json:"sanitizationIssues"`
	ErrorMarker          string    `json:"errorMarker,omitempty"`
}

const (
	riskyHeading     = "Risky Patterns Found:"
	riskyExplanation = "The above listed functions pose a security risk. They may execute external applications, which could be exploited by attackers.\n"
	riskyNone        = "No risky patterns identified in the given VBA Macro.\n"

	errorHandlingAbsent = "Error Handling: \nNot present. Proper error handling is crucial to prevent the system from exposing sensitive information during errors and to ensure that the application behaves securely and predictably.\n"

	sanitizationHeading     = "Sanitization Issues Found:"
	sanitizationExplanation = "The above listed SQL patterns may be vulnerable to SQL injection if not properly parameterized. Ensure that SQL queries are constructed using parameterized queries or stored procedures to prevent injection attacks.\n"
	sanitizationNone        = "All user inputs are properly sanitized, reducing the risk of injection attacks.\n"
)

// Findings returns every finding in report order: risky patterns, missing
// error handling, sanitization issues.
func (r *Report) Findings() []Finding {
	out := make([]Finding, 0, len(r.RiskyPatterns)+len(r.SanitizationIssues)+1)
	out = append(out, r.RiskyPatterns...)
	if !r.ErrorHandlingPresent {
		marker := r.ErrorMarker
		if marker == "" {
			marker = DefaultErrorMarker
		}
		out = append(out, Finding{
			Category: CategoryMissingErrorHandling,
			Evidence: "no " + marker + " statement",
			Severity: "low",
		})
	}
	out = append(out, r.SanitizationIssues...)
	return out
}

// Clean reports whether the scan found nothing to complain about.
func (r *Report) Clean() bool {
	return len(r.RiskyPatterns) == 0 && r.ErrorHandlingPresent && len(r.SanitizationIssues) == 0
}

// Text renders the plain-text security report.
func (r *Report) Text() string {
	var lines []string

	if len(r.RiskyPatterns) > 0 {
		lines = append(lines, riskyHeading)
		for _, f := range r.RiskyPatterns {
			lines = append(lines, " - "+f.Evidence)
		}
		lines = append(lines, riskyExplanation)
	} else {
		lines = append(lines, riskyNone)
	}

	if !r.ErrorHandlingPresent {
		lines = append(lines, errorHandlingAbsent)
	}

	if len(r.SanitizationIssues) > 0 {
		lines = append(lines, sanitizationHeading)
		for _, f := range r.SanitizationIssues {
			lines = append(lines, " - "+f.Evidence)
		}
		lines = append(lines, sanitizationExplanation)
	} else {
		lines = append(lines, sanitizationNone)
	}

	return strings.Join(lines, "\n")
}
