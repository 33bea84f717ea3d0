package enrichment

import (
	"strings"

	"github.com/bissquit/resilio/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeSeverity maps a classifier severity hint to a domain severity.
// Only Critical, Serious, Minor and Fake are accepted; Pending is never
// produced by the classifier. Safe for concurrent use.
func NormalizeSeverity(hint string) (domain.Severity, bool) {
	// A Caser carries state between calls, so each call gets its own.
	sev := domain.Severity(cases.Title(language.English).String(strings.TrimSpace(hint)))
	switch sev {
	case domain.SeverityCritical, domain.SeveritySerious, domain.SeverityMinor, domain.SeverityFake:
		return sev, true
	}
	return "", false
}
