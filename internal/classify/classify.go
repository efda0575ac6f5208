// Package classify holds the pure, I/O-free disqualification rules applied
// to every identifier before any network verification. All functions are
// safe for concurrent use.
package classify

import (
	"regexp"
	"strings"

	"github.com/ebalkanli/verify-engine/internal/domain"
)

var emailSyntaxRe = regexp.MustCompile(
	`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`,
)

var nonDigitRe = regexp.MustCompile(`\D`)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// Outcome is the classifier verdict for one identifier. A zero Category
// means the identifier passed and is eligible for network verification.
type Outcome struct {
	Pass     bool
	Category domain.Category
	Reason   string
}

func pass() Outcome {
	return Outcome{Pass: true}
}

func disqualified(category domain.Category, reason string) Outcome {
	return Outcome{Category: category, Reason: reason}
}

// Email applies the ordered email rules: syntax, disposable domain,
// spam trap, inactive pattern. First match wins; the categories are
// mutually exclusive in reporting.
func Email(email string) Outcome {
	local, emailDomain, ok := splitEmail(email)
	if !ok || local == "" || !emailSyntaxRe.MatchString(email) || !strings.Contains(emailDomain, ".") {
		return disqualified(domain.CategorySyntax, "Syntax Error: Invalid email format")
	}

	if _, found := disposableDomains[emailDomain]; found {
		return disqualified(domain.CategoryDisposable, "Disposable Domain: Temporary email address")
	}

	if _, found := spamTrapDomains[emailDomain]; found {
		return disqualified(domain.CategorySpamTrap, "Spam Trap: Known spam trap address")
	}

	for _, pattern := range inactivePatterns {
		if pattern.MatchString(email) {
			return disqualified(domain.CategoryInactive, "Inactive Account: Email appears to be inactive")
		}
	}

	return pass()
}

// Phone checks that the identifier contains an acceptable number of digits
// once separators and formatting are stripped.
func Phone(number string) Outcome {
	digits := nonDigitRe.ReplaceAllString(number, "")
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return disqualified(domain.CategorySyntax, "Syntax Error: Invalid phone number format")
	}
	return pass()
}

// Domain returns the lowercased domain portion of an email address.
func Domain(email string) string {
	_, emailDomain, _ := splitEmail(email)
	return emailDomain
}

func splitEmail(email string) (local, emailDomain string, ok bool) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "", "", false
	}
	return email[:at], strings.ToLower(email[at+1:]), true
}
