package classify

import "regexp"

// Known providers of temporary, throwaway addresses.
var disposableDomains = map[string]struct{}{
	"tempmail.com":      {},
	"temp-mail.org":     {},
	"tempmail.net":      {},
	"temp-mail.net":     {},
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"yopmail.com":       {},
	"throwawaymail.com": {},
	"dispostable.com":   {},
	"sharklasers.com":   {},
	"trashmail.com":     {},
	"mailnesia.com":     {},
	"mailcatch.com":     {},
	"maildrop.cc":       {},
	"getnada.com":       {},
	"tempinbox.com":     {},
	"spamgourmet.com":   {},
	"mytemp.email":      {},
	"incognitomail.com": {},
	"mfsa.ru":           {},
	"discardmail.com":   {},
	"armyspy.com":       {},
	"cuvox.de":          {},
	"dayrep.com":        {},
	"einrot.com":        {},
	"fleckens.hu":       {},
	"gustr.com":         {},
	"teleworm.us":       {},
	"superrito.com":     {},
	"trbvm.com":         {},
	"emailisvalid.com":  {},
}

// Domains monitored to detect non-consensual mass mailers.
var spamTrapDomains = map[string]struct{}{
	"spam-trap.com":     {},
	"spamcop.net":       {},
	"spamex.com":        {},
	"known-trap.com":    {},
	"spam-detector.net": {},
	"honeypot.org":      {},
	"spamtrap.io":       {},
	"spamgourmet.org":   {},
}

// Address shapes that signal abandoned or unattended mailboxes,
// e.g. unused2015@example.com.
var inactivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)unused\d+`),
	regexp.MustCompile(`(?i)noreply@`),
	regexp.MustCompile(`(?i)donotreply@`),
	regexp.MustCompile(`(?i)no-reply@`),
	regexp.MustCompile(`(?i)inactive@`),
	regexp.MustCompile(`(?i)old-account`),
}
