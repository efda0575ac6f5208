package classify

import (
	"testing"

	"github.com/ebalkanli/verify-engine/internal/domain"
)

func TestEmailOrderedRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		email    string
		pass     bool
		category domain.Category
	}{
		{"valid address", "user@example.com", true, ""},
		{"valid with plus tag", "user+tag@example.com", true, ""},
		{"missing at", "userexample.com", false, domain.CategorySyntax},
		{"missing local part", "@example.com", false, domain.CategorySyntax},
		{"domain without dot", "user@localhost", false, domain.CategorySyntax},
		{"space in local part", "us er@example.com", false, domain.CategorySyntax},
		{"empty string", "", false, domain.CategorySyntax},
		{"disposable domain", "someone@mailinator.com", false, domain.CategoryDisposable},
		{"disposable uppercase domain", "someone@MAILINATOR.COM", false, domain.CategoryDisposable},
		{"spam trap domain", "hit@spam-trap.com", false, domain.CategorySpamTrap},
		{"noreply pattern", "noreply@example.com", false, domain.CategoryInactive},
		{"donotreply pattern", "donotreply@example.com", false, domain.CategoryInactive},
		{"no-reply pattern", "no-reply@example.com", false, domain.CategoryInactive},
		{"unused numbered account", "unused42@example.com", false, domain.CategoryInactive},
		{"old-account pattern", "old-account@example.com", false, domain.CategoryInactive},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			outcome := Email(tc.email)
			if outcome.Pass != tc.pass {
				t.Fatalf("Email(%q).Pass = %v, want %v", tc.email, outcome.Pass, tc.pass)
			}
			if outcome.Category != tc.category {
				t.Fatalf("Email(%q).Category = %q, want %q", tc.email, outcome.Category, tc.category)
			}
			if !outcome.Pass && outcome.Reason == "" {
				t.Fatalf("Email(%q) disqualified without a reason", tc.email)
			}
		})
	}
}

func TestEmailSyntaxBeatsDisposable(t *testing.T) {
	t.Parallel()

	// A malformed address on a disposable domain must report syntax, not
	// disposable; the rules run in order and the first match wins.
	outcome := Email("bad address@mailinator.com")
	if outcome.Pass {
		t.Fatal("expected disqualification")
	}
	if outcome.Category != domain.CategorySyntax {
		t.Fatalf("Category = %q, want %q", outcome.Category, domain.CategorySyntax)
	}
}

func TestPhone(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		number string
		pass   bool
	}{
		{"bare digits", "15551234567", true},
		{"formatted", "+1 (555) 123-4567", true},
		{"minimum length", "1234567", true},
		{"maximum length", "123456789012345", true},
		{"too short", "123456", false},
		{"too long", "1234567890123456", false},
		{"letters only", "call-me-maybe", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			outcome := Phone(tc.number)
			if outcome.Pass != tc.pass {
				t.Fatalf("Phone(%q).Pass = %v, want %v", tc.number, outcome.Pass, tc.pass)
			}
			if !outcome.Pass && outcome.Category != domain.CategorySyntax {
				t.Fatalf("Phone(%q).Category = %q, want %q", tc.number, outcome.Category, domain.CategorySyntax)
			}
		})
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()

	if got := Domain("User@Example.COM"); got != "example.com" {
		t.Fatalf("Domain() = %q, want example.com", got)
	}
	if got := Domain("no-at-sign"); got != "" {
		t.Fatalf("Domain() = %q, want empty", got)
	}
}
