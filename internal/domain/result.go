package domain

// Category classifies why an identifier was rejected.
type Category string

const (
	CategorySyntax          Category = "SYNTAX"
	CategoryDisposable      Category = "DISPOSABLE"
	CategorySpamTrap        Category = "SPAM_TRAP"
	CategoryInactive        Category = "INACTIVE"
	CategoryNoMXRecords     Category = "NO_MX_RECORDS"
	CategorySMTPRejected    Category = "SMTP_REJECTED"
	CategoryConnectionError Category = "CONNECTION_ERROR"
	CategoryTimeout         Category = "TIMEOUT"
	CategoryNotFound        Category = "NOT_FOUND"
	CategoryLookupError     Category = "LOOKUP_ERROR"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategorySyntax, CategoryDisposable, CategorySpamTrap, CategoryInactive,
		CategoryNoMXRecords, CategorySMTPRejected, CategoryConnectionError,
		CategoryTimeout, CategoryNotFound, CategoryLookupError:
		return true
	}
	return false
}

// VerificationResult is the outcome for a single identifier.
type VerificationResult struct {
	Identifier string   `json:"identifier"`
	Valid      bool     `json:"valid"`
	Category   Category `json:"category,omitempty"`
	Reason     string   `json:"reason,omitempty"`

	// Email flags.
	HasMXRecords bool `json:"hasMxRecords,omitempty"`
	SMTPVerified bool `json:"smtpVerified,omitempty"`

	// Phone account metadata, set when the lookup found an account.
	AccountID   string `json:"accountId,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Rejected builds a rejection result for an identifier.
func Rejected(identifier string, category Category, reason string) VerificationResult {
	return VerificationResult{
		Identifier: identifier,
		Valid:      false,
		Category:   category,
		Reason:     reason,
	}
}

// Stats aggregates per-job counters. Accepted+Rejected always equals
// Processed; the Reasons histogram partitions Rejected by category.
type Stats struct {
	Processed int              `json:"totalProcessed"`
	Accepted  int              `json:"valid"`
	Rejected  int              `json:"invalid"`
	Reasons   map[Category]int `json:"invalidReasons"`
}

func NewStats() Stats {
	return Stats{Reasons: make(map[Category]int)}
}

// Record folds one result into the counters.
func (s *Stats) Record(r VerificationResult) {
	s.Processed++
	if r.Valid {
		s.Accepted++
		return
	}
	s.Rejected++
	if s.Reasons == nil {
		s.Reasons = make(map[Category]int)
	}
	s.Reasons[r.Category]++
}

// Clone returns a copy safe to hand to subscribers while workers mutate s.
func (s Stats) Clone() Stats {
	out := s
	out.Reasons = make(map[Category]int, len(s.Reasons))
	for k, v := range s.Reasons {
		out.Reasons[k] = v
	}
	return out
}
