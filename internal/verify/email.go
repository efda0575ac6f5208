// Package verify performs the I/O-bound half of identifier verification:
// DNS MX resolution plus a minimal SMTP conversation for email, and
// session-based account lookup for phone numbers.
package verify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ebalkanli/verify-engine/internal/classify"
	"github.com/ebalkanli/verify-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultSMTPPort = 25
	defaultMailFrom = "verify@example.com"
)

// Resolver resolves MX records. Wraps net.Resolver in production; tests
// inject fakes.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// Dialer opens the TCP connection to a mail exchange.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// EmailVerifierConfig carries the SMTP conversation parameters.
type EmailVerifierConfig struct {
	Port       int
	HeloDomain string
	MailFrom   string
	Timeout    time.Duration
	RetryCount int
}

// EmailVerifier resolves a domain's mail exchanges and probes the
// lowest-priority one for the candidate mailbox.
type EmailVerifier struct {
	resolver Resolver
	dialer   Dialer
	port     int
	helo     string
	mailFrom string
	timeout  time.Duration
	retry    retrier
	logger   *zap.Logger
}

func NewEmailVerifier(cfg EmailVerifierConfig, logger *zap.Logger) *EmailVerifier {
	if cfg.Port < 1 {
		cfg.Port = defaultSMTPPort
	}
	if strings.TrimSpace(cfg.HeloDomain) == "" {
		if hostname, err := os.Hostname(); err == nil && hostname != "" {
			cfg.HeloDomain = hostname
		} else {
			cfg.HeloDomain = "verify-engine.local"
		}
	}
	if strings.TrimSpace(cfg.MailFrom) == "" {
		cfg.MailFrom = defaultMailFrom
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = domain.DefaultItemTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EmailVerifier{
		resolver: net.DefaultResolver,
		dialer:   &net.Dialer{Timeout: cfg.Timeout},
		port:     cfg.Port,
		helo:     cfg.HeloDomain,
		mailFrom: cfg.MailFrom,
		timeout:  cfg.Timeout,
		retry:    newRetrier(cfg.RetryCount),
		logger:   logger,
	}
}

// SetResolver overrides the MX resolver.
func (v *EmailVerifier) SetResolver(resolver Resolver) {
	if resolver != nil {
		v.resolver = resolver
	}
}

// SetDialer overrides the SMTP dialer.
func (v *EmailVerifier) SetDialer(dialer Dialer) {
	if dialer != nil {
		v.dialer = dialer
	}
}

// Verify runs MX resolution and the SMTP probe for one syntactically valid
// address. It never returns an error: every failure mode maps to a
// rejection result with a distinguishing category. A non-negative retries
// value overrides the configured retry count for this call, so per-job
// settings win over the process default.
func (v *EmailVerifier) Verify(ctx context.Context, email string, retries int) domain.VerificationResult {
	emailDomain := classify.Domain(email)

	records, err := v.resolver.LookupMX(ctx, emailDomain)
	if err != nil || len(records) == 0 {
		// Fails closed: unresolvable and MX-less domains cannot receive mail.
		return domain.Rejected(email, domain.CategoryNoMXRecords, "Invalid Domain: No MX records found")
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})
	host := strings.TrimSuffix(records[0].Host, ".")

	return v.retry.withAttempts(retries).run(ctx, func(ctx context.Context) domain.VerificationResult {
		result := v.probe(ctx, host, email)
		if !result.Valid && isTransient(result.Category) {
			v.logger.Debug("smtp probe transient fault",
				zap.String("email", email),
				zap.String("host", host),
				zap.String("category", result.Category.String()),
			)
		}
		return result
	})
}

// probe runs one SMTP conversation: greeting, HELO, MAIL FROM, RCPT TO.
// Every step is bounded by the idle timeout.
func (v *EmailVerifier) probe(ctx context.Context, host, email string) domain.VerificationResult {
	addr := net.JoinHostPort(host, strconv.Itoa(v.port))

	dialCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	conn, err := v.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return v.connectionFault(email, err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	steps := []struct {
		command string
		rcpt    bool
	}{
		{command: ""}, // greeting only
		{command: fmt.Sprintf("HELO %s", v.helo)},
		{command: fmt.Sprintf("MAIL FROM:<%s>", v.mailFrom)},
		{command: fmt.Sprintf("RCPT TO:<%s>", email), rcpt: true},
	}

	for _, step := range steps {
		if step.command != "" {
			if err := v.writeLine(conn, step.command); err != nil {
				return v.connectionFault(email, err)
			}
		}

		code, line, err := v.readResponse(conn, reader)
		if err != nil {
			return v.connectionFault(email, err)
		}

		if code >= 400 {
			v.quit(conn)
			if step.rcpt && code == 550 {
				return domain.VerificationResult{
					Identifier:   email,
					Category:     domain.CategorySMTPRejected,
					Reason:       "SMTP Verification Failed: Recipient does not exist",
					HasMXRecords: true,
				}
			}
			return domain.VerificationResult{
				Identifier:   email,
				Category:     domain.CategorySMTPRejected,
				Reason:       fmt.Sprintf("SMTP Verification Failed: Server error: %s", line),
				HasMXRecords: true,
			}
		}
	}

	v.quit(conn)
	return domain.VerificationResult{
		Identifier:   email,
		Valid:        true,
		HasMXRecords: true,
		SMTPVerified: true,
	}
}

func (v *EmailVerifier) writeLine(conn net.Conn, line string) error {
	if err := conn.SetDeadline(time.Now().Add(v.timeout)); err != nil {
		return err
	}
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}

// readResponse reads one SMTP reply, following continuation lines
// ("250-..." until "250 ...").
func (v *EmailVerifier) readResponse(conn net.Conn, reader *bufio.Reader) (int, string, error) {
	if err := conn.SetDeadline(time.Now().Add(v.timeout)); err != nil {
		return 0, "", err
	}

	var last string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, "", err
		}
		last = strings.TrimRight(line, "\r\n")
		if len(last) < 4 || last[3] != '-' {
			break
		}
	}

	if len(last) < 3 {
		return 0, last, nil
	}
	code, err := strconv.Atoi(last[:3])
	if err != nil {
		return 0, last, nil
	}
	return code, last, nil
}

// quit sends a best-effort QUIT before the connection drops.
func (v *EmailVerifier) quit(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(time.Second))
	_, _ = conn.Write([]byte("QUIT\r\n"))
}

func (v *EmailVerifier) connectionFault(email string, err error) domain.VerificationResult {
	if isTimeoutError(err) {
		return domain.VerificationResult{
			Identifier:   email,
			Category:     domain.CategoryTimeout,
			Reason:       "SMTP Verification Failed: Connection timeout",
			HasMXRecords: true,
		}
	}
	return domain.VerificationResult{
		Identifier:   email,
		Category:     domain.CategoryConnectionError,
		Reason:       fmt.Sprintf("SMTP Verification Failed: Connection error: %s", err),
		HasMXRecords: true,
	}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
