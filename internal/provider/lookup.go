// Package provider implements the outbound account-lookup client. It is
// the only package that talks to the lookup API; the engine sees it
// through the session ports.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ebalkanli/verify-engine/internal/verify"
	"github.com/go-resty/resty/v2"
)

const defaultLookupTimeout = 10 * time.Second

var _ verify.SessionFactory = (*HTTPLookupProvider)(nil)

// HTTPLookupProvider establishes named lookup sessions against an
// HTTP account-lookup API.
type HTTPLookupProvider struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPLookupProvider(baseURL string) (*HTTPLookupProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultLookupTimeout)
	client.SetRetryCount(0)

	return NewHTTPLookupProviderWithClient(baseURL, client)
}

func NewHTTPLookupProviderWithClient(baseURL string, client *resty.Client) (*HTTPLookupProvider, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("lookup API base URL is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid lookup API base URL: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultLookupTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPLookupProvider{
		client:  client,
		baseURL: trimmed,
	}, nil
}

type createSessionRequest struct {
	Name string `json:"name"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type checkNumberRequest struct {
	Number string `json:"number"`
}

type checkNumberResponse struct {
	Found   bool `json:"found"`
	Account *struct {
		ID          string `json:"id"`
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
	} `json:"account,omitempty"`
}

// NewSession registers a named session with the lookup API. The name is
// unique per chunk so the remote side can rate-limit per client.
func (p *HTTPLookupProvider) NewSession(ctx context.Context, name string) (verify.Session, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("lookup provider is not initialized")
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("session name is required")
	}

	var created createSessionResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(createSessionRequest{Name: name}).
		SetResult(&created).
		Post(p.baseURL + "/sessions")
	if err != nil {
		return nil, &LookupError{
			Message:   "session request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response.StatusCode() < http.StatusOK || response.StatusCode() >= http.StatusMultipleChoices {
		return nil, &LookupError{
			StatusCode: response.StatusCode(),
			Message:    fmt.Sprintf("session create returned status %d", response.StatusCode()),
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}
	if strings.TrimSpace(created.SessionID) == "" {
		return nil, &LookupError{
			Message:   "session create returned empty session id",
			Transient: true,
		}
	}

	return &httpLookupSession{
		provider:  p,
		sessionID: created.SessionID,
	}, nil
}

type httpLookupSession struct {
	provider  *HTTPLookupProvider
	sessionID string
}

func (s *httpLookupSession) CheckNumber(ctx context.Context, number string) (verify.Lookup, error) {
	var result checkNumberResponse
	response, err := s.provider.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(checkNumberRequest{Number: number}).
		SetResult(&result).
		Post(fmt.Sprintf("%s/sessions/%s/check", s.provider.baseURL, s.sessionID))
	if err != nil {
		return verify.Lookup{}, &LookupError{
			Message:   "check request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response.StatusCode() == http.StatusNotFound {
		return verify.Lookup{Found: false}, nil
	}
	if response.StatusCode() < http.StatusOK || response.StatusCode() >= http.StatusMultipleChoices {
		return verify.Lookup{}, &LookupError{
			StatusCode: response.StatusCode(),
			Message:    fmt.Sprintf("check returned status %d", response.StatusCode()),
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}

	lookup := verify.Lookup{Found: result.Found}
	if result.Account != nil {
		lookup.Account = &verify.Account{
			ID:          result.Account.ID,
			Username:    result.Account.Username,
			DisplayName: result.Account.DisplayName,
		}
	}
	return lookup, nil
}

// Close tears down the remote session. Best-effort; a dangling session
// expires server-side.
func (s *httpLookupSession) Close() error {
	response, err := s.provider.client.R().
		Delete(fmt.Sprintf("%s/sessions/%s", s.provider.baseURL, s.sessionID))
	if err != nil {
		return &LookupError{
			Message:   "session delete failed",
			Transient: true,
			Cause:     err,
		}
	}
	if response.StatusCode() >= http.StatusBadRequest && response.StatusCode() != http.StatusNotFound {
		return &LookupError{
			StatusCode: response.StatusCode(),
			Message:    fmt.Sprintf("session delete returned status %d", response.StatusCode()),
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}
	return nil
}
