// Package exchange is the client of the backend token exchange that turns an
// IdP response into a signed-in account.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BlackMission/idpauth/internal/domain"
	"github.com/BlackMission/idpauth/internal/logger"
	"github.com/BlackMission/idpauth/internal/metrics"
)

const (
	defaultTimeout   = 10 * time.Second
	signInWithIdpURI = "/v1/accounts:signInWithIdp"
)

// Config holds the configuration of the exchange client.
type Config struct {
	BaseURL    string
	APIKey     string
	SDKVersion string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Client calls the backend token exchange. Requests are not retried.
type Client struct {
	baseURL    string
	apiKey     string
	sdkVersion string
	http       *http.Client
	log        *zap.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type signInResponse struct {
	domain.IDTokenResponse
	NeedConfirmation bool `json:"needConfirmation,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// New creates an exchange client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		sdkVersion: cfg.SDKVersion,
		http:       hc,
		log:        logger.OrNop(cfg.Logger),
		metrics:    cfg.Metrics,
		tracer:     otel.Tracer("github.com/BlackMission/idpauth/internal/exchange"),
	}
}

// SignInWithIdp posts an IdP response to the backend and returns the
// resulting token response.
func (c *Client) SignInWithIdp(ctx context.Context, req *domain.SignInWithIdpRequest) (*domain.IDTokenResponse, error) {
	ctx, span := c.tracer.Start(ctx, "exchange.SignInWithIdp",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Bool("link", req.IDToken != "")),
	)
	defer span.End()

	resp, err := c.signInWithIdp(ctx, req)
	c.metrics.ExchangeRequest(err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("token exchange failed", zap.Error(err))
		return nil, err
	}
	c.log.Debug("token exchange succeeded", logger.Provider(resp.ProviderID), zap.Bool("new_user", resp.IsNewUser))
	return resp, nil
}

func (c *Client) signInWithIdp(ctx context.Context, body *domain.SignInWithIdpRequest) (*domain.IDTokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to encode request: %s", err.Error())}
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, signInWithIdpURI, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to create request: %s", err.Error())}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sdkVersion != "" {
		req.Header.Set("X-Client-Version", c.sdkVersion)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("network error: %s", err.Error())}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var data signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to decode response: %s", err.Error()), StatusCode: resp.StatusCode}
	}
	if data.NeedConfirmation {
		return nil, newNeedConfirmationError(&data.IDTokenResponse, resp.StatusCode)
	}
	return &data.IDTokenResponse, nil
}

// handleErrorResponse maps a backend error body of the form
// {"error":{"code":400,"message":"CODE : detail"}} to a typed error.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	code, message := "", http.StatusText(resp.StatusCode)
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		code, message = splitServerMessage(errResp.Error.Message)
	}

	switch code {
	case codeInvalidIdpResponse:
		return newInvalidCredentialError(message, resp.StatusCode)
	case codeAlreadyLinked, codeEmailExists:
		return newCredentialInUseError(code, message, resp.StatusCode)
	case codeUserDisabled:
		return newUserDisabledError(message, resp.StatusCode)
	case codeNeedConfirmation:
		return newNeedConfirmationError(nil, resp.StatusCode)
	default:
		return &Error{Code: code, Message: message, StatusCode: resp.StatusCode}
	}
}

// splitServerMessage splits "CODE : detail" into its parts. A message
// without a separator is all code.
func splitServerMessage(s string) (code, detail string) {
	code, detail, found := strings.Cut(s, ":")
	code = strings.TrimSpace(code)
	if !found {
		return code, ""
	}
	return code, strings.TrimSpace(detail)
}
