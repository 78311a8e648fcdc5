package vehicledata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
)

// Config describes the upstream API and its credentials.
type Config struct {
	BaseURL      string // e.g. https://history.mot.api.gov.uk/v1/trade/vehicles
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	APIKey       string
	Timeout      time.Duration
}

// Client performs registration lookups.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	tokens *TokenCache
	log    *zap.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: vehicle data base url, token url and client id are required", errs.ErrValidation)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	if cfg.Scope != "" {
		cc.Scopes = []string{cfg.Scope}
	}
	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: NewTokenCache(cc, 0),
		log:    log,
	}, nil
}

type motTest struct {
	CompletedDate string `json:"completedDate"`
	TestResult    string `json:"testResult"`
	ExpiryDate    string `json:"expiryDate"`
}

type vehicleResponse struct {
	Registration   string    `json:"registration"`
	Make           string    `json:"make"`
	PrimaryColour  string    `json:"primaryColour"`
	MOTTestDueDate string    `json:"motTestDueDate"`
	TaxDueDate     string    `json:"taxDueDate"`
	MOTTests       []motTest `json:"motTests"`
}

// motExpiry prefers the explicit due date of vehicles without a test
// history, then the expiry of the most recent passed test.
func (r vehicleResponse) motExpiry() string {
	if r.MOTTestDueDate != "" {
		return r.MOTTestDueDate
	}
	for _, t := range r.MOTTests {
		if t.ExpiryDate != "" && (t.TestResult == "" || strings.EqualFold(t.TestResult, "PASSED")) {
			return t.ExpiryDate
		}
	}
	return ""
}

// Lookup fetches what the API knows about registration. An unknown
// registration maps to errs.ErrNotFound. A 401 invalidates the cached token
// and the request is retried once.
func (c *Client) Lookup(ctx context.Context, registration string) (model.VehicleLookup, error) {
	reg := strings.ToUpper(strings.Join(strings.Fields(registration), ""))
	if reg == "" {
		return model.VehicleLookup{}, fmt.Errorf("%w: empty registration", errs.ErrValidation)
	}

	var (
		body vehicleResponse
		err  error
	)
	for attempt := 0; attempt < 2; attempt++ {
		body, err = c.get(ctx, reg)
		if !errors.Is(err, errTokenRejected) {
			break
		}
		c.log.Warn("vehicle data token rejected, refreshing", zap.Int("attempt", attempt+1))
		c.tokens.Invalidate()
	}
	if err != nil {
		return model.VehicleLookup{}, err
	}

	out := model.VehicleLookup{
		Registration: body.Registration,
		Make:         body.Make,
		Colour:       body.PrimaryColour,
		MOTExpiry:    body.motExpiry(),
		TaxDueDate:   body.TaxDueDate,
	}
	if out.Registration == "" {
		out.Registration = reg
	}
	return out, nil
}

var errTokenRejected = errors.New("access token rejected")

func (c *Client) get(ctx context.Context, reg string) (vehicleResponse, error) {
	var out vehicleResponse

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return out, err
	}
	u := c.base.JoinPath("registration", reg)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return out, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("vehicle data request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return out, fmt.Errorf("registration %s: %w", reg, errs.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		return out, errTokenRejected
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, fmt.Errorf("vehicle data: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return out, fmt.Errorf("decode vehicle data: %w", err)
	}
	return out, nil
}
