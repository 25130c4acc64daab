package payment

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
)

// HTTPGateway talks to a JSON payment processor:
//
//	POST {base}/authorizations            {amount_cents, payer, payee} -> {authorization_id}
//	POST {base}/authorizations/{id}/capture                            -> {transfer_id}
//	POST {base}/authorizations/{id}/release
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type authorizeRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Payer       string `json:"payer"`
	Payee       string `json:"payee"`
}

type authorizeResponse struct {
	AuthorizationID string `json:"authorization_id"`
}

type captureResponse struct {
	TransferID string `json:"transfer_id"`
}

// StatusError is a non-2xx processor response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("payment processor returned http %d: %s", e.StatusCode, e.Body)
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Authorize(ctx context.Context, amountCents int64, payer, payee string) (string, error) {
	var resp authorizeResponse
	body := authorizeRequest{AmountCents: amountCents, Payer: payer, Payee: payee}
	if err := g.doPost(ctx, g.baseURL+"/authorizations", body, &resp); err != nil {
		return "", err
	}
	return resp.AuthorizationID, nil
}

func (g *HTTPGateway) Capture(ctx context.Context, authorizationID string) (string, error) {
	var resp captureResponse
	endpoint := fmt.Sprintf("%s/authorizations/%s/capture", g.baseURL, url.PathEscape(authorizationID))
	if err := g.doPost(ctx, endpoint, nil, &resp); err != nil {
		return "", err
	}
	return resp.TransferID, nil
}

func (g *HTTPGateway) Release(ctx context.Context, authorizationID string) error {
	endpoint := fmt.Sprintf("%s/authorizations/%s/release", g.baseURL, url.PathEscape(authorizationID))
	return g.doPost(ctx, endpoint, nil, nil)
}

func (g *HTTPGateway) doPost(ctx context.Context, endpoint string, body any, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
