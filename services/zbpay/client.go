// Package zbpaysvc is the HTTP client for the ZbPay payments gateway.
package zbpaysvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/kudatec/karo/core"
	"github.com/kudatec/karo/core/payments"
)

const (
	initiatePath = "/payments/initiate-transaction"
	statusPath   = "/payments/transaction/%s/status/check"
)

type client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

var _ payments.Gateway = (*client)(nil)

func NewClient(conf *core.Config) payments.Gateway {
	return &client{
		http:    &http.Client{Timeout: conf.ZbPay.Timeout},
		baseURL: strings.TrimRight(conf.ZbPay.BaseURL, "/"),
		apiKey:  conf.ZbPay.ApiKey,
	}
}

func (c *client) InitiateTransaction(ctx context.Context, req payments.InitiateRequest) (payments.InitiateResponse, error) {
	var resp payments.InitiateResponse
	if err := c.do(ctx, http.MethodPost, initiatePath, req, &resp); err != nil {
		return payments.InitiateResponse{}, err
	}
	if resp.PaymentURL == "" {
		return payments.InitiateResponse{}, &payments.GatewayError{Msg: "gateway response missing paymentUrl"}
	}
	return resp, nil
}

func (c *client) CheckPayment(ctx context.Context, orderReference string) (payments.StatusResponse, error) {
	var resp payments.StatusResponse
	path := fmt.Sprintf(statusPath, url.PathEscape(orderReference))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return payments.StatusResponse{}, err
	}
	return resp, nil
}

// do sends one request and decodes the JSON response. A non-2xx status or a
// body that does not parse as JSON is a hard error; callers never advance
// state on either.
func (c *client) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding gateway request")
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return errors.Wrap(err, "building gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &payments.GatewayError{Msg: fmt.Sprintf("calling gateway: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := ioutil.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &payments.GatewayError{Msg: fmt.Sprintf("reading gateway response: %v", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &payments.GatewayError{Msg: fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, truncate(raw, 512))}
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &payments.GatewayError{Msg: fmt.Sprintf("gateway returned non-JSON body: %s", truncate(raw, 512))}
	}
	return nil
}

func truncate(raw []byte, n int) string {
	if len(raw) > n {
		raw = raw[:n]
	}
	return string(raw)
}
