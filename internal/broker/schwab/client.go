package schwab

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"trader/internal/broker"
	"trader/internal/model"
	"trader/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

const (
	_schwabTraderBaseUrl     = "https://api.schwabapi.com/trader/v1"
	_schwabMarketDataBaseUrl = "https://api.schwabapi.com/marketdata/v1"

	_requestTimeout = 15 * time.Second
)

// TokenSource yields a currently valid OAuth access token. Implementations
// own the refresh dance; callers just ask again on every request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client talks to the Schwab trader and market-data REST APIs. It satisfies
// broker.Client; all failures come back as pkg/exception sentinels so callers
// never inspect HTTP status codes.
type Client struct {
	client *http.Client
	tokens TokenSource

	mu   sync.Mutex
	hash string
}

func NewClient(client *http.Client, tokens TokenSource) *Client {
	return &Client{
		client: client,
		tokens: tokens,
	}
}

// AccountHash resolves the opaque account hash the trading endpoints expect.
// The hash is stable for the life of the account, so it is fetched once.
func (c *Client) AccountHash(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hash != "" {
		return c.hash, nil
	}

	var accounts []accountNumberResponse
	if _, err := c.do(ctx, http.MethodGet, _schwabTraderBaseUrl+"/accounts/accountNumbers", nil, &accounts); err != nil {
		return "", errors.Wrap(err, "list account numbers")
	}
	if len(accounts) == 0 {
		return "", errors.Wrap(exception.ErrBrokerEmptyResponse, "no accounts for token")
	}

	c.hash = accounts[0].HashValue
	return c.hash, nil
}

func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	if len(symbols) == 0 {
		return map[string]model.Quote{}, nil
	}

	url := _schwabMarketDataBaseUrl + "/quotes?symbols=" + strings.Join(symbols, ",")
	var payload map[string]quoteResponse
	if _, err := c.do(ctx, http.MethodGet, url, nil, &payload); err != nil {
		return nil, errors.Wrap(err, "get quotes")
	}

	quotes := make(map[string]model.Quote, len(payload))
	for symbol, resp := range payload {
		quotes[symbol] = resp.toQuote()
	}
	return quotes, nil
}

func (c *Client) Order(ctx context.Context, orderID string) (broker.OrderDetail, error) {
	hash, err := c.AccountHash(ctx)
	if err != nil {
		return broker.OrderDetail{}, err
	}

	var resp orderResponse
	if _, err := c.do(ctx, http.MethodGet, c.orderUrl(hash, orderID), nil, &resp); err != nil {
		return broker.OrderDetail{}, errors.Wrapf(err, "get order %s", orderID)
	}
	return resp.toDetail(), nil
}

// PlaceOrder submits spec and returns the broker-assigned order id, which
// the API reports only through the Location response header.
func (c *Client) PlaceOrder(ctx context.Context, spec broker.OrderSpec) (string, error) {
	hash, err := c.AccountHash(ctx)
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, _schwabTraderBaseUrl+"/accounts/"+hash+"/orders", orderRequestFrom(spec), nil)
	if err != nil {
		return "", errors.Wrap(err, "place order")
	}

	id := orderIDFromLocation(resp.Header.Get("Location"))
	if id == "" {
		return "", errors.Wrap(exception.ErrBrokerEmptyResponse, "place order: no order id in response")
	}
	return id, nil
}

// ReplaceOrder atomically swaps a working order for spec. Not every order
// shape survives a native replace; those come back as ErrBrokerUnsupported so
// the caller can fall back to cancel-and-resubmit.
func (c *Client) ReplaceOrder(ctx context.Context, orderID string, spec broker.OrderSpec) (string, error) {
	hash, err := c.AccountHash(ctx)
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPut, c.orderUrl(hash, orderID), orderRequestFrom(spec), nil)
	if err != nil {
		return "", errors.Wrapf(err, "replace order %s", orderID)
	}

	id := orderIDFromLocation(resp.Header.Get("Location"))
	if id == "" {
		return "", errors.Wrap(exception.ErrBrokerEmptyResponse, "replace order: no order id in response")
	}
	return id, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	hash, err := c.AccountHash(ctx)
	if err != nil {
		return err
	}

	if _, err := c.do(ctx, http.MethodDelete, c.orderUrl(hash, orderID), nil, nil); err != nil {
		return errors.Wrapf(err, "cancel order %s", orderID)
	}
	return nil
}

func (c *Client) orderUrl(hash, orderID string) string {
	return _schwabTraderBaseUrl + "/accounts/" + hash + "/orders/" + orderID
}

// userPreference fetches the streaming endpoint and identifiers a streamer
// login needs.
func (c *Client) userPreference(ctx context.Context) (streamerInfo, error) {
	var resp userPreferenceResponse
	if _, err := c.do(ctx, http.MethodGet, _schwabTraderBaseUrl+"/userPreference", nil, &resp); err != nil {
		return streamerInfo{}, errors.Wrap(err, "get user preference")
	}
	if len(resp.StreamerInfo) == 0 {
		return streamerInfo{}, errors.Wrap(exception.ErrBrokerEmptyResponse, "no streamer info in user preference")
	}
	return resp.StreamerInfo[0], nil
}

// do sends one authenticated request and decodes the JSON body into out when
// out is non-nil. The response body is fully read either way so the transport
// can reuse the connection.
func (c *Client) do(ctx context.Context, method, url string, body any, out any) (*http.Response, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, errors.Wrap(exception.ErrBrokerAuth, err.Error())
	}

	var reader io.Reader
	if body != nil {
		payload, err := sonic.ConfigFastest.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, _requestTimeout)
	defer cancel()
	r, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	r.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(r)
	if err != nil {
		return nil, errors.Wrap(exception.ErrBrokerTransport, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return resp, normalizeError(resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, errors.Wrap(err, "decode response body")
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp, nil
}

// normalizeError folds an HTTP failure into the exception sentinels. The raw
// body is kept in the message for the logs.
func normalizeError(status int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Wrapf(exception.ErrBrokerAuth, "status %d: %s", status, body)
	case status == http.StatusNotFound:
		return errors.Wrapf(exception.ErrOrderNotFound, "status %d: %s", status, body)
	case strings.Contains(lower, "filled"):
		return errors.Wrapf(exception.ErrOrderAlreadyFilled, "status %d: %s", status, body)
	case strings.Contains(lower, "canceled") || strings.Contains(lower, "cancelled"):
		return errors.Wrapf(exception.ErrOrderAlreadyCanceled, "status %d: %s", status, body)
	case strings.Contains(lower, "not editable") || strings.Contains(lower, "cannot be replaced"):
		return errors.Wrapf(exception.ErrBrokerUnsupported, "status %d: %s", status, body)
	case status >= 500:
		return errors.Wrapf(exception.ErrBrokerTransport, "status %d: %s", status, body)
	default:
		return errors.Wrapf(exception.ErrBrokerRequest, "status %d: %s", status, body)
	}
}

// orderIDFromLocation extracts the trailing path segment of the Location
// header, e.g. ".../orders/1003811730601" -> "1003811730601".
func orderIDFromLocation(location string) string {
	if location == "" {
		return ""
	}
	if i := strings.LastIndexByte(location, '/'); i >= 0 {
		return location[i+1:]
	}
	return location
}
