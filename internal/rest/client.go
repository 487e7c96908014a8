package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/pipeline"
)

const defaultTimeout = 5 * time.Second

// Config describes the REST collaborator endpoints.
type Config struct {
	BaseURL string
	UserID  string
	Timeout time.Duration
}

// Client talks to the trading-terminal REST collaborators: positions,
// account, risk limits, fills, order submission and the authoritative safety
// reads. Every successful response must carry a server-assigned timestamp;
// a response without one yields a snapshot with no observation time, which
// downstream staleness checks treat as unusable. Local wall-clock time is
// never substituted.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a client for the given endpoints.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type positionsResponse struct {
	Positions []struct {
		Symbol       string          `json:"symbol"`
		Qty          decimal.Decimal `json:"qty"`
		CurrentPrice decimal.Decimal `json:"currentPrice"`
		UpdatedAt    string          `json:"updatedAt"`
	} `json:"positions"`
	Timestamp string `json:"timestamp"`
}

// FetchPositions reads the full position set.
func (c *Client) FetchPositions(ctx context.Context) (model.FieldSnapshot[[]model.Position], error) {
	var resp positionsResponse
	if err := c.getJSON(ctx, "/v1/positions", &resp); err != nil {
		return model.Absent[[]model.Position](), err
	}

	positions := make([]model.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		updatedAt, _ := parseServerTime(p.UpdatedAt)
		positions = append(positions, model.Position{
			Symbol:       p.Symbol,
			Qty:          p.Qty,
			CurrentPrice: p.CurrentPrice,
			UpdatedAt:    updatedAt,
		})
	}
	return snapshotAt(positions, resp.Timestamp), nil
}

type accountResponse struct {
	BuyingPower decimal.Decimal `json:"buyingPower"`
	Timestamp   string          `json:"timestamp"`
}

// FetchBuyingPower reads the account buying power.
func (c *Client) FetchBuyingPower(ctx context.Context) (model.FieldSnapshot[decimal.Decimal], error) {
	var resp accountResponse
	if err := c.getJSON(ctx, "/v1/account", &resp); err != nil {
		return model.Absent[decimal.Decimal](), err
	}
	return snapshotAt(resp.BuyingPower, resp.Timestamp), nil
}

type riskLimitsResponse struct {
	MaxPosition      decimal.Decimal `json:"maxPosition"`
	MaxOrderNotional decimal.Decimal `json:"maxOrderNotional"`
	MaxTotalExposure decimal.Decimal `json:"maxTotalExposure"`
	Timestamp        string          `json:"timestamp"`
}

// FetchRiskLimits reads the account risk limits.
func (c *Client) FetchRiskLimits(ctx context.Context) (model.FieldSnapshot[model.RiskLimits], error) {
	var resp riskLimitsResponse
	if err := c.getJSON(ctx, "/v1/risk-limits", &resp); err != nil {
		return model.Absent[model.RiskLimits](), err
	}
	limits := model.RiskLimits{
		MaxPosition:      resp.MaxPosition,
		MaxOrderNotional: resp.MaxOrderNotional,
		MaxTotalExposure: resp.MaxTotalExposure,
	}
	return snapshotAt(limits, resp.Timestamp), nil
}

type fillsResponse struct {
	Fills []struct {
		Symbol   string          `json:"symbol"`
		Side     string          `json:"side"`
		Qty      decimal.Decimal `json:"qty"`
		Price    decimal.Decimal `json:"price"`
		FilledAt string          `json:"filledAt"`
	} `json:"fills"`
	Timestamp string `json:"timestamp"`
}

// FetchRecentFills reads recent executions for display consumers.
func (c *Client) FetchRecentFills(ctx context.Context) (model.FieldSnapshot[[]model.Fill], error) {
	var resp fillsResponse
	if err := c.getJSON(ctx, "/v1/fills", &resp); err != nil {
		return model.Absent[[]model.Fill](), err
	}
	fills := make([]model.Fill, 0, len(resp.Fills))
	for _, f := range resp.Fills {
		filledAt, _ := parseServerTime(f.FilledAt)
		fills = append(fills, model.Fill{
			Symbol:   f.Symbol,
			Side:     f.Side,
			Qty:      f.Qty,
			Price:    f.Price,
			FilledAt: filledAt,
		})
	}
	return snapshotAt(fills, resp.Timestamp), nil
}

// FetchKillSwitch reads the authoritative kill-switch payload, raw, so push
// and pull share one parser.
func (c *Client) FetchKillSwitch(ctx context.Context) ([]byte, error) {
	return c.getRaw(ctx, "/v1/safety/kill-switch")
}

// FetchCircuitBreaker reads the authoritative circuit-breaker payload.
func (c *Client) FetchCircuitBreaker(ctx context.Context) ([]byte, error) {
	return c.getRaw(ctx, "/v1/safety/circuit-breaker")
}

type submitRequest struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Qty         string `json:"qty"`
	OrderType   string `json:"orderType"`
	LimitPrice  string `json:"limitPrice,omitempty"`
	StopPrice   string `json:"stopPrice,omitempty"`
	TimeInForce string `json:"timeInForce"`
	UserID      string `json:"userId"`
}

type submitResponse struct {
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// SubmitOrder posts the order with the intent ID as idempotency key, so a
// retried unmodified form can never double-execute downstream.
func (c *Client) SubmitOrder(ctx context.Context, intent model.OrderIntent) (pipeline.SubmitReceipt, error) {
	form := intent.Form
	req := submitRequest{
		Symbol:      form.Symbol,
		Side:        form.Side.String(),
		Qty:         form.Qty.String(),
		OrderType:   form.Type.String(),
		TimeInForce: form.TimeInForce.String(),
		UserID:      c.cfg.UserID,
	}
	if form.Type.HasLimitPrice() {
		req.LimitPrice = form.LimitPrice.String()
	}
	if form.Type.HasStopPrice() {
		req.StopPrice = form.StopPrice.String()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return pipeline.SubmitReceipt{}, errors.Wrap(err, "marshal submit request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/v1/orders"), bytes.NewReader(body))
	if err != nil {
		return pipeline.SubmitReceipt{}, errors.Wrap(err, "build submit request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", intent.ID)

	raw, err := c.do(httpReq)
	if err != nil {
		return pipeline.SubmitReceipt{}, err
	}

	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return pipeline.SubmitReceipt{}, errors.Wrap(err, "decode submit response")
	}
	submittedAt, _ := parseServerTime(resp.Timestamp)
	return pipeline.SubmitReceipt{
		OrderID:     resp.OrderID,
		Status:      resp.Status,
		SubmittedAt: submittedAt,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	raw, err := c.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decode response from "+path)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request for "+path)
	}
	req.Header.Set("X-User-ID", c.cfg.UserID)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call "+req.URL.Path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response from "+req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("call %s, status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// snapshotAt builds a snapshot observed at the server-assigned timestamp.
// A missing or unparsable timestamp leaves ObservedAt zero, which downstream
// treats as unusable.
func snapshotAt[T any](value T, serverTime string) model.FieldSnapshot[T] {
	ts, ok := parseServerTime(serverTime)
	if !ok {
		return model.FieldSnapshot[T]{Value: value, Present: true}
	}
	return model.Observed(value, ts)
}

func parseServerTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || ts.IsZero() {
		return time.Time{}, false
	}
	return ts, true
}
