package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tradegate/tradegate/internal/decision"
)

// OrderRequest describes one order to place.
type OrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // BUY or SELL
	Type     string  `json:"type"` // MARKET or LIMIT
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}

// OrderResponse is the venue acknowledgement for a placed order.
type OrderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
}

// PlaceOrder submits a signed order.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(req.Side))
	params.Set("type", strings.ToUpper(req.Type))
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if strings.EqualFold(req.Type, "LIMIT") {
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
		params.Set("timeInForce", "GTC")
	}

	var body OrderResponse
	err := c.Invoke(ctx, "order", weightOrder, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParamsFromValues(c.signedParams(params)).
			SetResult(&body).
			Post("/api/v3/order")
		return c.checkResponse(resp, err)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("order placed",
		zap.String("symbol", body.Symbol),
		zap.Int64("order_id", body.OrderID),
		zap.String("status", body.Status),
	)
	return &body, nil
}

// OpenOrders lists open orders for a symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var body []OrderResponse
	err := c.Invoke(ctx, "open_orders", weightOpenOrders, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParamsFromValues(c.signedParams(params)).
			SetResult(&body).
			Get("/api/v3/openOrders")
		return c.checkResponse(resp, err)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Name implements decision.Executor.
func (c *Client) Name() string { return BreakerName }

// Execute implements decision.Executor: it turns an approved snapshot into a
// market order. Position size derives from the risked capital against the
// stop distance.
func (c *Client) Execute(ctx context.Context, snap *decision.Snapshot) error {
	qty, err := positionSize(snap)
	if err != nil {
		return err
	}

	_, err = c.PlaceOrder(ctx, OrderRequest{
		Symbol:   snap.Symbol,
		Side:     strings.ToUpper(snap.Direction),
		Type:     "MARKET",
		Quantity: qty,
	})
	return err
}

// positionSize risks 0.5% of balance against the stop distance.
func positionSize(snap *decision.Snapshot) (float64, error) {
	stopDistance := snap.Price - snap.StopLoss
	if strings.EqualFold(snap.Direction, "sell") {
		stopDistance = snap.StopLoss - snap.Price
	}
	if stopDistance <= 0 || snap.Price <= 0 {
		return 0, fmt.Errorf("cannot size position for %s: invalid stop distance", snap.Symbol)
	}
	riskAmount := snap.AccountBalance * 0.005
	return riskAmount / stopDistance, nil
}
