package inventory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jrsteele09/stockpilot/authclient"
	"github.com/jrsteele09/stockpilot/backend"
)

// API is the subset of authclient.Client the resource client needs.
type API interface {
	Do(ctx context.Context, req *authclient.Request) (*authclient.Response, error)
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, path string, in, out any) error
	PutJSON(ctx context.Context, path string, in, out any) error
	PatchJSON(ctx context.Context, path string, in, out any) error
	Delete(ctx context.Context, path string) error
	PostMultipart(ctx context.Context, path, field, filename string, content io.Reader, out any) error
}

var _ API = (*authclient.Client)(nil)

// Client is the typed view of the /api/* resources. Every call goes through
// the authenticated client and so shares its refresh-and-replay policy.
type Client struct {
	api API
}

func NewClient(api API) *Client {
	return &Client{api: api}
}

func itemPath(base string, id int) string {
	return base + strconv.Itoa(id) + "/"
}

func (c *Client) Products(ctx context.Context) ([]Product, error) {
	var out []Product
	if err := c.api.GetJSON(ctx, backend.RouteProducts, nil, &out); err != nil {
		return nil, fmt.Errorf("[inventory Products] %w", err)
	}
	return out, nil
}

func (c *Client) Product(ctx context.Context, id int) (*Product, error) {
	out := &Product{}
	if err := c.api.GetJSON(ctx, itemPath(backend.RouteProducts, id), nil, out); err != nil {
		return nil, fmt.Errorf("[inventory Product] %d: %w", id, err)
	}
	return out, nil
}

func (c *Client) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	out := &Product{}
	if err := c.api.PostJSON(ctx, backend.RouteProducts, p, out); err != nil {
		return nil, fmt.Errorf("[inventory CreateProduct] %w", err)
	}
	return out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, p Product) (*Product, error) {
	out := &Product{}
	if err := c.api.PutJSON(ctx, itemPath(backend.RouteProducts, p.ID), p, out); err != nil {
		return nil, fmt.Errorf("[inventory UpdateProduct] %d: %w", p.ID, err)
	}
	return out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id int) error {
	if err := c.api.Delete(ctx, itemPath(backend.RouteProducts, id)); err != nil {
		return fmt.Errorf("[inventory DeleteProduct] %d: %w", id, err)
	}
	return nil
}

func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	var out []Transaction
	if err := c.api.GetJSON(ctx, backend.RouteInventory, nil, &out); err != nil {
		return nil, fmt.Errorf("[inventory Transactions] %w", err)
	}
	return out, nil
}

// RecordTransaction posts a sale or restock; the backend adjusts stock and
// raises alerts.
func (c *Client) RecordTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if req.TransactionType != TransactionSale && req.TransactionType != TransactionRestock {
		return nil, fmt.Errorf("[inventory RecordTransaction] unknown transaction type %q", req.TransactionType)
	}
	out := &Transaction{}
	if err := c.api.PostJSON(ctx, backend.RouteInventory, req, out); err != nil {
		return nil, fmt.Errorf("[inventory RecordTransaction] %w", err)
	}
	return out, nil
}

func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	var out []Order
	if err := c.api.GetJSON(ctx, backend.RouteOrders, nil, &out); err != nil {
		return nil, fmt.Errorf("[inventory Orders] %w", err)
	}
	return out, nil
}

func (c *Client) Order(ctx context.Context, id int) (*Order, error) {
	out := &Order{}
	if err := c.api.GetJSON(ctx, itemPath(backend.RouteOrders, id), nil, out); err != nil {
		return nil, fmt.Errorf("[inventory Order] %d: %w", id, err)
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, o Order) (*Order, error) {
	out := &Order{}
	if err := c.api.PostJSON(ctx, backend.RouteOrders, o, out); err != nil {
		return nil, fmt.Errorf("[inventory CreateOrder] %w", err)
	}
	return out, nil
}

// UpdateOrderStatus patches only the status field.
func (c *Client) UpdateOrderStatus(ctx context.Context, id int, status string) (*Order, error) {
	out := &Order{}
	body := map[string]string{"status": status}
	if err := c.api.PatchJSON(ctx, itemPath(backend.RouteOrders, id), body, out); err != nil {
		return nil, fmt.Errorf("[inventory UpdateOrderStatus] %d: %w", id, err)
	}
	return out, nil
}

func (c *Client) DeleteOrder(ctx context.Context, id int) error {
	if err := c.api.Delete(ctx, itemPath(backend.RouteOrders, id)); err != nil {
		return fmt.Errorf("[inventory DeleteOrder] %d: %w", id, err)
	}
	return nil
}

func (c *Client) OrderItems(ctx context.Context, orderID int) ([]OrderItem, error) {
	var out []OrderItem
	path := itemPath(backend.RouteOrders, orderID) + "items/"
	if err := c.api.GetJSON(ctx, path, nil, &out); err != nil {
		return nil, fmt.Errorf("[inventory OrderItems] %d: %w", orderID, err)
	}
	return out, nil
}

func (c *Client) AddOrderItem(ctx context.Context, orderID int, item OrderItem) (*OrderItem, error) {
	out := &OrderItem{}
	path := itemPath(backend.RouteOrders, orderID) + "items/"
	if err := c.api.PostJSON(ctx, path, item, out); err != nil {
		return nil, fmt.Errorf("[inventory AddOrderItem] %d: %w", orderID, err)
	}
	return out, nil
}

func (c *Client) DeleteOrderItem(ctx context.Context, id int) error {
	if err := c.api.Delete(ctx, itemPath(backend.RouteOrderItems, id)); err != nil {
		return fmt.Errorf("[inventory DeleteOrderItem] %d: %w", id, err)
	}
	return nil
}

// StockAlerts lists unresolved alerts.
func (c *Client) StockAlerts(ctx context.Context) ([]StockAlert, error) {
	var out []StockAlert
	if err := c.api.GetJSON(ctx, backend.RouteStockAlerts, nil, &out); err != nil {
		return nil, fmt.Errorf("[inventory StockAlerts] %w", err)
	}
	return out, nil
}

func (c *Client) ResolveStockAlert(ctx context.Context, id int) (*StockAlert, error) {
	out := &StockAlert{}
	body := map[string]bool{"resolved": true}
	if err := c.api.PatchJSON(ctx, itemPath(backend.RouteStockAlerts, id), body, out); err != nil {
		return nil, fmt.Errorf("[inventory ResolveStockAlert] %d: %w", id, err)
	}
	return out, nil
}

func (c *Client) AverageForecast(ctx context.Context) (*AverageForecast, error) {
	out := &AverageForecast{}
	if err := c.api.GetJSON(ctx, backend.RouteForecast, nil, out); err != nil {
		return nil, fmt.Errorf("[inventory AverageForecast] %w", err)
	}
	return out, nil
}

func (c *Client) DemandForecast(ctx context.Context) (*DemandForecast, error) {
	out := &DemandForecast{}
	if err := c.api.GetJSON(ctx, backend.RouteGeminiInsights, nil, out); err != nil {
		return nil, fmt.Errorf("[inventory DemandForecast] %w", err)
	}
	return out, nil
}

func (c *Client) Analytics(ctx context.Context) (Analytics, error) {
	out := Analytics{}
	if err := c.api.GetJSON(ctx, backend.RouteAnalytics, nil, &out); err != nil {
		return nil, fmt.Errorf("[inventory Analytics] %w", err)
	}
	return out, nil
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("[inventory Chat] empty message")
	}
	out := &ChatResponse{}
	if err := c.api.PostJSON(ctx, backend.RouteChatbot, req, out); err != nil {
		return nil, fmt.Errorf("[inventory Chat] %w", err)
	}
	return out, nil
}

// ForecastFile uploads a CSV or Excel sheet to /api/inventory-forecast/.
// CSV content is validated locally first so a malformed sheet never reaches
// the backend.
func (c *Client) ForecastFile(ctx context.Context, filename string, content []byte) (*ImportForecast, error) {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		if _, err := ValidateImportCSV(bytes.NewReader(content)); err != nil {
			return nil, fmt.Errorf("[inventory ForecastFile] %w", err)
		}
	}
	out := &ImportForecast{}
	if err := c.api.PostMultipart(ctx, backend.RouteInventoryForecast, "file", filepath.Base(filename), bytes.NewReader(content), out); err != nil {
		return nil, fmt.Errorf("[inventory ForecastFile] %w", err)
	}
	return out, nil
}

// ForecastRows posts already-parsed rows as {"data": [...]}.
func (c *Client) ForecastRows(ctx context.Context, rows []ImportRow) (*ImportForecast, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("[inventory ForecastRows] no rows")
	}
	out := &ImportForecast{}
	body := struct {
		Data []ImportRow `json:"data"`
	}{Data: rows}
	if err := c.api.PostJSON(ctx, backend.RouteInventoryForecast, body, out); err != nil {
		return nil, fmt.Errorf("[inventory ForecastRows] %w", err)
	}
	return out, nil
}

// Raw issues GET path and returns the body untouched.
func (c *Client) Raw(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.api.Do(ctx, &authclient.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, fmt.Errorf("[inventory Raw] %s: %w", path, err)
	}
	return resp.Body, nil
}
