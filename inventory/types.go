package inventory

import "encoding/json"

// Decimal fields arrive as JSON strings ("12.50") from the backend and as
// bare numbers from the AI endpoints; json.Number accepts both.

// Product is a row of /api/product/.
type Product struct {
	ID                 int         `json:"id,omitempty"`
	Name               string      `json:"name"`
	Category           string      `json:"category,omitempty"`
	Description        string      `json:"description,omitempty"`
	QuantityInStock    int         `json:"quantity_in_stock"`
	Price              json.Number `json:"price"`
	ThresholdLevel     int         `json:"threshold_level,omitempty"`
	ExtraChargePercent json.Number `json:"extra_charge_percent,omitempty"`
	DateAdded          string      `json:"date_added,omitempty"`
}

// ProductRef is the product summary nested inside inventory transactions.
type ProductRef struct {
	ID              int         `json:"id"`
	Name            string      `json:"name"`
	Price           json.Number `json:"price"`
	QuantityInStock int         `json:"quantity_in_stock"`
}

const (
	TransactionSale    = "sale"
	TransactionRestock = "restock"
)

// Transaction is a row of /api/inventory/.
type Transaction struct {
	ID               int         `json:"id"`
	Product          *ProductRef `json:"product"`
	Quantity         int         `json:"quantity"`
	TransactionType  string      `json:"transaction_type"`
	TransactionCost  json.Number `json:"transaction_cost,omitempty"`
	TransactionDate  string      `json:"transaction_date,omitempty"`
	TransactionMonth string      `json:"transaction_month,omitempty"`
}

// TransactionRequest records a sale or restock.
type TransactionRequest struct {
	ProductID       int    `json:"product_id"`
	Quantity        int    `json:"quantity"`
	TransactionType string `json:"transaction_type"`
}

type OrderItem struct {
	ID          int         `json:"id,omitempty"`
	Order       int         `json:"order,omitempty"`
	Product     int         `json:"product"`
	ProductName string      `json:"product_name,omitempty"`
	Quantity    int         `json:"quantity"`
	Price       json.Number `json:"price,omitempty"`
	DemandMonth string      `json:"demand_month,omitempty"`
}

const (
	OrderPending   = "pending"
	OrderCompleted = "completed"
)

type Order struct {
	ID              int         `json:"id,omitempty"`
	CustomerName    string      `json:"customer_name"`
	TelephoneNumber string      `json:"telephone_number"`
	OrderDate       string      `json:"order_date,omitempty"`
	Status          string      `json:"status,omitempty"`
	TotalAmount     json.Number `json:"total_amount,omitempty"`
	Items           []OrderItem `json:"items"`
}

// StockAlert is raised by the backend when stock falls below a product's
// threshold level.
type StockAlert struct {
	ID          int    `json:"id"`
	Product     int    `json:"product"`
	ProductName string `json:"product_name,omitempty"`
	StockLevel  int    `json:"stock_level"`
	AlertDate   string `json:"alert_date,omitempty"`
	Resolved    bool   `json:"resolved"`
}

// AverageForecast is the /api/forecast/ body: the mean quantity per order
// item over the last 30 days, or a message when there were no sales.
type AverageForecast struct {
	Forecast *float64 `json:"forecast,omitempty"`
	Message  string   `json:"message,omitempty"`
}

type ForecastItem struct {
	ProductName     string      `json:"product_name"`
	PredictedSales  json.Number `json:"predicted_sales,omitempty"`
	ConfidenceScore json.Number `json:"confidence_score,omitempty"`
}

// DemandForecast is the /api/gemini-insights/ body.
type DemandForecast struct {
	Forecast []ForecastItem `json:"forecast"`
}

type InventoryAnalysis struct {
	Status   string   `json:"status"`
	Insights []string `json:"insights"`
}

type MovingProduct struct {
	Product        string      `json:"product"`
	Stock          json.Number `json:"stock,omitempty"`
	ProjectedSales json.Number `json:"projected_sales,omitempty"`
}

// ImportForecast is the /api/inventory-forecast/ body returned for an
// uploaded sheet.
type ImportForecast struct {
	Forecast           []ForecastItem    `json:"forecast"`
	InventoryAnalysis  InventoryAnalysis `json:"inventory_analysis"`
	FastMovingProducts []MovingProduct   `json:"fast_moving_products"`
	SlowMovingProducts []MovingProduct   `json:"slow_moving_products"`
}

// ImportRow is one record of an inventory sheet, also accepted as the JSON
// upload {"data": [...]}.
type ImportRow struct {
	ProductName    string      `json:"product_name"`
	Category       string      `json:"category,omitempty"`
	Price          json.Number `json:"price,omitempty"`
	Stock          json.Number `json:"stock"`
	SalesLastMonth json.Number `json:"sales_last_month"`
}

// Analytics is free-form AI output; only the top-level keys are fixed.
type Analytics map[string]json.RawMessage

type ChatRequest struct {
	Message       string `json:"message"`
	ChatSessionID string `json:"chat_session_id,omitempty"`
}

type ChatResponse struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}
