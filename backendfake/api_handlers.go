package backendfake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/stockpilot/internal/utils"
	"github.com/jrsteele09/stockpilot/inventory"
)

const maxUploadSize = 10 << 20

func idParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, errNotFound.Error())
		return 0, false
	}
	return id, true
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.listProducts())
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, found := s.data.getProduct(id)
	if !found {
		writeDetail(w, http.StatusNotFound, errNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func validateProduct(p inventory.Product) fieldErrors {
	errs := fieldErrors{}
	if strings.TrimSpace(p.Name) == "" {
		errs.add("name", "This field may not be blank.")
	}
	if _, err := p.Price.Float64(); err != nil {
		errs.add("price", "A valid number is required.")
	}
	if p.QuantityInStock < 0 {
		errs.add("quantity_in_stock", "Ensure this value is greater than or equal to 0.")
	}
	return errs
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var p inventory.Product
	if !decodeBody(w, r, &p) {
		return
	}
	if errs := validateProduct(p); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	for _, existing := range s.data.listProducts() {
		if strings.EqualFold(existing.Name, p.Name) {
			writeJSON(w, http.StatusBadRequest, fieldErrors{"name": {"product with this name already exists."}})
			return
		}
	}
	p.ID = 0
	writeJSON(w, http.StatusCreated, s.data.upsertProduct(p))
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, found := s.data.getProduct(id)
	if !found {
		writeDetail(w, http.StatusNotFound, errNotFound.Error())
		return
	}
	// PATCH semantics for both verbs: decode over the stored row.
	if !decodeBody(w, r, &p) {
		return
	}
	p.ID = id
	if errs := validateProduct(p); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	writeJSON(w, http.StatusOK, s.data.upsertProduct(p))
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if !s.data.deleteProduct(id) {
		writeDetail(w, http.StatusNotFound, errNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.listTransactions())
}

func (s *Server) recordTransaction(w http.ResponseWriter, r *http.Request) {
	var req inventory.TransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := s.data.recordTransaction(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.listOrders())
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	o, found := s.data.getOrder(id)
	if !found {
		writeDetail(w, http.StatusNotFound, errNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var o inventory.Order
	if !decodeBody(w, r, &o) {
		return
	}
	created, err := s.data.createOrder(o)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	o, err := s.data.setOrderStatus(id, body.Status)
	if err == errNotFound {
		writeDetail(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"status": {err.Error()}})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if !s.data.deleteOrder(id) {
		writeDetail(w, http.StatusNotFound, errNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listOrderItems(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	o, found := s.data.getOrder(id)
	if !found {
		writeDetail(w, http.StatusNotFound, errNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, o.Items)
}

func (s *Server) addOrderItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var item inventory.OrderItem
	if !decodeBody(w, r, &item) {
		return
	}
	created, err := s.data.addOrderItem(id, item)
	if err == errNotFound {
		writeDetail(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) deleteOrderItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if !s.data.deleteOrderItem(id) {
		writeDetail(w, http.StatusNotFound, errNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.data.openAlerts()
	if alerts == nil {
		alerts = []inventory.StockAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) updateAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Resolved bool `json:"resolved"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	a, found := s.data.resolveAlert(id, body.Resolved)
	if !found {
		writeDetail(w, http.StatusNotFound, errNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// averageForecast is the mean order item quantity.
func (s *Server) averageForecast(w http.ResponseWriter, r *http.Request) {
	var total, n int
	for _, o := range s.data.listOrders() {
		for _, item := range o.Items {
			total += item.Quantity
			n++
		}
	}
	if n == 0 {
		writeJSON(w, http.StatusOK, inventory.AverageForecast{Message: "No sales data found."})
		return
	}
	writeJSON(w, http.StatusOK, inventory.AverageForecast{Forecast: utils.Ptr(float64(total) / float64(n))})
}

// demandForecast stands in for the AI forecast with a fixed 10% uplift on
// units sold per product.
func (s *Server) demandForecast(w http.ResponseWriter, r *http.Request) {
	sold := s.data.soldPerProduct()
	out := inventory.DemandForecast{Forecast: []inventory.ForecastItem{}}
	for _, p := range s.data.listProducts() {
		predicted := int(math.Round(float64(sold[p.ID]) * 1.1))
		out.Forecast = append(out.Forecast, inventory.ForecastItem{
			ProductName:     p.Name,
			PredictedSales:  json.Number(strconv.Itoa(predicted)),
			ConfidenceScore: "0.8",
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	products := s.data.listProducts()
	orders := s.data.listOrders()

	var revenue float64
	for _, o := range orders {
		v, _ := o.TotalAmount.Float64()
		revenue += v
	}
	var stock, low, out int
	for _, p := range products {
		stock += p.QuantityInStock
		switch {
		case p.QuantityInStock == 0:
			out++
		case p.QuantityInStock < p.ThresholdLevel:
			low++
		}
	}
	avg := 0.0
	if len(orders) > 0 {
		avg = revenue / float64(len(orders))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kpis": map[string]any{
			"totalRevenue":      revenue,
			"averageOrderValue": avg,
			"totalOrders":       len(orders),
			"totalProducts":     len(products),
			"totalInventory":    stock,
			"topCategories":     inventory.CategorySales(products, orders),
		},
		"inventoryHealth": map[string]int{
			"totalProductsInStock": len(products) - out,
			"lowStockItems":        low,
			"outOfStockItems":      out,
		},
		"stockAlerts": s.data.openAlerts(),
	})
}

func (s *Server) chatbot(w http.ResponseWriter, r *http.Request) {
	var req inventory.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	query := strings.TrimSpace(req.Message)
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":      "No query provided",
			"resolution": "Please provide a question or command",
			"status":     "error",
		})
		return
	}
	alerts := s.data.openAlerts()
	answer := fmt.Sprintf("You asked: %q. There are %d products and %d open stock alerts.", query, len(s.data.listProducts()), len(alerts))
	writeJSON(w, http.StatusOK, inventory.ChatResponse{Response: answer, Status: "success"})
}

// inventoryForecast analyses an uploaded sheet, either multipart "file"
// (CSV) or JSON {"data": [...]}.
func (s *Server) inventoryForecast(w http.ResponseWriter, r *http.Request) {
	var rows []inventory.ImportRow
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid upload")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "No file provided")
			return
		}
		defer file.Close()
		if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
			writeError(w, http.StatusBadRequest, "Unsupported file format. Please upload CSV or Excel file.")
			return
		}
		content, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid upload")
			return
		}
		if rows, err = inventory.ValidateImportCSV(bytes.NewReader(content)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		var body struct {
			Data []inventory.ImportRow `json:"data"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		rows = body.Data
	}
	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	writeJSON(w, http.StatusOK, analyseRows(rows))
}

// analyseRows ranks products by sales velocity (sales per unit of stock).
// Products selling at least half their stock a month are fast moving.
func analyseRows(rows []inventory.ImportRow) inventory.ImportForecast {
	out := inventory.ImportForecast{
		Forecast:           []inventory.ForecastItem{},
		FastMovingProducts: []inventory.MovingProduct{},
		SlowMovingProducts: []inventory.MovingProduct{},
	}
	type ranked struct {
		row      inventory.ImportRow
		sales    float64
		velocity float64
	}
	var all []ranked
	shortages := 0
	for _, row := range rows {
		sales, _ := row.SalesLastMonth.Float64()
		stock, _ := row.Stock.Float64()
		velocity := sales
		if stock > 0 {
			velocity = sales / stock
		}
		all = append(all, ranked{row: row, sales: sales, velocity: velocity})
		predicted := math.Round(sales * 1.1)
		if predicted > stock {
			shortages++
		}
		out.Forecast = append(out.Forecast, inventory.ForecastItem{
			ProductName:     row.ProductName,
			PredictedSales:  json.Number(strconv.FormatFloat(predicted, 'f', -1, 64)),
			ConfidenceScore: "0.75",
		})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].velocity > all[j].velocity })
	var insights []string
	for _, a := range all {
		mp := inventory.MovingProduct{
			Product:        a.row.ProductName,
			Stock:          a.row.Stock,
			ProjectedSales: json.Number(strconv.FormatFloat(math.Round(a.sales*1.1), 'f', -1, 64)),
		}
		if a.velocity >= 0.5 {
			out.FastMovingProducts = append(out.FastMovingProducts, mp)
		} else {
			out.SlowMovingProducts = append(out.SlowMovingProducts, mp)
		}
	}

	status := "high"
	switch {
	case shortages > 0:
		status = "low"
		insights = append(insights, fmt.Sprintf("%d product(s) are projected to sell more than current stock", shortages))
	case len(out.FastMovingProducts) > 0:
		status = "medium"
	}
	insights = append(insights,
		fmt.Sprintf("%d fast moving product(s)", len(out.FastMovingProducts)),
		fmt.Sprintf("%d slow moving product(s)", len(out.SlowMovingProducts)),
	)
	out.InventoryAnalysis = inventory.InventoryAnalysis{Status: status, Insights: insights}
	return out
}
