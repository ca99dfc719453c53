package inventory

import (
	"sort"
	"strings"
)

// UnknownProduct labels transactions whose nested product is missing.
const UnknownProduct = "Unknown"

// UncategorisedProduct labels products with no category.
const UncategorisedProduct = "Uncategorised"

// Movement is one bar of the sales vs restock chart.
type Movement struct {
	Name    string `json:"name"`
	Sales   int    `json:"sales"`
	Restock int    `json:"restock"`
}

// MergeTransactions folds sale and restock transactions into one row per
// product name, summing quantities. Rows keep the order in which each name
// first appears. Transactions of any other type are ignored.
func MergeTransactions(txs []Transaction) []Movement {
	index := make(map[string]int)
	var rows []Movement
	for _, tx := range txs {
		if tx.TransactionType != TransactionSale && tx.TransactionType != TransactionRestock {
			continue
		}
		name := UnknownProduct
		if tx.Product != nil && tx.Product.Name != "" {
			name = tx.Product.Name
		}
		i, ok := index[name]
		if !ok {
			i = len(rows)
			index[name] = i
			rows = append(rows, Movement{Name: name})
		}
		if tx.TransactionType == TransactionSale {
			rows[i].Sales += tx.Quantity
		} else {
			rows[i].Restock += tx.Quantity
		}
	}
	return rows
}

// FilterByName keeps transactions whose product name contains query, ignoring
// case. An empty query keeps everything.
func FilterByName(txs []Transaction, query string) []Transaction {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return txs
	}
	var out []Transaction
	for _, tx := range txs {
		name := UnknownProduct
		if tx.Product != nil && tx.Product.Name != "" {
			name = tx.Product.Name
		}
		if strings.Contains(strings.ToLower(name), query) {
			out = append(out, tx)
		}
	}
	return out
}

// CategoryTotal is one slice of the sales-by-category chart.
type CategoryTotal struct {
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
}

// CategorySales sums ordered quantities per product category. Items whose
// product is not in products are skipped. Results are sorted by quantity,
// largest first, then by category name.
func CategorySales(products []Product, orders []Order) []CategoryTotal {
	byID := make(map[int]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	totals := make(map[string]int)
	for _, o := range orders {
		for _, item := range o.Items {
			p, ok := byID[item.Product]
			if !ok {
				continue
			}
			category := p.Category
			if category == "" {
				category = UncategorisedProduct
			}
			totals[category] += item.Quantity
		}
	}

	out := make([]CategoryTotal, 0, len(totals))
	for category, qty := range totals {
		out = append(out, CategoryTotal{Category: category, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// MergeForecasts combines forecast lists by product name (case-insensitive).
// The first list to mention a product sets its position and values; later
// lists only fill fields that are still empty.
func MergeForecasts(lists ...[]ForecastItem) []ForecastItem {
	index := make(map[string]int)
	var out []ForecastItem
	for _, list := range lists {
		for _, item := range list {
			key := strings.ToLower(strings.TrimSpace(item.ProductName))
			if key == "" {
				continue
			}
			i, ok := index[key]
			if !ok {
				index[key] = len(out)
				out = append(out, item)
				continue
			}
			if out[i].PredictedSales == "" {
				out[i].PredictedSales = item.PredictedSales
			}
			if out[i].ConfidenceScore == "" {
				out[i].ConfidenceScore = item.ConfidenceScore
			}
		}
	}
	return out
}
