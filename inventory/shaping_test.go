package inventory_test

import (
	"testing"

	"github.com/jrsteele09/stockpilot/inventory"
	"github.com/stretchr/testify/require"
)

func tx(name, kind string, qty int) inventory.Transaction {
	t := inventory.Transaction{TransactionType: kind, Quantity: qty}
	if name != "" {
		t.Product = &inventory.ProductRef{Name: name}
	}
	return t
}

func TestMergeTransactions(t *testing.T) {
	t.Run("sums per product in first-seen order", func(t *testing.T) {
		rows := inventory.MergeTransactions([]inventory.Transaction{
			tx("Laptop", inventory.TransactionSale, 5),
			tx("Chair", inventory.TransactionRestock, 10),
			tx("Laptop", inventory.TransactionRestock, 3),
			tx("Laptop", inventory.TransactionSale, 2),
			tx("Chair", inventory.TransactionSale, 1),
		})
		require.Equal(t, []inventory.Movement{
			{Name: "Laptop", Sales: 7, Restock: 3},
			{Name: "Chair", Sales: 1, Restock: 10},
		}, rows)
	})

	t.Run("missing product is Unknown", func(t *testing.T) {
		rows := inventory.MergeTransactions([]inventory.Transaction{
			tx("", inventory.TransactionSale, 4),
			tx("", inventory.TransactionSale, 1),
		})
		require.Equal(t, []inventory.Movement{{Name: inventory.UnknownProduct, Sales: 5}}, rows)
	})

	t.Run("other transaction types are ignored", func(t *testing.T) {
		rows := inventory.MergeTransactions([]inventory.Transaction{tx("Laptop", "adjustment", 4)})
		require.Empty(t, rows)
	})
}

func TestFilterByName(t *testing.T) {
	txs := []inventory.Transaction{
		tx("Desk Lamp", inventory.TransactionSale, 1),
		tx("Laptop", inventory.TransactionSale, 1),
		tx("", inventory.TransactionSale, 1),
	}
	require.Len(t, inventory.FilterByName(txs, ""), 3)
	require.Len(t, inventory.FilterByName(txs, "  "), 3)

	lamps := inventory.FilterByName(txs, "LAMP")
	require.Len(t, lamps, 1)
	require.Equal(t, "Desk Lamp", lamps[0].Product.Name)

	require.Len(t, inventory.FilterByName(txs, "unknown"), 1)
	require.Empty(t, inventory.FilterByName(txs, "sofa"))
}

func TestCategorySales(t *testing.T) {
	products := []inventory.Product{
		{ID: 1, Name: "Laptop", Category: "Electronics"},
		{ID: 2, Name: "Cable", Category: "Electronics"},
		{ID: 3, Name: "Chair", Category: "Furniture"},
		{ID: 4, Name: "Mystery"},
	}
	orders := []inventory.Order{
		{Items: []inventory.OrderItem{{Product: 1, Quantity: 2}, {Product: 3, Quantity: 4}}},
		{Items: []inventory.OrderItem{{Product: 2, Quantity: 1}, {Product: 4, Quantity: 3}, {Product: 99, Quantity: 50}}},
	}

	require.Equal(t, []inventory.CategoryTotal{
		{Category: "Furniture", Quantity: 4},
		{Category: "Electronics", Quantity: 3},
		{Category: inventory.UncategorisedProduct, Quantity: 3},
	}, inventory.CategorySales(products, orders))

	require.Empty(t, inventory.CategorySales(products, nil))
}

func TestMergeForecasts(t *testing.T) {
	ai := []inventory.ForecastItem{
		{ProductName: "Laptop", PredictedSales: "12"},
		{ProductName: "Chair", PredictedSales: "4", ConfidenceScore: "0.9"},
	}
	uploaded := []inventory.ForecastItem{
		{ProductName: "laptop ", PredictedSales: "99", ConfidenceScore: "0.75"},
		{ProductName: "Widget", PredictedSales: "33", ConfidenceScore: "0.75"},
		{ProductName: "", PredictedSales: "1"},
	}

	require.Equal(t, []inventory.ForecastItem{
		{ProductName: "Laptop", PredictedSales: "12", ConfidenceScore: "0.75"},
		{ProductName: "Chair", PredictedSales: "4", ConfidenceScore: "0.9"},
		{ProductName: "Widget", PredictedSales: "33", ConfidenceScore: "0.75"},
	}, inventory.MergeForecasts(ai, uploaded))

	require.Empty(t, inventory.MergeForecasts())
}
