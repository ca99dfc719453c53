package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jrsteele09/stockpilot/internal/utils"
	"github.com/jrsteele09/stockpilot/inventory"
	"github.com/spf13/cobra"
)

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func newProductsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "List and manage products",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			products, err := c.Products(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(a.out, "id", "name", "category", "price", "stock", "threshold")
			for _, p := range products {
				t.row(p.ID, p.Name, p.Category, p.Price, p.QuantityInStock, p.ThresholdLevel)
			}
			return t.flush()
		},
	}

	var p inventory.Product
	var price, extra string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			p.Name = args[0]
			p.Price = json.Number(price)
			p.ExtraChargePercent = json.Number(extra)
			created, err := c.CreateProduct(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(a.out, created)
		},
	}
	add.Flags().StringVar(&p.Category, "category", "", "product category")
	add.Flags().StringVar(&p.Description, "description", "", "product description")
	add.Flags().StringVar(&price, "price", "0.00", "unit price")
	add.Flags().StringVar(&extra, "extra-charge", "", "extra charge percent")
	add.Flags().IntVar(&p.QuantityInStock, "stock", 0, "quantity in stock")
	add.Flags().IntVar(&p.ThresholdLevel, "threshold", 0, "stock alert threshold")

	var stock, threshold int
	var newPrice, category string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			existing, err := c.Product(cmd.Context(), id)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("stock") {
				existing.QuantityInStock = stock
			}
			if flags.Changed("threshold") {
				existing.ThresholdLevel = threshold
			}
			if flags.Changed("price") {
				existing.Price = json.Number(newPrice)
			}
			if flags.Changed("category") {
				existing.Category = category
			}
			updated, err := c.UpdateProduct(cmd.Context(), *existing)
			if err != nil {
				return err
			}
			return printJSON(a.out, updated)
		},
	}
	update.Flags().IntVar(&stock, "stock", 0, "quantity in stock")
	update.Flags().IntVar(&threshold, "threshold", 0, "stock alert threshold")
	update.Flags().StringVar(&newPrice, "price", "", "unit price")
	update.Flags().StringVar(&category, "category", "", "product category")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			return c.DeleteProduct(cmd.Context(), id)
		},
	}

	cmd.AddCommand(add, update, del)
	return cmd
}

func newInventoryCmd(a *app) *cobra.Command {
	var filter string
	var merged bool
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List sale and restock transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			txs, err := c.Transactions(cmd.Context())
			if err != nil {
				return err
			}
			txs = inventory.FilterByName(txs, filter)
			if merged {
				t := newTable(a.out, "product", "sales", "restock")
				for _, m := range inventory.MergeTransactions(txs) {
					t.row(m.Name, m.Sales, m.Restock)
				}
				return t.flush()
			}
			t := newTable(a.out, "id", "date", "product", "type", "quantity", "cost")
			for _, tx := range txs {
				name := inventory.UnknownProduct
				if tx.Product != nil {
					name = tx.Product.Name
				}
				t.row(tx.ID, tx.TransactionDate, name, tx.TransactionType, tx.Quantity, tx.TransactionCost)
			}
			return t.flush()
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "case-insensitive product name filter")
	cmd.Flags().BoolVar(&merged, "merged", false, "sum sales and restocks per product")

	record := &cobra.Command{
		Use:   "record <product-id> <quantity> <sale|restock>",
		Short: "Record a sale or restock",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			tx, err := c.RecordTransaction(cmd.Context(), inventory.TransactionRequest{
				ProductID:       id,
				Quantity:        qty,
				TransactionType: strings.ToLower(args[2]),
			})
			if err != nil {
				return err
			}
			return printJSON(a.out, tx)
		},
	}
	cmd.AddCommand(record)
	return cmd
}

// parseItems reads "product-id:quantity" pairs.
func parseItems(specs []string) ([]inventory.OrderItem, error) {
	items := make([]inventory.OrderItem, 0, len(specs))
	for _, spec := range specs {
		idPart, qtyPart, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("invalid item %q, want product-id:quantity", spec)
		}
		id, err := parseID(idPart)
		if err != nil {
			return nil, err
		}
		qty, err := strconv.Atoi(qtyPart)
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("invalid quantity in %q", spec)
		}
		items = append(items, inventory.OrderItem{Product: id, Quantity: qty})
	}
	return items, nil
}

func newOrdersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order"},
		Short:   "List and manage customer orders",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			orders, err := c.Orders(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(a.out, "id", "date", "customer", "status", "items", "total")
			for _, o := range orders {
				t.row(o.ID, o.OrderDate, o.CustomerName, o.Status, len(o.Items), o.TotalAmount)
			}
			return t.flush()
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one order with its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			o, err := c.Order(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(a.out, o)
		},
	}

	var customer, phone string
	var itemSpecs []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Place an order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseItems(itemSpecs)
			if err != nil {
				return err
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			o, err := c.CreateOrder(cmd.Context(), inventory.Order{CustomerName: customer, TelephoneNumber: phone, Items: items})
			if err != nil {
				return err
			}
			return printJSON(a.out, o)
		},
	}
	create.Flags().StringVar(&customer, "customer", "", "customer name")
	create.Flags().StringVar(&phone, "phone", "", "customer telephone number")
	create.Flags().StringArrayVar(&itemSpecs, "item", nil, "product-id:quantity, repeatable")
	_ = create.MarkFlagRequired("customer")

	addItem := &cobra.Command{
		Use:   "add-item <order-id> <product-id:quantity>",
		Short: "Add an item to an existing order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := parseID(args[0])
			if err != nil {
				return err
			}
			items, err := parseItems(args[1:])
			if err != nil {
				return err
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			item, err := c.AddOrderItem(cmd.Context(), orderID, items[0])
			if err != nil {
				return err
			}
			return printJSON(a.out, item)
		},
	}

	removeItem := &cobra.Command{
		Use:   "remove-item <item-id>",
		Short: "Remove an item from its order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			return c.DeleteOrderItem(cmd.Context(), id)
		},
	}

	status := &cobra.Command{
		Use:   "status <id> <pending|completed>",
		Short: "Change an order's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			o, err := c.UpdateOrderStatus(cmd.Context(), id, strings.ToLower(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Order %d is %s\n", o.ID, o.Status)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			return c.DeleteOrder(cmd.Context(), id)
		},
	}

	cmd.AddCommand(show, create, addItem, removeItem, status, del)
	return cmd
}

func newAlertsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alerts",
		Aliases: []string{"alert"},
		Short:   "List unresolved stock alerts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			alerts, err := c.StockAlerts(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(a.out, "id", "product", "stock", "raised")
			for _, al := range alerts {
				t.row(al.ID, al.ProductName, al.StockLevel, al.AlertDate)
			}
			return t.flush()
		},
	}
	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an alert resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := c.ResolveStockAlert(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Alert %d resolved\n", id)
			return nil
		},
	}
	cmd.AddCommand(resolve)
	return cmd
}

func newForecastCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Sales forecasts",
	}

	average := &cobra.Command{
		Use:   "average",
		Short: "Mean quantity per order item over the last 30 days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			f, err := c.AverageForecast(cmd.Context())
			if err != nil {
				return err
			}
			if f.Forecast == nil {
				fmt.Fprintln(a.out, f.Message)
				return nil
			}
			fmt.Fprintf(a.out, "%.2f units per order item\n", utils.Value(f.Forecast))
			return nil
		},
	}

	var uploads []string
	demand := &cobra.Command{
		Use:   "demand",
		Short: "Predicted sales per product, optionally merged with uploaded sheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			f, err := c.DemandForecast(cmd.Context())
			if err != nil {
				return err
			}
			sources := [][]inventory.ForecastItem{f.Forecast}
			for _, path := range uploads {
				imported, err := uploadSheet(cmd, c, path)
				if err != nil {
					return err
				}
				sources = append(sources, imported.Forecast)
			}
			t := newTable(a.out, "product", "predicted sales", "confidence")
			for _, item := range inventory.MergeForecasts(sources...) {
				t.row(item.ProductName, item.PredictedSales, item.ConfidenceScore)
			}
			return t.flush()
		},
	}
	demand.Flags().StringArrayVar(&uploads, "merge", nil, "CSV or Excel sheet to upload and merge, repeatable")

	cmd.AddCommand(average, demand)
	return cmd
}

func uploadSheet(cmd *cobra.Command, c *inventory.Client, path string) (*inventory.ImportForecast, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.ForecastFile(cmd.Context(), path, content)
}

func newImportCmd(a *app) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Upload an inventory sheet for stock analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if check {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				rows, err := inventory.ValidateImportCSV(f)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%d rows OK\n", len(rows))
				return nil
			}
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			out, err := uploadSheet(cmd, c, args[0])
			if err != nil {
				return err
			}
			return printJSON(a.out, out)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "validate a CSV sheet locally without uploading")
	return cmd
}

func newAnalyticsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show KPIs, inventory health and category sales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			out, err := c.Analytics(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(a.out, out)
		},
	}
}

func newChatCmd(a *app) *cobra.Command {
	var chatSession string
	cmd := &cobra.Command{
		Use:   "chat <message...>",
		Short: "Ask the inventory assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := c.Chat(cmd.Context(), inventory.ChatRequest{
				Message:       strings.Join(args, " "),
				ChatSessionID: chatSession,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, resp.Response)
			return nil
		},
	}
	cmd.Flags().StringVar(&chatSession, "session", "", "chat session id to continue")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET any backend path with the session's credentials and print the body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			body, err := c.Raw(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = a.out.Write(body)
			return err
		},
	}
}
