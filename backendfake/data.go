package backendfake

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/stockpilot/inventory"
	"golang.org/x/crypto/bcrypt"
)

// User is an account held by the fake backend.
type User struct {
	ID           int
	Username     string
	Email        string
	PasswordHash string
	ResetToken   string
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(b), err
}

// data is the fake's in-memory database.
type data struct {
	lock sync.RWMutex

	users    map[string]*User // by username
	nextUser int

	products     map[int]*inventory.Product
	transactions []inventory.Transaction
	orders       map[int]*inventory.Order
	alerts       map[int]*inventory.StockAlert
	nextID       int
}

func newData() *data {
	return &data{
		users:    make(map[string]*User),
		products: make(map[int]*inventory.Product),
		orders:   make(map[int]*inventory.Order),
		alerts:   make(map[int]*inventory.StockAlert),
	}
}

func (d *data) id() int {
	d.nextID++
	return d.nextID
}

func (d *data) addUser(username, email, password string) (*User, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if _, ok := d.users[username]; ok {
		return nil, errors.New("A user with that username already exists.")
	}
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			return nil, errors.New("A user with this email already exists.")
		}
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	d.nextUser++
	u := &User{ID: d.nextUser, Username: username, Email: email, PasswordHash: hash}
	d.users[username] = u
	return u, nil
}

func (d *data) userByName(username string) (*User, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	u, ok := d.users[username]
	return u, ok
}

func (d *data) userByEmail(email string) (*User, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return nil, false
}

func (d *data) userByID(id int) (*User, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, u := range d.users {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

func (d *data) setResetToken(u *User, token string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	u.ResetToken = token
}

func (d *data) resetPassword(u *User, token, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if u.ResetToken == "" || u.ResetToken != token {
		return errors.New("Invalid or expired token")
	}
	u.PasswordHash = hash
	u.ResetToken = ""
	return nil
}

func (d *data) listProducts() []inventory.Product {
	d.lock.RLock()
	defer d.lock.RUnlock()
	out := make([]inventory.Product, 0, len(d.products))
	for _, p := range d.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *data) getProduct(id int) (inventory.Product, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	p, ok := d.products[id]
	if !ok {
		return inventory.Product{}, false
	}
	return *p, true
}

func (d *data) upsertProduct(p inventory.Product) inventory.Product {
	d.lock.Lock()
	defer d.lock.Unlock()
	if p.ID == 0 {
		p.ID = d.id()
		p.DateAdded = time.Now().UTC().Format(time.RFC3339)
	}
	if p.ThresholdLevel == 0 {
		p.ThresholdLevel = 5
	}
	if p.ExtraChargePercent == "" {
		p.ExtraChargePercent = "5.00"
	}
	d.products[p.ID] = &p
	d.checkStockAlertLocked(&p)
	return p
}

func (d *data) deleteProduct(id int) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if _, ok := d.products[id]; !ok {
		return false
	}
	delete(d.products, id)
	return true
}

// checkStockAlertLocked opens an alert when stock is under the threshold and
// resolves open alerts once it recovers.
func (d *data) checkStockAlertLocked(p *inventory.Product) {
	var open *inventory.StockAlert
	for _, a := range d.alerts {
		if a.Product == p.ID && !a.Resolved {
			open = a
		}
	}
	if p.QuantityInStock < p.ThresholdLevel {
		if open != nil {
			open.StockLevel = p.QuantityInStock
			return
		}
		a := &inventory.StockAlert{
			ID:          d.id(),
			Product:     p.ID,
			ProductName: p.Name,
			StockLevel:  p.QuantityInStock,
			AlertDate:   time.Now().UTC().Format(time.RFC3339),
		}
		d.alerts[a.ID] = a
		return
	}
	if open != nil {
		open.Resolved = true
	}
}

func (d *data) listTransactions() []inventory.Transaction {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return append([]inventory.Transaction(nil), d.transactions...)
}

func (d *data) recordTransaction(req inventory.TransactionRequest) (inventory.Transaction, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	p, ok := d.products[req.ProductID]
	if !ok {
		return inventory.Transaction{}, fmt.Errorf("Invalid pk \"%d\" - object does not exist.", req.ProductID)
	}
	if req.Quantity <= 0 {
		return inventory.Transaction{}, errors.New("Quantity must be greater than zero.")
	}
	switch req.TransactionType {
	case inventory.TransactionRestock:
		p.QuantityInStock += req.Quantity
	case inventory.TransactionSale:
		if p.QuantityInStock < req.Quantity {
			return inventory.Transaction{}, fmt.Errorf("Not enough stock for %s.", p.Name)
		}
		p.QuantityInStock -= req.Quantity
	default:
		return inventory.Transaction{}, fmt.Errorf("\"%s\" is not a valid choice.", req.TransactionType)
	}
	d.checkStockAlertLocked(p)

	now := time.Now().UTC()
	tx := inventory.Transaction{
		ID:               d.id(),
		Product:          &inventory.ProductRef{ID: p.ID, Name: p.Name, Price: p.Price, QuantityInStock: p.QuantityInStock},
		Quantity:         req.Quantity,
		TransactionType:  req.TransactionType,
		TransactionCost:  transactionCost(p.Price, p.ExtraChargePercent, req.Quantity),
		TransactionDate:  now.Format(time.RFC3339),
		TransactionMonth: now.Format("2006-01"),
	}
	d.transactions = append(d.transactions, tx)
	return tx, nil
}

// transactionCost is (price + price*extra/100) * qty, rounded to cents.
func transactionCost(price, extraPercent json.Number, qty int) json.Number {
	p, _ := price.Float64()
	e, _ := extraPercent.Float64()
	return json.Number(fmt.Sprintf("%.2f", (p+p*e/100)*float64(qty)))
}

func (d *data) listOrders() []inventory.Order {
	d.lock.RLock()
	defer d.lock.RUnlock()
	out := make([]inventory.Order, 0, len(d.orders))
	for _, o := range d.orders {
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *data) getOrder(id int) (inventory.Order, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	o, ok := d.orders[id]
	if !ok {
		return inventory.Order{}, false
	}
	return copyOrder(o), true
}

func copyOrder(o *inventory.Order) inventory.Order {
	c := *o
	c.Items = append([]inventory.OrderItem(nil), o.Items...)
	return c
}

func (d *data) createOrder(o inventory.Order) (inventory.Order, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if strings.TrimSpace(o.CustomerName) == "" {
		return inventory.Order{}, errors.New("customer_name: This field may not be blank.")
	}
	for _, item := range o.Items {
		p, ok := d.products[item.Product]
		if !ok {
			return inventory.Order{}, fmt.Errorf("Invalid pk \"%d\" - object does not exist.", item.Product)
		}
		if p.QuantityInStock < item.Quantity {
			return inventory.Order{}, fmt.Errorf("Insufficient stock for %s.", p.Name)
		}
	}

	o.ID = d.id()
	o.OrderDate = time.Now().UTC().Format(time.RFC3339)
	if o.Status == "" {
		o.Status = inventory.OrderPending
	}
	items := o.Items
	o.Items = nil
	for _, item := range items {
		d.addItemLocked(&o, item)
	}
	d.orders[o.ID] = &o
	return copyOrder(&o), nil
}

func (d *data) addItemLocked(o *inventory.Order, item inventory.OrderItem) inventory.OrderItem {
	p := d.products[item.Product]
	p.QuantityInStock -= item.Quantity
	d.checkStockAlertLocked(p)

	price, _ := p.Price.Float64()
	item.ID = d.id()
	item.Order = o.ID
	item.ProductName = p.Name
	item.Price = json.Number(fmt.Sprintf("%.2f", price*float64(item.Quantity)))
	item.DemandMonth = o.OrderDate[:7]
	o.Items = append(o.Items, item)

	var total float64
	for _, it := range o.Items {
		v, _ := it.Price.Float64()
		total += v
	}
	o.TotalAmount = json.Number(fmt.Sprintf("%.2f", total))
	return item
}

func (d *data) addOrderItem(orderID int, item inventory.OrderItem) (inventory.OrderItem, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	o, ok := d.orders[orderID]
	if !ok {
		return inventory.OrderItem{}, errNotFound
	}
	p, ok := d.products[item.Product]
	if !ok {
		return inventory.OrderItem{}, fmt.Errorf("Invalid pk \"%d\" - object does not exist.", item.Product)
	}
	if item.Quantity <= 0 {
		return inventory.OrderItem{}, errors.New("Quantity must be greater than zero.")
	}
	if p.QuantityInStock < item.Quantity {
		return inventory.OrderItem{}, fmt.Errorf("Not enough stock for %s.", p.Name)
	}
	return d.addItemLocked(o, item), nil
}

func (d *data) deleteOrderItem(id int) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	for _, o := range d.orders {
		for i, item := range o.Items {
			if item.ID == id {
				o.Items = append(o.Items[:i], o.Items[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (d *data) setOrderStatus(id int, status string) (inventory.Order, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	o, ok := d.orders[id]
	if !ok {
		return inventory.Order{}, errNotFound
	}
	if status != inventory.OrderPending && status != inventory.OrderCompleted {
		return inventory.Order{}, fmt.Errorf("\"%s\" is not a valid choice.", status)
	}
	o.Status = status
	return copyOrder(o), nil
}

func (d *data) deleteOrder(id int) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if _, ok := d.orders[id]; !ok {
		return false
	}
	delete(d.orders, id)
	return true
}

func (d *data) openAlerts() []inventory.StockAlert {
	d.lock.RLock()
	defer d.lock.RUnlock()
	var out []inventory.StockAlert
	for _, a := range d.alerts {
		if !a.Resolved {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *data) resolveAlert(id int, resolved bool) (inventory.StockAlert, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	a, ok := d.alerts[id]
	if !ok {
		return inventory.StockAlert{}, false
	}
	a.Resolved = resolved
	return *a, true
}

// soldPerProduct sums order item quantities per product id.
func (d *data) soldPerProduct() map[int]int {
	d.lock.RLock()
	defer d.lock.RUnlock()
	sold := make(map[int]int)
	for _, o := range d.orders {
		for _, item := range o.Items {
			sold[item.Product] += item.Quantity
		}
	}
	return sold
}

func (d *data) seed() {
	var ids []int
	for _, p := range []inventory.Product{
		{Name: "Laptop", Category: "Electronics", Price: "999.99", QuantityInStock: 50},
		{Name: "Office Chair", Category: "Furniture", Price: "199.99", QuantityInStock: 20},
		{Name: "Desk Lamp", Category: "Furniture", Price: "39.50", QuantityInStock: 3},
		{Name: "USB-C Cable", Category: "Electronics", Price: "9.99", QuantityInStock: 200},
	} {
		ids = append(ids, d.upsertProduct(p).ID)
	}
	laptop, chair, cable := ids[0], ids[1], ids[3]
	_, _ = d.recordTransaction(inventory.TransactionRequest{ProductID: laptop, Quantity: 5, TransactionType: inventory.TransactionSale})
	_, _ = d.recordTransaction(inventory.TransactionRequest{ProductID: laptop, Quantity: 10, TransactionType: inventory.TransactionRestock})
	_, _ = d.recordTransaction(inventory.TransactionRequest{ProductID: chair, Quantity: 2, TransactionType: inventory.TransactionSale})
	_, _ = d.createOrder(inventory.Order{
		CustomerName:    "Ada Lovelace",
		TelephoneNumber: "+441234567890",
		Items:           []inventory.OrderItem{{Product: laptop, Quantity: 2}, {Product: cable, Quantity: 10}},
	})
}
