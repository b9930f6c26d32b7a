package mockgw

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Product is the product-service DTO.
type Product struct {
	ProductID    int      `json:"productId"`
	ProductTitle string   `json:"productTitle"`
	ImageURL     string   `json:"imageUrl"`
	SKU          string   `json:"sku"`
	PriceUnit    float64  `json:"priceUnit"`
	Quantity     int      `json:"quantity"`
	Category     Category `json:"category"`
}

// Category is the nested product category.
type Category struct {
	CategoryID    int    `json:"categoryId"`
	CategoryTitle string `json:"categoryTitle"`
}

// User is the user-service DTO. Unknown fields of the request are dropped.
type User struct {
	UserID     int             `json:"userId"`
	FirstName  string          `json:"firstName"`
	LastName   string          `json:"lastName"`
	ImageURL   string          `json:"imageUrl"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	Credential *UserCredential `json:"credential,omitempty"`
}

// UserCredential is the nested credential. The password is never echoed.
type UserCredential struct {
	CredentialID       int    `json:"credentialId"`
	Username           string `json:"username"`
	Password           string `json:"password,omitempty"`
	RoleBasedAuthority string `json:"roleBasedAuthority"`
	IsEnabled          bool   `json:"isEnabled"`
}

// Order is the order-service DTO.
type Order struct {
	OrderID   int       `json:"orderId"`
	OrderDate time.Time `json:"orderDate"`
	OrderDesc string    `json:"orderDesc"`
	OrderFee  float64   `json:"orderFee"`
	Cart      *Cart     `json:"cart,omitempty"`
}

// Cart is the nested order cart.
type Cart struct {
	CartID int `json:"cartId"`
}

// OrderItem is the shipping-service DTO.
type OrderItem struct {
	OrderID         int `json:"orderId"`
	ProductID       int `json:"productId"`
	OrderedQuantity int `json:"orderedQuantity"`
}

// Collection wraps listings the way the services do.
type Collection[T any] struct {
	Collection []T `json:"collection"`
}

// Store holds the gateway's data in memory. Ids are assigned on create and
// ids sent by clients are ignored.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	products   []Product
	users      map[int]User
	orders     []Order
	orderItems []OrderItem
	nextUser   int
	nextOrder  int
}

// NewStore creates a store seeded with n products.
func NewStore(products int) *Store {
	s := &Store{
		users:     make(map[int]User),
		nextUser:  1,
		nextOrder: 1,
	}
	categories := []string{"Electronics", "Books", "Home", "Sports"}
	for i := 1; i <= products; i++ {
		s.products = append(s.products, Product{
			ProductID:    i,
			ProductTitle: fmt.Sprintf("Product %d", i),
			ImageURL:     fmt.Sprintf("https://example.com/products/%d.jpg", i),
			SKU:          fmt.Sprintf("SKU-%05d", i),
			PriceUnit:    float64(i*10) + 0.99,
			Quantity:     100,
			Category: Category{
				CategoryID:    i%len(categories) + 1,
				CategoryTitle: categories[i%len(categories)],
			},
		})
	}
	return s
}

// Products returns all products.
func (s *Store) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.products)
}

// CreateUser stores u under a fresh id and returns the stored copy.
func (s *Store) CreateUser(u User) User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.UserID = s.nextUser
	s.nextUser++
	if u.Credential != nil {
		cred := *u.Credential
		cred.CredentialID = u.UserID
		cred.Password = ""
		u.Credential = &cred
	}
	s.users[u.UserID] = u
	return u
}

// User looks up a user by id.
func (s *Store) User(id int) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// CreateOrder stores o under a fresh id.
func (s *Store) CreateOrder(o Order) Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.OrderID = s.nextOrder
	s.nextOrder++
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Now().UTC()
	}
	s.orders = append(s.orders, o)
	return o
}

// Orders returns all orders.
func (s *Store) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.orders)
}

// AddOrderItem appends a shipping item.
func (s *Store) AddOrderItem(item OrderItem) OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderItems = append(s.orderItems, item)
	return item
}

// OrderItems returns all shipping items.
func (s *Store) OrderItems() []OrderItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.orderItems)
}

// Counts returns the number of stored users, orders and shipping items.
func (s *Store) Counts() (users, orders, items int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), len(s.orders), len(s.orderItems)
}
