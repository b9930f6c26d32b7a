package scenario

import (
	"context"
	"slices"
)

// Task names.
const (
	TaskViewProducts   = "view_products"
	TaskCreateUser     = "create_user"
	TaskGetUser        = "get_user"
	TaskCreateOrder    = "create_order"
	TaskAddOrderItem   = "add_order_item"
	TaskViewOrders     = "view_orders"
	TaskViewOrderItems = "view_order_items"
)

// Gateway routes.
const (
	PathProducts  = "/product-service/api/products"
	PathUsers     = "/user-service/api/users"
	PathOrders    = "/order-service/api/orders"
	PathShippings = "/shipping-service/api/shippings"
)

// Task is one weighted, schedulable operation.
type Task struct {
	Name        string
	Weight      int
	Description string
	Run         func(u *User, ctx context.Context)
}

var tasks = []Task{
	{TaskViewProducts, 3, "GET products, remember first 5 ids", (*User).ViewProducts},
	{TaskCreateUser, 2, "POST user, remember userId", (*User).CreateUser},
	{TaskGetUser, 2, "GET user by id (needs userId)", (*User).GetUser},
	{TaskCreateOrder, 1, "POST order, remember orderId (needs userId)", (*User).CreateOrder},
	{TaskAddOrderItem, 1, "POST shipping item (needs orderId and products)", (*User).AddOrderItem},
	{TaskViewOrders, 1, "GET orders", (*User).ViewOrders},
	{TaskViewOrderItems, 1, "GET shippings", (*User).ViewOrderItems},
}

// Tasks returns all operations in declaration order.
func Tasks() []Task {
	return slices.Clone(tasks)
}

// Lookup finds a task by name.
func Lookup(name string) (Task, bool) {
	for _, t := range tasks {
		if t.Name == name {
			return t, true
		}
	}
	return Task{}, false
}

// DefaultWeights maps every task name to its built-in weight.
func DefaultWeights() map[string]int {
	weights := make(map[string]int, len(tasks))
	for _, t := range tasks {
		weights[t.Name] = t.Weight
	}
	return weights
}
