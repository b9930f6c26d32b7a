package scenario

import (
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// UserPayload is the body of a create user request.
type UserPayload struct {
	UserID     int               `json:"userId"`
	FirstName  string            `json:"firstName"`
	LastName   string            `json:"lastName"`
	ImageURL   string            `json:"imageUrl"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone"`
	Credential CredentialPayload `json:"credential"`
}

// CredentialPayload is the nested credential of a user.
type CredentialPayload struct {
	Username                string `json:"username"`
	Password                string `json:"password"`
	RoleBasedAuthority      string `json:"roleBasedAuthority"`
	IsEnabled               bool   `json:"isEnabled"`
	IsAccountNonExpired     bool   `json:"isAccountNonExpired"`
	IsAccountNonLocked      bool   `json:"isAccountNonLocked"`
	IsCredentialsNonExpired bool   `json:"isCredentialsNonExpired"`
}

// OrderPayload is the body of a create order request.
type OrderPayload struct {
	OrderID   int         `json:"orderId"`
	OrderDesc string      `json:"orderDesc"`
	OrderFee  float64     `json:"orderFee"`
	Cart      CartPayload `json:"cart"`
}

// CartPayload references the cart an order belongs to.
type CartPayload struct {
	CartID int `json:"cartId"`
}

// OrderItemPayload is the body of an add shipping item request.
type OrderItemPayload struct {
	OrderID         int `json:"orderId"`
	ProductID       int `json:"productId"`
	OrderedQuantity int `json:"orderedQuantity"`
}

// DefaultUser returns the fixed user every session creates.
func DefaultUser() UserPayload {
	return UserPayload{
		UserID:    4,
		FirstName: "María",
		LastName:  "García",
		ImageURL:  "https://example.com/maria.jpg",
		Email:     "maria.garcia@example.com",
		Phone:     "+573007654321",
		Credential: CredentialPayload{
			Username:                "maria.garcia",
			Password:                "SecurePass123!",
			RoleBasedAuthority:      "ROLE_USER",
			IsEnabled:               true,
			IsAccountNonExpired:     true,
			IsAccountNonLocked:      true,
			IsCredentialsNonExpired: true,
		},
	}
}

// DefaultOrder returns the fixed order.
func DefaultOrder() OrderPayload {
	return OrderPayload{
		OrderID:   3,
		OrderDesc: "Complete shopping order",
		OrderFee:  1029.98,
		Cart:      CartPayload{CartID: 3},
	}
}

// DefaultOrderItem returns the fixed shipping item.
func DefaultOrderItem() OrderItemPayload {
	return OrderItemPayload{OrderID: 3, ProductID: 4, OrderedQuantity: 1}
}

// Payloads holds the request bodies of one session.
type Payloads struct {
	User      UserPayload
	Order     OrderPayload
	OrderItem OrderItemPayload
}

// DefaultPayloads returns the fixed bodies.
func DefaultPayloads() Payloads {
	return Payloads{
		User:      DefaultUser(),
		Order:     DefaultOrder(),
		OrderItem: DefaultOrderItem(),
	}
}

// UniquePayloads returns the fixed bodies with a generated identity: name,
// email, phone and username vary, all ids stay fixed. A zero seed is random.
func UniquePayloads(seed uint64) Payloads {
	f := gofakeit.New(seed)
	p := DefaultPayloads()

	first, last := f.FirstName(), f.LastName()
	username := strings.ToLower(strings.ReplaceAll(first+"."+last, " ", "")) + "." + f.DigitN(4)

	p.User.FirstName = first
	p.User.LastName = last
	p.User.Email = username + "@" + f.DomainName()
	p.User.Phone = "+57" + f.Numerify("300#######")
	p.User.Credential.Username = username
	return p
}
