package scenario

import "slices"

// MaxProductIDs is how many product ids a session keeps from a listing.
const MaxProductIDs = 5

// State is the private record of one simulated user. The zero value is an
// empty session: no user, no products, no order.
type State struct {
	userID     int
	hasUserID  bool
	productIDs []int
	orderID    int
	hasOrderID bool
}

// UserID returns the user created by this session, if any.
func (s *State) UserID() (int, bool) {
	return s.userID, s.hasUserID
}

// SetUserID records the created user.
func (s *State) SetUserID(id int) {
	s.userID, s.hasUserID = id, true
}

// OrderID returns the order created by this session, if any.
func (s *State) OrderID() (int, bool) {
	return s.orderID, s.hasOrderID
}

// SetOrderID records the created order.
func (s *State) SetOrderID(id int) {
	s.orderID, s.hasOrderID = id, true
}

// ProductIDs returns a copy of the remembered product ids.
func (s *State) ProductIDs() []int {
	return slices.Clone(s.productIDs)
}

// SetProductIDs replaces the remembered product ids, keeping at most
// MaxProductIDs in order.
func (s *State) SetProductIDs(ids []int) {
	if len(ids) > MaxProductIDs {
		ids = ids[:MaxProductIDs]
	}
	s.productIDs = slices.Clone(ids)
}
