package scenario

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultUser_JSON(t *testing.T) {
	data, err := json.Marshal(DefaultUser())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"userId": 4,
		"firstName": "María",
		"lastName": "García",
		"imageUrl": "https://example.com/maria.jpg",
		"email": "maria.garcia@example.com",
		"phone": "+573007654321",
		"credential": {
			"username": "maria.garcia",
			"password": "SecurePass123!",
			"roleBasedAuthority": "ROLE_USER",
			"isEnabled": true,
			"isAccountNonExpired": true,
			"isAccountNonLocked": true,
			"isCredentialsNonExpired": true
		}
	}`, string(data))
}

func TestDefaultOrder_JSON(t *testing.T) {
	data, err := json.Marshal(DefaultOrder())
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderId":3,"orderDesc":"Complete shopping order","orderFee":1029.98,"cart":{"cartId":3}}`, string(data))

	data, err = json.Marshal(DefaultOrderItem())
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderId":3,"productId":4,"orderedQuantity":1}`, string(data))
}

func TestUniquePayloads(t *testing.T) {
	a := UniquePayloads(1)
	b := UniquePayloads(2)

	// ids stay fixed
	assert.Equal(t, 4, a.User.UserID)
	assert.Equal(t, DefaultOrder(), a.Order)
	assert.Equal(t, DefaultOrderItem(), a.OrderItem)
	assert.Equal(t, DefaultUser().Credential.Password, a.User.Credential.Password)

	assert.NotEqual(t, a.User.Credential.Username, b.User.Credential.Username)
	assert.True(t, strings.HasPrefix(a.User.Email, a.User.Credential.Username+"@"))
	assert.True(t, strings.HasPrefix(a.User.Phone, "+57300"))
	assert.Len(t, a.User.Phone, len("+573007654321"))
	assert.NotContains(t, a.User.Credential.Username, " ")

	// same seed, same identity
	assert.Equal(t, a, UniquePayloads(1))
}
