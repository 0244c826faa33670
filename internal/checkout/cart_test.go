package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_AddMergesAndTotals(t *testing.T) {
	cart := NewCart()
	require.NoError(t, cart.Add(CartLine{EquipmentID: 1, UnitPrice: 10000000, Quantity: 1}))

	totals := cart.Totals(10)
	assert.Equal(t, int64(10000000), totals.Subtotal)
	assert.Equal(t, int64(1000000), totals.VAT)
	assert.Equal(t, int64(11000000), totals.Total)

	require.NoError(t, cart.Add(CartLine{EquipmentID: 1, UnitPrice: 10000000, Quantity: 2}))
	require.NoError(t, cart.Add(CartLine{EquipmentID: 2, UnitPrice: 500000, Quantity: 1}))
	assert.Equal(t, 2, cart.Len())
	assert.Equal(t, 3, cart.Lines()[0].Quantity)
	assert.Equal(t, int64(30500000), cart.Totals(10).Subtotal)
}

func TestCart_QuantityChanges(t *testing.T) {
	cart := NewCart()
	require.NoError(t, cart.Add(CartLine{EquipmentID: 1, UnitPrice: 100, Quantity: 1}))
	require.NoError(t, cart.Add(CartLine{EquipmentID: 2, UnitPrice: 200, Quantity: 1}))

	cart.SetQuantity(2, 5)
	assert.Equal(t, int64(1100), cart.Totals(0).Subtotal)

	cart.SetQuantity(1, 0)
	require.Len(t, cart.Lines(), 1)
	assert.Equal(t, uint(2), cart.Lines()[0].EquipmentID)

	cart.Remove(2)
	assert.Zero(t, cart.Len())

	assert.ErrorIs(t, cart.Add(CartLine{EquipmentID: 3, Quantity: 0}), ErrInvalidQuantity)
}

func TestCart_LinesIsACopy(t *testing.T) {
	cart := NewCart()
	require.NoError(t, cart.Add(CartLine{EquipmentID: 1, UnitPrice: 100, Quantity: 1}))

	lines := cart.Lines()
	lines[0].Quantity = 50

	assert.Equal(t, 1, cart.Lines()[0].Quantity)
}

func TestNewReference(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		ref, err := NewReference()
		require.NoError(t, err)
		assert.True(t, ValidReference(ref), ref)
		seen[ref] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)

	assert.False(t, ValidReference("ABCD0123"))
	assert.False(t, ValidReference("abcd2345"))
	assert.False(t, ValidReference("ABC"))
}

func TestCustomer_Validate(t *testing.T) {
	valid := Customer{
		Name:    "Nguyễn Văn A",
		Email:   " Sales@Example.VN ",
		Phone:   "+84 912 345 678",
		Address: "1 Lê Lợi, Quận 1",
	}.Normalize()
	require.NoError(t, valid.Validate())
	assert.Equal(t, "sales@example.vn", valid.Email)
	assert.Equal(t, PaymentBankTransfer, valid.PaymentMethod)

	bad := Customer{Email: "not-an-email", Phone: "12", PaymentMethod: "crypto"}.Normalize()
	err := bad.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "phone")
	assert.Contains(t, verr.Fields, "address")
	assert.Contains(t, verr.Fields, "payment_method")
}
