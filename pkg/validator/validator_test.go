package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderPayload struct {
	Currency string `validate:"currency"`
	Status   string `validate:"order_status"`
}

func newValidate(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	require.NoError(t, v.RegisterValidation("currency", validCurrency))
	require.NoError(t, v.RegisterValidation("order_status", validOrderStatus))
	return v
}

func TestCurrencyValidation(t *testing.T) {
	v := newValidate(t)

	assert.NoError(t, v.Var("EUR", "currency"))
	assert.NoError(t, v.Var("USD", "currency"))
	assert.Error(t, v.Var("eur", "currency"))
	assert.Error(t, v.Var("EURO", "currency"))
	assert.Error(t, v.Var("E1", "currency"))
	assert.Error(t, v.Var("", "currency"))
}

func TestOrderStatusValidation(t *testing.T) {
	v := newValidate(t)

	for _, status := range []string{"placed", "accepted", "shipped", "completed", "canceled"} {
		assert.NoError(t, v.Var(status, "order_status"), status)
	}
	assert.Error(t, v.Var("pending", "order_status"))
	assert.Error(t, v.Var("", "order_status"))
}

func TestStructValidation(t *testing.T) {
	v := newValidate(t)

	assert.NoError(t, v.Struct(orderPayload{Currency: "GBP", Status: "placed"}))
	assert.Error(t, v.Struct(orderPayload{Currency: "pounds", Status: "placed"}))
}
