package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "59.80", FormatMoney(MustMoney("59.8")))
	assert.Equal(t, "0.00", FormatMoney(Zero()))
	assert.Equal(t, "10.01", FormatMoney(MustMoney("10.005")))
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "2.0000", FormatQuantity(MustMoney("2")))
	assert.Equal(t, "0.3500", FormatQuantity(MustMoney("0.35")))
}
