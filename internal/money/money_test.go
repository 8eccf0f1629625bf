package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"100.005", "100.01"}, // half goes up, not to even
		{"100.015", "100.02"},
		{"100.025", "100.03"},
		{"66.665", "66.67"},
		{"83.3375", "83.34"},
		{"0.004", "0.00"},
		{"0.005", "0.01"},
		{"-0.005", "-0.01"}, // ties away from zero for credits too
		{"89.991", "89.99"},
	}
	for _, c := range cases {
		got := Round(MustParse(c.in))
		assert.Equal(t, c.want, got.StringFixed(2), "Round(%s)", c.in)
	}
}

func TestRoundQuantity(t *testing.T) {
	// 366 inclusive days over a 365-day billing year.
	q := RoundQuantity(decimal.NewFromInt(366).Div(decimal.NewFromInt(365)))
	assert.Equal(t, "1.0027", q.StringFixed(4))

	q = RoundQuantity(decimal.NewFromInt(365).Div(decimal.NewFromInt(365)))
	assert.Equal(t, "1.0000", q.StringFixed(4))
}

func TestPercent(t *testing.T) {
	got := Percent(MustParse("66.67"), decimal.NewFromInt(25))
	assert.Equal(t, "16.67", got.StringFixed(2))

	got = Percent(MustParse("100.00"), decimal.Zero)
	assert.True(t, got.IsZero())
}

func TestMustParsePanics(t *testing.T) {
	require.Panics(t, func() { MustParse("not-a-number") })
}
