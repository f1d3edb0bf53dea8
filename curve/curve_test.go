package curve_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meenmo/prepaysim/curve"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRate_ExactOnly(t *testing.T) {
	t.Parallel()

	c, err := curve.New("COP", day(2025, 1, 31), []curve.Node{
		{TenorDays: 30, Rate: 0.10},
		{TenorDays: 1, Rate: 0.09},
		{TenorDays: 60, Rate: 0.11},
	})
	require.NoError(t, err)

	r, err := c.Rate(30)
	require.NoError(t, err)
	require.Equal(t, 0.10, r)

	_, err = c.Rate(45)
	var missing *curve.MissingNodeError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, 45, missing.TenorDays)
	require.Equal(t, "COP", missing.Currency)
}

func TestForwardNodes(t *testing.T) {
	t.Parallel()

	c, err := curve.New("COP", day(2025, 1, 31), []curve.Node{
		{TenorDays: 1, Rate: 0.09},
		{TenorDays: 365, Rate: 0.10},
		{TenorDays: 730, Rate: 0.105},
	})
	require.NoError(t, err)

	nodes, err := c.ForwardNodes([]int{730, 1, 365, 365})
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	require.Equal(t, 1, nodes[0].TenorDays)
	require.Equal(t, 730, nodes[2].TenorDays)

	require.InDelta(t, 1/1.10, nodes[1].DiscountFactor, 1e-14)
	require.InDelta(t, math.Log(1.10), nodes[1].Forward, 1e-14)
	require.InDelta(t, 2.0, nodes[2].Time, 1e-14)

	_, err = c.ForwardNodes([]int{1, 400})
	var missing *curve.MissingNodeError
	require.ErrorAs(t, err, &missing)
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	_, err := curve.New("COP", day(2025, 1, 31), nil)
	require.Error(t, err)

	_, err = curve.New("COP", day(2025, 1, 31), []curve.Node{{TenorDays: 1, Rate: 0.1}, {TenorDays: 1, Rate: 0.2}})
	require.Error(t, err)

	_, err = curve.New("COP", day(2025, 1, 31), []curve.Node{{TenorDays: 0, Rate: 0.1}})
	require.Error(t, err)
}

func TestHistory(t *testing.T) {
	t.Parallel()

	mk := func(d time.Time, r float64) *curve.Curve {
		c, err := curve.New("USD", d, []curve.Node{{TenorDays: 1, Rate: r}, {TenorDays: 30, Rate: r + 0.001}})
		require.NoError(t, err)
		return c
	}
	h, err := curve.NewHistory("USD", []*curve.Curve{
		mk(day(2025, 1, 3), 0.03),
		mk(day(2025, 1, 1), 0.01),
		mk(day(2025, 1, 2), 0.02),
	})
	require.NoError(t, err)
	require.Equal(t, 3, h.Len())

	asOf, err := h.AsOf(day(2025, 1, 2))
	require.NoError(t, err)
	require.Equal(t, day(2025, 1, 2), asOf.Date())

	_, err = h.AsOf(day(2024, 12, 31))
	require.Error(t, err)

	dates, values, err := h.Series(1, day(2025, 1, 5))
	require.NoError(t, err)
	require.Equal(t, []float64{0.01, 0.02, 0.03}, values)
	require.Equal(t, day(2025, 1, 1), dates[0])

	_, _, err = h.Series(7, day(2025, 1, 5))
	require.Error(t, err)

	other, err := curve.New("EUR", day(2025, 1, 4), []curve.Node{{TenorDays: 1, Rate: 0.02}})
	require.NoError(t, err)
	_, err = curve.NewHistory("USD", []*curve.Curve{other})
	require.Error(t, err)
}
