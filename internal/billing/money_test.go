package billing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{1.005, 1.01},
		{1.004999, 1.0},
		{2.675, 2.68},
		{10.0 / 3.0, 3.33},
		{99.999, 100.0},
		{-1.004, -1.0},
	}
	for _, c := range cases {
		require.InDelta(t, c.want, Round2(c.in), 1e-9, "Round2(%v)", c.in)
	}
}

func TestDeriveStatus(t *testing.T) {
	require.Equal(t, StatusUnpaid, DeriveStatus(100, 0))
	require.Equal(t, StatusUnpaid, DeriveStatus(100, 0.004))
	require.Equal(t, StatusPartial, DeriveStatus(100, 0.01))
	require.Equal(t, StatusPartial, DeriveStatus(100, 50))
	require.Equal(t, StatusPartial, DeriveStatus(100, 99.98))
	require.Equal(t, StatusPaid, DeriveStatus(100, 99.995))
	require.Equal(t, StatusPaid, DeriveStatus(100, 100))
}

func TestDeriveStatusZeroTotal(t *testing.T) {
	// Fully paid wins over unpaid for a zero-total invoice.
	require.Equal(t, StatusPaid, DeriveStatus(0, 0))
}

func TestDeriveStatusFloatDrift(t *testing.T) {
	// Three allocations of 33.33 plus 0.01 should settle a 100.00 invoice
	// despite binary float representation error.
	paid := 0.0
	for _, a := range []float64{33.33, 33.33, 33.33, 0.01} {
		paid = Round2(paid + a)
	}
	require.Equal(t, StatusPaid, DeriveStatus(100.00, paid))
}
