package billing

import "math"

// paidTolerance absorbs float drift when comparing monetary amounts: two
// amounts closer than a cent are treated as equal.
const paidTolerance = 0.01

// roundEpsilon nudges values sitting exactly on the half-cent boundary so
// they round up rather than down after binary-float representation error.
const roundEpsilon = 1e-9

// Round2 rounds a monetary value to two decimal places, half-up at the cent.
func Round2(v float64) float64 {
	return math.Round((v+roundEpsilon)*100) / 100
}

// DeriveStatus computes the invoice status from its total and paid amounts.
// Fully paid wins over unpaid so a zero-total invoice reports PAID.
func DeriveStatus(total, paid float64) InvoiceStatus {
	total = Round2(total)
	paid = Round2(paid)
	switch {
	case math.Abs(total-paid) < paidTolerance:
		return StatusPaid
	case paid < paidTolerance:
		return StatusUnpaid
	default:
		return StatusPartial
	}
}
