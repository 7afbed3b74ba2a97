package domain

import "github.com/shopspring/decimal"

// Money helpers. Amounts travel as float64 through the API; every value
// that lands in the ledger goes through RoundCents first so balances
// stay exact to the cent.

// RoundCents rounds a monetary amount half-up to two decimal places.
func RoundCents(amount float64) float64 {
	v, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return v
}

// InterestOn computes monthly interest on a balance at the given rate,
// rounded half-up to the cent.
func InterestOn(balance, monthlyRate float64) float64 {
	b := decimal.NewFromFloat(balance)
	r := decimal.NewFromFloat(monthlyRate)
	v, _ := b.Mul(r).Round(2).Float64()
	return v
}

// SameCents reports whether two amounts are equal once rounded to cents.
// Running balances are maintained through float64 arithmetic, so direct
// equality is too strict for invariant checks.
func SameCents(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(2).Equal(decimal.NewFromFloat(b).Round(2))
}

// AddMoney adds two amounts exactly and returns a cent-rounded result.
func AddMoney(a, b float64) float64 {
	v, _ := decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).Float64()
	return v
}
