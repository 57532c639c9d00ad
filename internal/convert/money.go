package convert

import (
	"github.com/cockroachdb/apd/v3"
)

// moneyCtx performs exact decimal arithmetic; rounding is never applied.
var moneyCtx = apd.BaseContext.WithPrecision(34)

// Money returns a new decimal from its string form. It panics on malformed
// input and is meant for literals in formulas and tests.
func Money(s string) *apd.Decimal {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns a new zero money value.
func Zero() *apd.Decimal {
	return apd.New(0, 0)
}

// FormatMoney renders d in plain (non-exponent) notation.
func FormatMoney(d *apd.Decimal) string {
	if d == nil {
		return "0"
	}
	return d.Text('f')
}

// AddMoney returns a + b. Nil operands count as zero.
func AddMoney(a, b *apd.Decimal) *apd.Decimal {
	res := new(apd.Decimal)
	_, err := moneyCtx.Add(res, orZero(a), orZero(b))
	if err != nil {
		return Zero()
	}
	return res
}

// SubMoney returns a - b. Nil operands count as zero.
func SubMoney(a, b *apd.Decimal) *apd.Decimal {
	res := new(apd.Decimal)
	_, err := moneyCtx.Sub(res, orZero(a), orZero(b))
	if err != nil {
		return Zero()
	}
	return res
}

// MulMoney returns a * b. Nil operands count as zero.
func MulMoney(a, b *apd.Decimal) *apd.Decimal {
	res := new(apd.Decimal)
	_, err := moneyCtx.Mul(res, orZero(a), orZero(b))
	if err != nil {
		return Zero()
	}
	return res
}

// MoneyFromInt returns n as a money value.
func MoneyFromInt(n int64) *apd.Decimal {
	return apd.New(n, 0)
}

func orZero(d *apd.Decimal) *apd.Decimal {
	if d == nil {
		return Zero()
	}
	return d
}
