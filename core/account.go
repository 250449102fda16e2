package core

// Balance is a single-currency account entry as reported by the exchange.
// AvgBuyPrice is denominated in UnitCurrency.
type Balance struct {
	Currency     string
	Balance      float64
	Locked       float64
	AvgBuyPrice  float64
	UnitCurrency string
}

// Available returns the amount free for new orders: balance minus the part
// locked in open orders, floored at zero.
func (b Balance) Available() float64 {
	free := b.Balance - b.Locked
	if free < 0 {
		return 0
	}
	return free
}

// Total returns balance plus locked.
func (b Balance) Total() float64 {
	return b.Balance + b.Locked
}

// Account is a point-in-time snapshot of all balances. It is fetched fresh
// for every prepare step and never cached across commands.
type Account struct {
	Balances []Balance
}

// Balance returns the entry for a currency, or a zero Balance when the
// account holds none of it.
func (a Account) Balance(currency string) Balance {
	for _, b := range a.Balances {
		if b.Currency == currency {
			return b
		}
	}
	return Balance{Currency: currency}
}
