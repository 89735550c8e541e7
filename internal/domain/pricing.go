package domain

// ChargeLine is one priced line of an authoritative charge.
type ChargeLine struct {
	ProductID string
	Name      string
	Quantity  int64
	UnitPrice int64
	Total     int64
}

// Charge is the server-computed amount for a checkout. All amounts are minor units.
type Charge struct {
	Currency    string
	Lines       []ChargeLine
	Subtotal    int64
	Discount    int64
	Total       int64
	AmountMinor int64
	PromoCodeID string
}

// OrderItems converts the frozen charge lines into order items.
func (c Charge) OrderItems() []OrderItem {
	return ChargeLinesToItems(c.Lines)
}

// ChargeLinesToItems copies charge lines into order items without recomputing prices.
func ChargeLinesToItems(lines []ChargeLine) []OrderItem {
	if len(lines) == 0 {
		return nil
	}
	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	return items
}
