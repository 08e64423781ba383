package shopify

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ignite/marketer-attribution/internal/report"
)

// Explode turns an order into one purchase row per line item, spreading the
// order's shipping across lines in proportion to each line's subtotal
// (price x quantity). Shares are rounded to cents and the last priced line
// takes the remainder, so line revenues always add up to the line subtotals
// plus shipping. With a zero subtotal no shipping is allocated.
//
// Negative quantities and unparseable prices count as zero.
func Explode(o Order) []report.PurchaseRow {
	if len(o.LineItems) == 0 {
		return nil
	}

	subtotals := make([]decimal.Decimal, len(o.LineItems))
	orderSubtotal := decimal.Zero
	lastPriced := -1
	for i, li := range o.LineItems {
		qty := li.Quantity
		if qty < 0 {
			qty = 0
		}
		sub := parseAmount(li.Price).Mul(decimal.NewFromInt(qty))
		subtotals[i] = sub
		orderSubtotal = orderSubtotal.Add(sub)
		if sub.IsPositive() {
			lastPriced = i
		}
	}

	shipping := parseAmount(o.ShippingAmount())
	allocated := decimal.Zero

	rows := make([]report.PurchaseRow, 0, len(o.LineItems))
	for i, li := range o.LineItems {
		share := decimal.Zero
		if orderSubtotal.IsPositive() && subtotals[i].IsPositive() {
			if i == lastPriced {
				share = shipping.Sub(allocated)
			} else {
				share = subtotals[i].Div(orderSubtotal).Mul(shipping).Round(2)
				allocated = allocated.Add(share)
			}
		}

		qty := li.Quantity
		if qty < 0 {
			qty = 0
		}
		rows = append(rows, report.PurchaseRow{
			OrderID:      o.IDString(),
			ProductTitle: li.Title,
			Quantity:     qty,
			Revenue:      subtotals[i].Add(share).InexactFloat64(),
			CreatedAt:    o.CreatedAt,
		})
	}
	return rows
}

// ExplodeAll explodes every order.
func ExplodeAll(orders []Order) []report.PurchaseRow {
	var rows []report.PurchaseRow
	for _, o := range orders {
		rows = append(rows, Explode(o)...)
	}
	return rows
}

// OrderRevenue is the order's line subtotals plus allocated shipping.
func OrderRevenue(o Order) decimal.Decimal {
	total := decimal.Zero
	for _, row := range Explode(o) {
		total = total.Add(decimal.NewFromFloat(row.Revenue))
	}
	return total.Round(2)
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}
