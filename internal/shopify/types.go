package shopify

import (
	"strconv"
	"time"
)

// Order is the subset of a Shopify Admin REST order this service reads.
// Money amounts stay strings, as the API sends them.
type Order struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	SubtotalPrice         string     `json:"subtotal_price,omitempty"`
	TotalShippingPriceSet *PriceSet  `json:"total_shipping_price_set,omitempty"`
	LandingSite           string     `json:"landing_site,omitempty"`
	LineItems             []LineItem `json:"line_items"`
}

// IDString returns the order ID in decimal.
func (o Order) IDString() string { return strconv.FormatInt(o.ID, 10) }

// ShippingAmount returns the shop-currency shipping amount, or "" if absent.
func (o Order) ShippingAmount() string {
	if o.TotalShippingPriceSet == nil {
		return ""
	}
	return o.TotalShippingPriceSet.ShopMoney.Amount
}

// LineItem is one product line of an order.
type LineItem struct {
	ID       int64  `json:"id,omitempty"`
	Title    string `json:"title"`
	Quantity int64  `json:"quantity"`
	Price    string `json:"price"`
}

// PriceSet holds an amount in shop and presentment currencies.
type PriceSet struct {
	ShopMoney Money `json:"shop_money"`
}

// Money is an amount with its currency.
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code,omitempty"`
}

type ordersResponse struct {
	Orders []Order `json:"orders"`
}
