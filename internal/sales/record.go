package sales

import "time"

// Record is one generated sale. Prices are in cents.
type Record struct {
	Product   string    `json:"product"`
	Category  string    `json:"category"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int64     `json:"quantity"`
	SoldAt    time.Time `json:"sold_at"`
}

func (r Record) Total() int64 {
	return r.UnitPrice * r.Quantity
}
