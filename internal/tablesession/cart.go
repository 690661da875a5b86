package tablesession

import (
	"strings"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
)

type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart collects a table's pending selection. Lines are keyed by product name.
type Cart struct {
	lines []CartLine
}

// Add merges quantity into the line with the same product name or appends a new one.
func (c *Cart) Add(product catalogdomain.Response, quantity int) {
	if quantity <= 0 {
		quantity = 1
	}
	for i := range c.lines {
		if strings.EqualFold(c.lines[i].Name, product.Name) {
			c.lines[i].Quantity += quantity
			return
		}
	}
	c.lines = append(c.lines, CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Quantity:  quantity,
	})
}

func (c *Cart) Remove(name string) bool {
	for i := range c.lines {
		if strings.EqualFold(c.lines[i].Name, name) {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}
