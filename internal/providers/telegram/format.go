package telegram

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout = "02/01/2006"
	timeLayout = "15:04:05"
)

// Format renders the Markdown body sent through sendMessage.
func Format(msg Message, restaurant, eta string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	placed := msg.PlacedAt.In(loc)
	name := strings.ToUpper(strings.TrimSpace(restaurant))

	var b strings.Builder
	if msg.IsAddition {
		fmt.Fprintf(&b, "🍽️ *ADIÇÃO DE ITENS - %s* 🍽️\n\n", name)
	} else {
		fmt.Fprintf(&b, "🍽️ *NOVO PEDIDO - %s* 🍽️\n\n", name)
	}
	fmt.Fprintf(&b, "📋 *NÚMERO DO PEDIDO:* #%s\n", msg.OrderNumber)
	fmt.Fprintf(&b, "📅 *DATA:* %s\n", placed.Format(dateLayout))
	fmt.Fprintf(&b, "⏰ *HORA:* %s\n\n", placed.Format(timeLayout))

	b.WriteString("👤 *DADOS DO CLIENTE:*\n")
	fmt.Fprintf(&b, "📝 *Nome:* %s\n", msg.Customer.Name)
	if msg.Customer.Phone != "" {
		fmt.Fprintf(&b, "📞 *Telefone:* %s\n", msg.Customer.Phone)
	}
	fmt.Fprintf(&b, "📍 *Endereço:* %s\n", msg.Customer.Address)
	if msg.Customer.Email != "" {
		fmt.Fprintf(&b, "📧 *Email:* %s\n", msg.Customer.Email)
	}
	b.WriteString("\n")

	b.WriteString("💰 *ITENS DO PEDIDO:*\n")
	for _, item := range msg.Items {
		fmt.Fprintf(&b, "• %dx %s - R$ %s\n", item.Quantity, item.Name, item.Subtotal.StringFixed(2))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "💳 *PAGAMENTO:* %s\n", paymentText(msg.Payment))
	fmt.Fprintf(&b, "💰 *TOTAL:* R$ %s\n", msg.Total.StringFixed(2))
	if obs := strings.TrimSpace(msg.Observation); obs != "" {
		fmt.Fprintf(&b, "📝 *OBSERVAÇÃO:* %s\n", obs)
	}

	if eta != "" {
		fmt.Fprintf(&b, "\n⏰ *TEMPO ESTIMADO:* %s\n", eta)
	}
	b.WriteString("✅ *STATUS:* Aguardando confirmação")
	return b.String()
}

func paymentText(p Payment) string {
	switch p.Method {
	case "cash":
		if p.ChangeFor != nil {
			return fmt.Sprintf("Dinheiro (troco para R$ %s)", p.ChangeFor.StringFixed(2))
		}
		return "Dinheiro"
	case "card":
		return "Cartão"
	case "pix":
		return "Pix"
	case "comanda":
		return "Comanda da mesa"
	default:
		return p.Method
	}
}
