package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() Message {
	change := decimal.RequireFromString("100")
	return Message{
		OrderNumber: "SB123456",
		PlacedAt:    time.Date(2025, 3, 14, 22, 30, 5, 0, time.UTC),
		Customer: Customer{
			Name:    "Ana",
			Phone:   "92999990000",
			Address: "Rua A, 1",
		},
		Items: []Item{
			{Name: "Pirarucu Frito", Quantity: 2, Subtotal: decimal.RequireFromString("40")},
		},
		Payment:     Payment{Method: "cash", ChangeFor: &change},
		Total:       decimal.RequireFromString("40"),
		Observation: "sem cebola",
	}
}

func TestFormat(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	text := Format(sampleMessage(), "Sabor da Terra", "30-45 minutos", loc)
	assert.True(t, strings.HasPrefix(text, "🍽️ *NOVO PEDIDO - SABOR DA TERRA* 🍽️"))
	assert.Contains(t, text, "#SB123456")
	assert.Contains(t, text, "*DATA:* 14/03/2025")
	assert.Contains(t, text, "*HORA:* 19:30:05")
	assert.Contains(t, text, "• 2x Pirarucu Frito - R$ 40.00")
	assert.Contains(t, text, "Dinheiro (troco para R$ 100.00)")
	assert.Contains(t, text, "*TOTAL:* R$ 40.00")
	assert.Contains(t, text, "*OBSERVAÇÃO:* sem cebola")
	assert.Contains(t, text, "*TEMPO ESTIMADO:* 30-45 minutos")

	msg := sampleMessage()
	msg.IsAddition = true
	msg.Payment = Payment{Method: "comanda"}
	msg.Observation = ""
	text = Format(msg, "Sabor da Terra", "", nil)
	assert.Contains(t, text, "ADIÇÃO DE ITENS")
	assert.Contains(t, text, "Comanda da mesa")
	assert.NotContains(t, text, "OBSERVAÇÃO")
	assert.NotContains(t, text, "TEMPO ESTIMADO")
}

func TestSendOrderPostsToBotAPI(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer srv.Close()

	bot := NewBot(Config{BotToken: "abc", ChatID: "-100", APIBase: srv.URL}, config.NewStaticRestaurantHolder(config.DefaultRestaurantConfig()))
	require.NoError(t, bot.SendOrder(context.Background(), sampleMessage()))

	assert.Equal(t, "/botabc/sendMessage", path)
	assert.Equal(t, "-100", got.ChatID)
	assert.Equal(t, "Markdown", got.ParseMode)
	assert.Contains(t, got.Text, "NOVO PEDIDO - COMANDA")
}

func TestSendOrderFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	bot := NewBot(Config{BotToken: "abc", ChatID: "-100", APIBase: srv.URL}, nil)
	err := bot.SendOrder(context.Background(), sampleMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
