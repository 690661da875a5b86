package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/comanda/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Config struct {
	BotToken string
	ChatID   string
	APIBase  string
	Timeout  time.Duration
}

type BotProvider struct {
	cfg      Config
	client   *http.Client
	settings *config.RestaurantConfigHolder
}

func NewBot(cfg Config, settings *config.RestaurantConfigHolder) *BotProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.APIBase) == "" {
		cfg.APIBase = "https://api.telegram.org"
	}
	return &BotProvider{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		settings: settings,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (p *BotProvider) SendOrder(ctx context.Context, msg Message) error {
	restaurant := p.settings.Get()
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    p.cfg.ChatID,
		Text:      Format(msg, restaurant.Name, restaurant.EstimatedTime, restaurant.Location()),
		ParseMode: "Markdown",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(p.cfg.APIBase, "/"), p.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telegram send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
