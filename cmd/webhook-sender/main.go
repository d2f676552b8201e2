// Command webhook-sender signs and posts a test trade signal to a running
// gateway, the same way an alerting platform would. Useful for exercising the
// webhook pipeline end to end without configuring an external signal source.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lensseoyhshi/crypto-trading/internal/types"
	"github.com/lensseoyhshi/crypto-trading/internal/webhook"
)

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func main() {
	var (
		server    = flag.String("server", "http://localhost:8080", "gateway base URL")
		endpoint  = flag.String("endpoint", "/webhooks/trade", "webhook endpoint path")
		secret    = flag.String("secret", os.Getenv("WEBHOOK_SECRET"), "shared webhook secret")
		action    = flag.String("action", types.ActionOpen, "signal action: open or close")
		accountID = flag.Uint("account", 1, "gateway account id")
		symbol    = flag.String("symbol", "BTCUSDT", "trading symbol")
		side      = flag.String("side", "buy", "order side: buy or sell")
		amount    = flag.String("amount", "0.001", "order amount in base units")
		price     = flag.String("price", "", "limit price; empty for market")
	)
	flag.Parse()

	if *secret == "" {
		log.Fatal().Msg("webhook secret required (flag -secret or WEBHOOK_SECRET)")
	}

	orderSide, err := types.ParseOrderSide(*side)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid side")
	}
	qty, err := decimal.NewFromString(*amount)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid amount")
	}

	payload := types.WebhookPayload{
		Action:    *action,
		AccountID: *accountID,
		Symbol:    *symbol,
		Side:      orderSide,
		Amount:    qty,
	}
	if *price != "" {
		p, err := decimal.NewFromString(*price)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid price")
		}
		payload.Price = &p
		payload.OrderType = types.TypeLimit
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatal().Err(err).Msg("marshal payload")
	}
	signature := webhook.Sign(*secret, body)

	client := resty.New().SetBaseURL(*server).SetTimeout(10 * time.Second)
	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader(webhook.HeaderSignature, signature).
		SetBody(body).
		Post(*endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("send webhook")
	}

	log.Info().
		Int("status", resp.StatusCode()).
		Str("endpoint", *endpoint).
		Str("symbol", *symbol).
		Msg("signal delivered")
	log.Info().RawJSON("response", resp.Body()).Msg("gateway response")
}
