package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"walletwatch/internal/models"
)

// renderNotification builds the user-facing title and body for one event
func renderNotification(event models.LedgerEvent, now time.Time) models.NotificationRecord {
	rec := models.NotificationRecord{
		ID:        uuid.NewString(),
		Kind:      event.Kind,
		Timestamp: now,
	}

	switch event.Kind {
	case models.EventKindPayment:
		rec.Title = "Payment received"
		rec.Body = fmt.Sprintf("%s XLM from %s",
			formatAmount(payloadStr(event, "amount")), shortAccount(payloadStr(event, "from")))
	case models.EventKindTokenTransfer:
		rec.Title = "Token transfer"
		rec.Body = fmt.Sprintf("%s %s from %s",
			formatAmount(payloadStr(event, "amount")), payloadStr(event, "asset"), shortAccount(payloadStr(event, "from")))
	case models.EventKindNftTransfer:
		rec.Title = "NFT transfer"
		rec.Body = fmt.Sprintf("%s from %s",
			payloadStr(event, "asset"), shortAccount(payloadStr(event, "from")))
	case models.EventKindContractExecution:
		rec.Title = "Contract invoked"
		rec.Body = fmt.Sprintf("%s by %s",
			payloadStr(event, "function"), shortAccount(payloadStr(event, "source")))
	case models.EventKindAccountCreated:
		rec.Title = "Account created"
		rec.Body = fmt.Sprintf("%s funded with %s XLM",
			shortAccount(payloadStr(event, "account")), formatAmount(payloadStr(event, "starting_balance")))
	case models.EventKindTrustlineCreated:
		rec.Title = "Trustline added"
		rec.Body = fmt.Sprintf("%s by %s",
			payloadStr(event, "asset_code"), shortAccount(payloadStr(event, "trustor")))
	default:
		rec.Title = "Account activity"
		rec.Body = string(event.Kind)
	}
	return rec
}

func payloadStr(event models.LedgerEvent, key string) string {
	if v, ok := event.Payload[key].(string); ok {
		return v
	}
	return ""
}

// formatAmount normalizes ledger amount strings ( strips trailing zeros )
func formatAmount(raw string) string {
	amt, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return amt.String()
}

// shortAccount abbreviates a ledger address for display
func shortAccount(account string) string {
	if len(account) <= 10 {
		return account
	}
	return account[:4] + "…" + account[len(account)-4:]
}
