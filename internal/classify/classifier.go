package classify

import (
	"github.com/shopspring/decimal"
	"github.com/stellar/go/protocols/horizon/operations"

	"walletwatch/internal/models"
)

// oneStroop is the smallest representable amount; non-native payments of
// exactly one stroop are the NFT transfer convention on Stellar
var oneStroop = decimal.RequireFromString("0.0000001")

// Classify maps a raw operation record to a normalized ledger event.
// It is a pure function: unrecognized operation types return ok=false and the
// record is dropped without error, since partial coverage of the operation
// set is expected. Offer management and path payment operations are among the
// dropped types.
func Classify(account string, op operations.Operation) (models.LedgerEvent, bool) {
	switch o := op.(type) {
	case operations.Payment:
		return classifyPayment(account, o), true

	case operations.CreateAccount:
		return models.LedgerEvent{
			ID:        o.ID,
			Kind:      models.EventKindAccountCreated,
			Account:   account,
			TxHash:    o.TransactionHash,
			Timestamp: o.LedgerCloseTime,
			Payload: map[string]interface{}{
				"account":          o.Account,
				"funder":           o.Funder,
				"starting_balance": o.StartingBalance,
			},
		}, true

	case operations.ChangeTrust:
		return models.LedgerEvent{
			ID:        o.ID,
			Kind:      models.EventKindTrustlineCreated,
			Account:   account,
			TxHash:    o.TransactionHash,
			Timestamp: o.LedgerCloseTime,
			Payload: map[string]interface{}{
				"trustor":      o.Trustor,
				"asset_code":   o.Asset.Code,
				"asset_issuer": o.Asset.Issuer,
				"limit":        o.Limit,
			},
		}, true

	case operations.InvokeHostFunction:
		return models.LedgerEvent{
			ID:        o.ID,
			Kind:      models.EventKindContractExecution,
			Account:   account,
			TxHash:    o.TransactionHash,
			Timestamp: o.LedgerCloseTime,
			Payload: map[string]interface{}{
				"function":   o.Function,
				"address":    o.Address,
				"source":     o.SourceAccount,
				"successful": o.TransactionSuccessful,
			},
		}, true

	default:
		return models.LedgerEvent{}, false
	}
}

func classifyPayment(account string, o operations.Payment) models.LedgerEvent {
	kind := models.EventKindPayment
	asset := "native"
	if o.Asset.Type != "native" {
		asset = o.Asset.Code + ":" + o.Asset.Issuer
		kind = models.EventKindTokenTransfer
		if amt, err := decimal.NewFromString(o.Amount); err == nil && amt.Equal(oneStroop) {
			kind = models.EventKindNftTransfer
		}
	}

	return models.LedgerEvent{
		ID:        o.ID,
		Kind:      kind,
		Account:   account,
		TxHash:    o.TransactionHash,
		Timestamp: o.LedgerCloseTime,
		Payload: map[string]interface{}{
			"from":   o.From,
			"to":     o.To,
			"amount": o.Amount,
			"asset":  asset,
		},
	}
}
