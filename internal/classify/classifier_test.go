package classify

import (
	"testing"
	"time"

	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/protocols/horizon/operations"

	"walletwatch/internal/models"
)

const watched = "GWATCHED"

func baseOp(id string) operations.Base {
	return operations.Base{
		ID:              id,
		TransactionHash: "txhash-" + id,
		LedgerCloseTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestClassifyPaymentKinds(t *testing.T) {
	tests := []struct {
		name     string
		asset    base.Asset
		amount   string
		expected models.EventKind
	}{
		{"native payment", base.Asset{Type: "native"}, "100.5", models.EventKindPayment},
		{"token transfer", base.Asset{Type: "credit_alphanum4", Code: "USDC", Issuer: "GISSUER"}, "25", models.EventKindTokenTransfer},
		{"nft transfer one stroop", base.Asset{Type: "credit_alphanum12", Code: "COLLECTIBLE", Issuer: "GISSUER"}, "0.0000001", models.EventKindNftTransfer},
		{"token transfer above one stroop", base.Asset{Type: "credit_alphanum4", Code: "TOK", Issuer: "GISSUER"}, "0.0000002", models.EventKindTokenTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := operations.Payment{
				Base:   baseOp("op-1"),
				Asset:  tt.asset,
				From:   "GFROM",
				To:     "GTO",
				Amount: tt.amount,
			}

			event, ok := Classify(watched, op)
			if !ok {
				t.Fatal("expected payment to classify")
			}
			if event.Kind != tt.expected {
				t.Errorf("expected kind %s, got %s", tt.expected, event.Kind)
			}
			if event.Account != watched {
				t.Errorf("expected account %s, got %s", watched, event.Account)
			}
			if event.Payload["amount"] != tt.amount {
				t.Errorf("expected amount %s in payload, got %v", tt.amount, event.Payload["amount"])
			}
		})
	}
}

func TestClassifyCreateAccount(t *testing.T) {
	op := operations.CreateAccount{
		Base:            baseOp("op-2"),
		Account:         "GNEW",
		Funder:          "GFUNDER",
		StartingBalance: "2.0",
	}

	event, ok := Classify(watched, op)
	if !ok {
		t.Fatal("expected create_account to classify")
	}
	if event.Kind != models.EventKindAccountCreated {
		t.Errorf("expected account_created, got %s", event.Kind)
	}
	if event.Payload["funder"] != "GFUNDER" {
		t.Errorf("unexpected funder: %v", event.Payload["funder"])
	}
}

func TestClassifyChangeTrust(t *testing.T) {
	op := operations.ChangeTrust{
		Base:    baseOp("op-3"),
		Trustor: "GTRUSTOR",
		Limit:   "1000",
	}
	op.Asset.Code = "USDC"
	op.Asset.Issuer = "GISSUER"

	event, ok := Classify(watched, op)
	if !ok {
		t.Fatal("expected change_trust to classify")
	}
	if event.Kind != models.EventKindTrustlineCreated {
		t.Errorf("expected trustline_created, got %s", event.Kind)
	}
	if event.Payload["asset_code"] != "USDC" {
		t.Errorf("unexpected asset code: %v", event.Payload["asset_code"])
	}
}

func TestClassifyInvokeHostFunction(t *testing.T) {
	op := operations.InvokeHostFunction{
		Base:     baseOp("op-4"),
		Function: "HostFunctionTypeHostFunctionTypeInvokeContract",
	}

	event, ok := Classify(watched, op)
	if !ok {
		t.Fatal("expected invoke_host_function to classify")
	}
	if event.Kind != models.EventKindContractExecution {
		t.Errorf("expected contract_execution, got %s", event.Kind)
	}
}

func TestClassifyDropsUnrecognized(t *testing.T) {
	var sellOffer operations.ManageSellOffer
	sellOffer.ID = "op-5"
	var buyOffer operations.ManageBuyOffer
	buyOffer.ID = "op-6"

	ops := []operations.Operation{
		sellOffer,
		buyOffer,
		operations.BumpSequence{Base: baseOp("op-7")},
		operations.AccountMerge{Base: baseOp("op-8")},
	}

	for _, op := range ops {
		if _, ok := Classify(watched, op); ok {
			t.Errorf("expected %T to be dropped", op)
		}
	}
}

func TestClassifyEventIdentity(t *testing.T) {
	op := operations.Payment{
		Base:   baseOp("12884905985"),
		Asset:  base.Asset{Type: "native"},
		From:   "GFROM",
		To:     "GTO",
		Amount: "1",
	}

	event, _ := Classify(watched, op)
	if event.ID != "12884905985" {
		t.Errorf("event ID must be the source record ID, got %s", event.ID)
	}
	if event.TxHash != "txhash-12884905985" {
		t.Errorf("unexpected tx hash: %s", event.TxHash)
	}
}
