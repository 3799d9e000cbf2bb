package ledger

import (
	"testing"
	"time"

	"github.com/stellar/go/protocols/horizon/operations"

	"walletwatch/internal/models"
)

func TestMapHistoryRecordPayment(t *testing.T) {
	var op operations.Payment
	op.ID = "op-1"
	op.PT = "2001"
	op.Base.Type = "payment"
	op.TransactionHash = "txhash-1"
	op.TransactionSuccessful = true
	op.LedgerCloseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	op.Asset.Type = "credit_alphanum4"
	op.Asset.Code = "USDC"
	op.Asset.Issuer = "GISSUER"
	op.From = "GFROM"
	op.To = "GTO"
	op.Amount = "12.5000000"

	rec, ok := MapHistoryRecord(op)
	if !ok {
		t.Fatal("payment operations must map to a record")
	}
	if rec.ID != "txhash-1" {
		t.Errorf("record key = %q, want the transaction hash", rec.ID)
	}
	if rec.Asset != "USDC:GISSUER" {
		t.Errorf("asset = %q, want USDC:GISSUER", rec.Asset)
	}
	if rec.Amount != "12.5000000" || rec.From != "GFROM" || rec.To != "GTO" {
		t.Errorf("value fields not carried over: %+v", rec)
	}
	if rec.Status != models.TxStatusConfirmed {
		t.Errorf("status = %q, want confirmed", rec.Status)
	}
	if rec.PagingToken != "2001" {
		t.Errorf("paging token = %q, want 2001", rec.PagingToken)
	}
}

func TestMapHistoryRecordNativePayment(t *testing.T) {
	var op operations.Payment
	op.TransactionHash = "txhash-2"
	op.TransactionSuccessful = true
	op.Asset.Type = "native"
	op.Amount = "5.0000000"

	rec, ok := MapHistoryRecord(op)
	if !ok {
		t.Fatal("payment operations must map to a record")
	}
	if rec.Asset != "native" {
		t.Errorf("asset = %q, want native", rec.Asset)
	}
}

func TestMapHistoryRecordFailedTransaction(t *testing.T) {
	var op operations.CreateAccount
	op.TransactionHash = "txhash-3"
	op.TransactionSuccessful = false
	op.StartingBalance = "100.0000000"
	op.Funder = "GFUNDER"
	op.Account = "GNEW"

	rec, ok := MapHistoryRecord(op)
	if !ok {
		t.Fatal("create_account operations must map to a record")
	}
	if rec.Status != models.TxStatusFailed {
		t.Errorf("status = %q, want failed", rec.Status)
	}
	if rec.Amount != "100.0000000" || rec.From != "GFUNDER" || rec.To != "GNEW" {
		t.Errorf("create_account fields not carried over: %+v", rec)
	}
}

func TestMapHistoryRecordSkipsNonPaymentFamily(t *testing.T) {
	var op operations.BumpSequence
	op.TransactionHash = "txhash-4"

	if _, ok := MapHistoryRecord(op); ok {
		t.Error("operations outside the payment family must be skipped")
	}
}
