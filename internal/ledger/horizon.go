package ledger

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/operations"

	"walletwatch/internal/models"
)

// CursorNow positions a stream at the present; only records emitted after
// subscription start are delivered
const CursorNow = "now"

// OperationHandler receives one raw operation record from a stream
type OperationHandler func(op operations.Operation)

// Streamer opens long-lived cursor-based operation streams for one account
type Streamer interface {
	StreamPayments(ctx context.Context, account, cursor string, handler OperationHandler) error
	StreamOperations(ctx context.Context, account, cursor string, handler OperationHandler) error
}

// HistorySource pages payment-class records for the sync engine, already
// mapped to transaction records
type HistorySource interface {
	// RecentHistory returns up to limit records, newest first
	RecentHistory(ctx context.Context, account string, limit int) ([]models.TransactionRecord, error)
	// HistoryAfter returns up to limit records strictly after cursor, oldest first
	HistoryAfter(ctx context.Context, account, cursor string, limit int) ([]models.TransactionRecord, error)
}

// AccountSource fetches the current materialized account state
type AccountSource interface {
	AccountDetail(ctx context.Context, account string) (hProtocol.Account, error)
}

// Client wraps a Horizon client behind the narrow interfaces the core consumes
type Client struct {
	horizon *horizonclient.Client
}

// NewClient creates a ledger client for the given Horizon base URL
func NewClient(horizonURL string) *Client {
	return &Client{
		horizon: &horizonclient.Client{
			HorizonURL: horizonURL,
			HTTP:       &http.Client{Timeout: 30 * time.Second},
		},
	}
}

// StreamPayments streams payment-class operations for the account, blocking
// until the context is cancelled or the transport fails
func (c *Client) StreamPayments(ctx context.Context, account, cursor string, handler OperationHandler) error {
	req := horizonclient.OperationRequest{
		ForAccount: account,
		Cursor:     cursor,
	}
	if err := c.horizon.StreamPayments(ctx, req, horizonclient.OperationHandler(handler)); err != nil {
		return fmt.Errorf("stream payments for %s: %w", account, err)
	}
	return nil
}

// StreamOperations streams all operations for the account, blocking until the
// context is cancelled or the transport fails
func (c *Client) StreamOperations(ctx context.Context, account, cursor string, handler OperationHandler) error {
	req := horizonclient.OperationRequest{
		ForAccount: account,
		Cursor:     cursor,
	}
	if err := c.horizon.StreamOperations(ctx, req, horizonclient.OperationHandler(handler)); err != nil {
		return fmt.Errorf("stream operations for %s: %w", account, err)
	}
	return nil
}

// RecentHistory fetches the most recent payment-class records, newest first
func (c *Client) RecentHistory(_ context.Context, account string, limit int) ([]models.TransactionRecord, error) {
	req := horizonclient.OperationRequest{
		ForAccount:    account,
		Order:         horizonclient.OrderDesc,
		Limit:         uint(limit),
		IncludeFailed: true,
	}
	page, err := c.horizon.Payments(req)
	if err != nil {
		return nil, fmt.Errorf("fetch recent history for %s: %w", account, err)
	}
	return mapHistoryRecords(page.Embedded.Records), nil
}

// HistoryAfter fetches payment-class records strictly after the cursor, oldest first
func (c *Client) HistoryAfter(_ context.Context, account, cursor string, limit int) ([]models.TransactionRecord, error) {
	req := horizonclient.OperationRequest{
		ForAccount:    account,
		Cursor:        cursor,
		Order:         horizonclient.OrderAsc,
		Limit:         uint(limit),
		IncludeFailed: true,
	}
	page, err := c.horizon.Payments(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history after %q for %s: %w", cursor, account, err)
	}
	return mapHistoryRecords(page.Embedded.Records), nil
}

func mapHistoryRecords(ops []operations.Operation) []models.TransactionRecord {
	records := make([]models.TransactionRecord, 0, len(ops))
	for _, op := range ops {
		if rec, ok := MapHistoryRecord(op); ok {
			records = append(records, rec)
		}
	}
	return records
}

// MapHistoryRecord converts one payment-class operation into a durable
// transaction record. The record is keyed by transaction hash; a multi-payment
// transaction collapses to its last payment via the store's upsert. Operation
// types outside the payment family are skipped.
func MapHistoryRecord(op operations.Operation) (models.TransactionRecord, bool) {
	rec := models.TransactionRecord{
		ID:          op.GetTransactionHash(),
		Type:        op.GetType(),
		Asset:       "native",
		PagingToken: op.PagingToken(),
		Status:      models.TxStatusConfirmed,
	}
	if !op.IsTransactionSuccessful() {
		rec.Status = models.TxStatusFailed
	}

	switch o := op.(type) {
	case operations.Payment:
		rec.Timestamp = o.LedgerCloseTime
		rec.Amount = o.Amount
		rec.From = o.From
		rec.To = o.To
		if o.Asset.Type != "native" {
			rec.Asset = o.Asset.Code + ":" + o.Asset.Issuer
		}
	case operations.PathPayment:
		rec.Timestamp = o.LedgerCloseTime
		rec.Amount = o.Amount
		rec.From = o.From
		rec.To = o.To
		if o.Asset.Type != "native" {
			rec.Asset = o.Asset.Code + ":" + o.Asset.Issuer
		}
	case operations.CreateAccount:
		rec.Timestamp = o.LedgerCloseTime
		rec.Amount = o.StartingBalance
		rec.From = o.Funder
		rec.To = o.Account
	case operations.AccountMerge:
		rec.Timestamp = o.LedgerCloseTime
		rec.From = o.Account
		rec.To = o.Into
	default:
		return models.TransactionRecord{}, false
	}
	return rec, true
}

// AccountDetail fetches the current account record from Horizon
func (c *Client) AccountDetail(_ context.Context, account string) (hProtocol.Account, error) {
	acct, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: account})
	if err != nil {
		return hProtocol.Account{}, fmt.Errorf("fetch account %s: %w", account, err)
	}
	return acct, nil
}

// AccountStateFetcher adapts AccountDetail into the state cache's fetch
// callback, flattening balances into an asset keyed map
func AccountStateFetcher(source AccountSource) func(ctx context.Context, key string) (map[string]interface{}, error) {
	return func(ctx context.Context, key string) (map[string]interface{}, error) {
		acct, err := source.AccountDetail(ctx, key)
		if err != nil {
			return nil, err
		}

		balances := make(map[string]interface{}, len(acct.Balances))
		for _, b := range acct.Balances {
			name := b.Asset.Type
			if b.Asset.Code != "" {
				name = b.Asset.Code + ":" + b.Asset.Issuer
			}
			balances[name] = b.Balance
		}

		return map[string]interface{}{
			"account_id":     acct.AccountID,
			"sequence":       acct.Sequence,
			"subentry_count": acct.SubentryCount,
			"balances":       balances,
		}, nil
	}
}
