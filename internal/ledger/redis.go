package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

var _ Sink = (*RedisMirror)(nil)

const (
	// TransactionListKey holds transaction ids in commit order
	TransactionListKey = "autobuy:transactions"
	// TransactionNotifyChannel receives the id of every mirrored transaction
	TransactionNotifyChannel = "autobuy:tx:notify"

	defaultMirrorMaxLen = 1000
)

func transactionKey(id string) string {
	return fmt.Sprintf("autobuy:tx:%s", id)
}

// RedisMirror copies transactions into Redis hashes so other processes can
// read the history and subscribe to new entries.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	maxLen int64
}

// NewRedisMirror creates a mirror. ttl <= 0 keeps hashes forever; the id
// list is trimmed to the newest 1000 entries.
func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, ttl: ttl, maxLen: defaultMirrorMaxLen}
}

// Append stores tx with HSET + EXPIRE + RPUSH + PUBLISH in one pipeline
func (m *RedisMirror) Append(ctx context.Context, tx Transaction) error {
	key := transactionKey(tx.ID)

	data := map[string]interface{}{
		"timestamp":  tx.Timestamp.UTC().Format(time.RFC3339Nano),
		"product_id": tx.ProductID,
		"amount":     tx.Amount.String(),
		"status":     string(tx.Status),
		"manual":     strconv.FormatBool(tx.Manual),
	}
	if tx.Price.Valid {
		data["price"] = tx.Price.Decimal.String()
	}
	if tx.OrderID != "" {
		data["order_id"] = tx.OrderID
	}
	if tx.Error != "" {
		data["error"] = tx.Error
	}

	pipe := m.client.Pipeline()
	pipe.HSet(ctx, key, data)
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	pipe.RPush(ctx, TransactionListKey, tx.ID)
	pipe.LTrim(ctx, TransactionListKey, -m.maxLen, -1)
	pipe.Publish(ctx, TransactionNotifyChannel, tx.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "mirror transaction %s", tx.ID)
	}
	return nil
}

// Get reads one mirrored transaction. It returns nil, nil when the id is unknown.
func (m *RedisMirror) Get(ctx context.Context, id string) (*Transaction, error) {
	data, err := m.client.HGetAll(ctx, transactionKey(id)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "get transaction %s", id)
	}
	if len(data) == 0 {
		return nil, nil
	}

	tx := &Transaction{
		ID:        id,
		ProductID: data["product_id"],
		OrderID:   data["order_id"],
		Status:    Status(data["status"]),
		Error:     data["error"],
	}

	if ts, ok := data["timestamp"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			tx.Timestamp = t
		}
	}
	if amount, ok := data["amount"]; ok {
		if d, err := decimal.NewFromString(amount); err == nil {
			tx.Amount = d
		}
	}
	if price, ok := data["price"]; ok {
		if d, err := decimal.NewFromString(price); err == nil {
			tx.Price = decimal.NewNullDecimal(d)
		}
	}
	if manual, ok := data["manual"]; ok {
		tx.Manual, _ = strconv.ParseBool(manual)
	}
	return tx, nil
}

// Recent returns up to n mirrored transactions, newest first. Ids whose hash
// has expired are skipped.
func (m *RedisMirror) Recent(ctx context.Context, n int) ([]Transaction, error) {
	start := int64(0)
	if n > 0 {
		start = -int64(n)
	}
	ids, err := m.client.LRange(ctx, TransactionListKey, start, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}

	out := make([]Transaction, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		tx, err := m.Get(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		if tx != nil {
			out = append(out, *tx)
		}
	}
	return out, nil
}
