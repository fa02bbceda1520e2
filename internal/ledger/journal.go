package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

var _ Sink = (*Journal)(nil)

const journalSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id         TEXT PRIMARY KEY,
	timestamp  TEXT NOT NULL,
	product_id TEXT NOT NULL,
	amount     TEXT NOT NULL,
	price      TEXT,
	order_id   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	manual     INTEGER NOT NULL DEFAULT 0
)`

// Journal appends transactions to a SQLite file. It survives restarts, but
// nothing reads it back into the in-memory ledger.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (or creates) the journal at path
func OpenJournal(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", path)
	}
	// one writer keeps SQLite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, journalSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create journal schema")
	}
	return &Journal{db: db}, nil
}

// Append inserts tx; a repeated id is ignored
func (j *Journal) Append(ctx context.Context, tx Transaction) error {
	var price sql.NullString
	if tx.Price.Valid {
		price = sql.NullString{String: tx.Price.Decimal.String(), Valid: true}
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO transactions
			(id, timestamp, product_id, amount, price, order_id, status, error, manual)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Timestamp.UTC().Format(time.RFC3339Nano), tx.ProductID, tx.Amount.String(),
		price, tx.OrderID, string(tx.Status), tx.Error, tx.Manual)
	if err != nil {
		return errors.Wrapf(err, "journal transaction %s", tx.ID)
	}
	return nil
}

// List returns up to limit transactions, newest first
func (j *Journal) List(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, timestamp, product_id, amount, price, order_id, status, error, manual
		 FROM transactions ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query journal")
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			tx                 Transaction
			ts, amount, status string
			price              sql.NullString
		)
		if err := rows.Scan(&tx.ID, &ts, &tx.ProductID, &amount, &price, &tx.OrderID, &status, &tx.Error, &tx.Manual); err != nil {
			return nil, errors.Wrap(err, "scan journal row")
		}

		if tx.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, errors.Wrapf(err, "journal row %s: bad timestamp", tx.ID)
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrapf(err, "journal row %s: bad amount", tx.ID)
		}
		if price.Valid {
			p, err := decimal.NewFromString(price.String)
			if err != nil {
				return nil, errors.Wrapf(err, "journal row %s: bad price", tx.ID)
			}
			tx.Price = decimal.NewNullDecimal(p)
		}
		tx.Status = Status(status)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}
