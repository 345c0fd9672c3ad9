package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/ledger"
)

type transactionRow struct {
	ID               string          `db:"id"`
	Domain           string          `db:"domain"`
	UnitID           int64           `db:"unit_id"`
	Type             string          `db:"type"`
	Amount           decimal.Decimal `db:"amount"`
	Currency         string          `db:"currency"`
	Description      string          `db:"description"`
	CounterpartyName null.String     `db:"counterparty_name"`
	ReferenceNumber  null.String     `db:"reference_number"`
	IdempotencyKey   null.String     `db:"idempotency_key"`
	ReversalOf       null.String     `db:"reversal_of"`
	RecordedBy       string          `db:"recorded_by"`
	RecordedAt       dbTime          `db:"recorded_at"`
	Verified         bool            `db:"verified"`
	VerifiedBy       null.String     `db:"verified_by"`
	VerifiedAt       dbTime          `db:"verified_at"`
}

func (r transactionRow) toTransaction() ledger.Transaction {
	return ledger.Transaction{
		ID:               r.ID,
		Domain:           ledger.Domain(r.Domain),
		UnitID:           r.UnitID,
		Type:             r.Type,
		Amount:           r.Amount,
		Currency:         strings.TrimSpace(r.Currency),
		Description:      r.Description,
		CounterpartyName: r.CounterpartyName,
		ReferenceNumber:  r.ReferenceNumber,
		IdempotencyKey:   r.IdempotencyKey,
		ReversalOf:       r.ReversalOf,
		RecordedBy:       r.RecordedBy,
		RecordedAt:       r.RecordedAt.value(),
		Verified:         r.Verified,
		VerifiedBy:       r.VerifiedBy,
		VerifiedAt:       r.VerifiedAt.nullable(),
	}
}

const transactionColumns = `id, domain, unit_id, type, amount, currency, description, counterparty_name, reference_number,
	idempotency_key, reversal_of, recorded_by, recorded_at, verified, verified_by, verified_at`

type transactionRepository struct {
	db *sqlx.DB
}

var _ ledger.Repository = (*transactionRepository)(nil)

func NewTransactionRepository(db *sqlx.DB) ledger.Repository {
	return &transactionRepository{db: db}
}

func (repo *transactionRepository) CreateTransaction(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	q := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.db.ExecContext(
		ctx, repo.db.Rebind(q),
		t.ID, string(t.Domain), t.UnitID, t.Type, t.Amount, t.Currency, t.Description,
		t.CounterpartyName, t.ReferenceNumber, t.IdempotencyKey, t.ReversalOf,
		t.RecordedBy, timeArg(repo.db, t.RecordedAt), t.Verified, t.VerifiedBy, nullTimeArg(repo.db, t.VerifiedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Transaction{}, ledger.ErrDuplicateKey
		}
		return ledger.Transaction{}, errors.Wrap(err, "inserting transaction")
	}
	return repo.GetTransaction(ctx, t.ID)
}

func (repo *transactionRepository) get(ctx context.Context, ref string, where string, args ...interface{}) (ledger.Transaction, error) {
	var row transactionRow
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return ledger.Transaction{}, core.NewNotFoundError("transaction", ref)
		}
		return ledger.Transaction{}, errors.Wrap(err, "getting transaction")
	}
	return row.toTransaction(), nil
}

func (repo *transactionRepository) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	return repo.get(ctx, id, `id = ?`, id)
}

func (repo *transactionRepository) GetByIdempotencyKey(ctx context.Context, domain ledger.Domain, unitID int64, key string) (ledger.Transaction, error) {
	return repo.get(ctx, key, `domain = ? AND unit_id = ? AND idempotency_key = ?`, string(domain), unitID, key)
}

// orderExpr maps ordering fields to SQL; sqlite keeps amounts as text.
func (repo *transactionRepository) orderExpr(field string) string {
	if field == "amount" && isSQLite(repo.db) {
		return "CAST(amount AS REAL)"
	}
	return field
}

func (repo *transactionRepository) QueryTransactions(ctx context.Context, filter ledger.QueryFilter) ([]ledger.Transaction, error) {
	where := []string{`domain = ?`, `unit_id = ?`}
	args := []interface{}{string(filter.Domain), filter.UnitID}

	if filter.Search != "" {
		lower := lowerFunc(repo.db)
		where = append(where, `(`+lower+`(description) LIKE ? ESCAPE '\' OR
			`+lower+`(COALESCE(counterparty_name, '')) LIKE ? ESCAPE '\' OR
			`+lower+`(COALESCE(reference_number, '')) LIKE ? ESCAPE '\')`)
		pattern := likePattern(filter.Search)
		args = append(args, pattern, pattern, pattern)
	}
	if len(filter.Types) > 0 {
		where = append(where, `type IN (`+placeholders(len(filter.Types))+`)`)
		for _, typ := range filter.Types {
			args = append(args, typ)
		}
	}
	if filter.Verified != nil {
		where = append(where, `verified = ?`)
		args = append(args, *filter.Verified)
	}
	if !filter.RecordedFrom.IsZero() {
		where = append(where, `recorded_at >= ?`)
		args = append(args, timeArg(repo.db, filter.RecordedFrom))
	}
	if !filter.RecordedTo.IsZero() {
		where = append(where, `recorded_at <= ?`)
		args = append(args, timeArg(repo.db, filter.RecordedTo))
	}

	orderBy := make([]string, 0, len(filter.Ordering)+1)
	for _, ord := range filter.Ordering {
		orderBy = append(orderBy, core.DBOrdering{Field: repo.orderExpr(ord.Field), Ascending: ord.Ascending}.String())
	}
	orderBy = append(orderBy, "id ASC")

	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + strings.Join(orderBy, ", ")

	var rows []transactionRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying transactions")
	}
	txs := make([]ledger.Transaction, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, r.toTransaction())
	}
	return txs, nil
}

// MarkVerified flips the verified flag with a single conditional UPDATE: of concurrent callers only the
// first one matches `verified = FALSE`.
func (repo *transactionRepository) MarkVerified(ctx context.Context, id, verifiedBy string, verifiedAt time.Time) (ledger.Transaction, error) {
	q := `UPDATE transactions SET verified = TRUE, verified_by = ?, verified_at = ? WHERE id = ? AND verified = FALSE`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), verifiedBy, timeArg(repo.db, verifiedAt), id)
	if err != nil {
		return ledger.Transaction{}, errors.Wrap(err, "verifying transaction")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Transaction{}, errors.Wrap(err, "verifying transaction")
	}
	if n == 0 {
		if _, err = repo.GetTransaction(ctx, id); err != nil {
			return ledger.Transaction{}, err
		}
		return ledger.Transaction{}, ledger.ErrAlreadyVerified
	}
	return repo.GetTransaction(ctx, id)
}

func (repo *transactionRepository) DeleteUnverified(ctx context.Context, id string) error {
	q := `DELETE FROM transactions WHERE id = ? AND verified = FALSE`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), id)
	if err != nil {
		return errors.Wrap(err, "deleting transaction")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting transaction")
	}
	if n == 0 {
		if _, err = repo.GetTransaction(ctx, id); err != nil {
			return err
		}
		return ledger.ErrVerifiedDelete
	}
	return nil
}
