package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so the same query set
// runs inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Monetary values travel as NUMERIC text to keep shopspring/decimal exact.
func scanDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// InsertTransaction appends a transaction row plus its ordered recipient
// endpoints. Run inside Store.RunInTx so the row and outputs land atomically.
func (q *Queries) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	data, err := json.Marshal(tx.Data)
	if err != nil {
		return fmt.Errorf("marshal transaction data: %w", err)
	}

	_, err = q.db.Exec(ctx, `
		INSERT INTO transactions (id, type, status, from_wallet_kind, from_owner_id, from_value, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		tx.ID, string(tx.Type), string(tx.Status), string(tx.From.Kind), tx.From.OwnerID, tx.From.Value.String(), data)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	for i, out := range tx.To {
		_, err = q.db.Exec(ctx, `
			INSERT INTO transaction_outputs (id, transaction_id, seq, wallet_kind, owner_id, value, address, chain_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), tx.ID, i, string(out.Kind), out.OwnerID, out.Value.String(), out.Address, out.ChainID)
		if err != nil {
			return fmt.Errorf("insert transaction output %d: %w", i, err)
		}
	}
	return nil
}

// GetTransaction loads one transaction with its recipient endpoints.
func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	var (
		tx        models.Transaction
		txType    string
		status    string
		fromKind  string
		fromValue string
		data      []byte
	)
	err := q.db.QueryRow(ctx, `
		SELECT id, type, status, from_wallet_kind, from_owner_id, from_value::text, data, failure_message, created_at
		FROM transactions WHERE id = $1`, id).
		Scan(&tx.ID, &txType, &status, &fromKind, &tx.From.OwnerID, &fromValue, &data, &tx.FailureMessage, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Transaction{}, models.ErrTransactionNotFound
		}
		return models.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}

	tx.Type = domain.TxType(txType)
	tx.Status = domain.TxStatus(status)
	tx.From.Kind = domain.WalletKind(fromKind)
	if tx.From.Value, err = scanDecimal(fromValue); err != nil {
		return models.Transaction{}, fmt.Errorf("parse from value: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &tx.Data); err != nil {
			return models.Transaction{}, fmt.Errorf("unmarshal transaction data: %w", err)
		}
	}

	tx.To, err = q.listOutputs(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

func (q *Queries) listOutputs(ctx context.Context, transactionID uuid.UUID) ([]models.WalletEndpoint, error) {
	rows, err := q.db.Query(ctx, `
		SELECT wallet_kind, owner_id, value::text, address, chain_id
		FROM transaction_outputs WHERE transaction_id = $1 ORDER BY seq`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list transaction outputs: %w", err)
	}
	defer rows.Close()

	var outputs []models.WalletEndpoint
	for rows.Next() {
		var (
			out   models.WalletEndpoint
			kind  string
			value string
		)
		if err := rows.Scan(&kind, &out.OwnerID, &value, &out.Address, &out.ChainID); err != nil {
			return nil, fmt.Errorf("scan transaction output: %w", err)
		}
		out.Kind = domain.WalletKind(kind)
		if out.Value, err = scanDecimal(value); err != nil {
			return nil, fmt.Errorf("parse output value: %w", err)
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}

// ListOldestPending returns up to limit PENDING transaction ids, oldest first.
func (q *Queries) ListOldestPending(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id FROM transactions WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		string(domain.TxStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending transaction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateTransactionStatusFrom applies a status transition conditioned on the
// current status, so duplicate deliveries of the same job are no-ops. Returns
// the number of rows moved (0 or 1).
func (q *Queries) UpdateTransactionStatusFrom(ctx context.Context, id uuid.UUID, from, to domain.TxStatus, failureMessage *string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions SET status = $3, failure_message = $4
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), failureMessage)
	if err != nil {
		return 0, fmt.Errorf("update transaction status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetPersonalBalance derives the owner's spendable balance from the ledger:
// credits from transactions that have not FAILED minus debits from
// transactions whose funds have actually moved (VERIFIED or WITHDRAWING).
func (q *Queries) GetPersonalBalance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	var balance string
	err := q.db.QueryRow(ctx, `
		SELECT (COALESCE((
			SELECT SUM(o.value)
			FROM transaction_outputs o
			JOIN transactions t ON t.id = o.transaction_id
			WHERE o.owner_id = $1 AND o.wallet_kind = 'PERSONAL' AND t.status <> 'FAILED'
		), 0) - COALESCE((
			SELECT SUM(t.from_value)
			FROM transactions t
			WHERE t.from_owner_id = $1 AND t.from_wallet_kind = 'PERSONAL'
			  AND t.status IN ('VERIFIED', 'WITHDRAWING')
		), 0))::text`, ownerID).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("aggregate personal balance: %w", err)
	}
	return scanDecimal(balance)
}

// InsertCampaign stores a new reward pool.
func (q *Queries) InsertCampaign(ctx context.Context, c models.Campaign) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO campaigns (id, type, reward_balance, rewards_per_claim, max_claims, start_date, end_date, visibility, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		c.ID, string(c.Type), c.RewardBalance.String(), c.RewardsPerClaim.String(),
		c.MaxClaims, c.StartDate, c.EndDate, c.Visibility)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (q *Queries) scanCampaign(row pgx.Row) (models.Campaign, error) {
	var (
		c       models.Campaign
		ctype   string
		balance string
		reward  string
	)
	err := row.Scan(&c.ID, &ctype, &balance, &reward, &c.MaxClaims, &c.StartDate, &c.EndDate, &c.Visibility, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Campaign{}, models.ErrCampaignNotFound
		}
		return models.Campaign{}, fmt.Errorf("scan campaign: %w", err)
	}
	c.Type = domain.CampaignType(ctype)
	if c.RewardBalance, err = scanDecimal(balance); err != nil {
		return models.Campaign{}, fmt.Errorf("parse reward balance: %w", err)
	}
	if c.RewardsPerClaim, err = scanDecimal(reward); err != nil {
		return models.Campaign{}, fmt.Errorf("parse rewards per claim: %w", err)
	}
	return c, nil
}

const campaignColumns = `id, type, reward_balance::text, rewards_per_claim::text, max_claims, start_date, end_date, visibility, created_at`

// GetCampaign loads one campaign by id.
func (q *Queries) GetCampaign(ctx context.Context, id uuid.UUID) (models.Campaign, error) {
	row := q.db.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	return q.scanCampaign(row)
}

// GetActiveCampaign finds the published campaign of the given type whose date
// window contains now.
func (q *Queries) GetActiveCampaign(ctx context.Context, ctype domain.CampaignType, now time.Time) (models.Campaign, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE type = $1 AND visibility = $2 AND start_date <= $3 AND (end_date IS NULL OR end_date >= $3)
		ORDER BY start_date DESC LIMIT 1`,
		string(ctype), domain.CampaignVisibilityPublished, now)
	return q.scanCampaign(row)
}

// DecrementCampaignBudget reserves amount from the campaign budget in one
// conditional arithmetic update. Zero rows means the budget would have gone
// negative; the caller must treat that as a skip, never as partial spend.
func (q *Queries) DecrementCampaignBudget(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE campaigns SET reward_balance = reward_balance - $2
		WHERE id = $1 AND reward_balance >= $2`,
		id, amount.String())
	if err != nil {
		return 0, fmt.Errorf("decrement campaign budget: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AcquireClaimLock serializes same-claimant reward grants for the duration of
// the surrounding transaction.
func (q *Queries) AcquireClaimLock(ctx context.Context, key string) error {
	if _, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("acquire claim lock: %w", err)
	}
	return nil
}

// CountAirdropsByMobile counts non-failed airdrops already granted against a
// mobile number. Used as the mobile-verification duplicate-claim guard.
func (q *Queries) CountAirdropsByMobile(ctx context.Context, mobileNumber string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE type = 'AIRDROP' AND status <> 'FAILED' AND data->>'mobileNumber' = $1`,
		mobileNumber).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count airdrops by mobile: %w", err)
	}
	return count, nil
}

// CountCampaignReferredAirdrops counts non-failed airdrops in which the user
// was the referred party of one campaign. Used as the referral
// duplicate-claim guard; a user who only ever appeared on the referrer side
// is not counted, so earning a referrer payout does not spend their own
// referred-side claim.
func (q *Queries) CountCampaignReferredAirdrops(ctx context.Context, campaignID, referredID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE type = 'AIRDROP' AND status <> 'FAILED'
		  AND data->>'campaignId' = $1 AND data->>'referredId' = $2`,
		campaignID.String(), referredID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count campaign referred airdrops: %w", err)
	}
	return count, nil
}

// InsertAuditLog appends one immutable audit record.
func (q *Queries) InsertAuditLog(ctx context.Context, rec AuditRecord) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO audit_log (job_id, transaction_id, action, prev_status, next_status, failure_message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		rec.JobID, rec.TransactionID, rec.Action, rec.PrevStatus, rec.NextStatus, rec.FailureMessage, rec.Metadata)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// AuditRecord is one audit_log row.
type AuditRecord struct {
	JobID          *string
	TransactionID  uuid.UUID
	Action         string
	PrevStatus     *string
	NextStatus     *string
	FailureMessage *string
	Metadata       []byte
}

// ChecksumViolation is a settled transaction whose debited value does not
// equal the sum of its credited values.
type ChecksumViolation struct {
	TransactionID uuid.UUID
	FromValue     decimal.Decimal
	OutputTotal   decimal.Decimal
}

// ListChecksumViolations audits the checksum invariant over the whole ledger.
func (q *Queries) ListChecksumViolations(ctx context.Context) ([]ChecksumViolation, error) {
	rows, err := q.db.Query(ctx, `
		SELECT t.id, t.from_value::text, o.total::text
		FROM transactions t
		JOIN LATERAL (
			SELECT COALESCE(SUM(value), 0) AS total
			FROM transaction_outputs WHERE transaction_id = t.id
		) o ON true
		WHERE t.status IN ('VERIFIED', 'WITHDRAWING') AND t.from_value <> o.total`)
	if err != nil {
		return nil, fmt.Errorf("list checksum violations: %w", err)
	}
	defer rows.Close()

	var violations []ChecksumViolation
	for rows.Next() {
		var (
			v          ChecksumViolation
			fromValue  string
			outputsSum string
		)
		if err := rows.Scan(&v.TransactionID, &fromValue, &outputsSum); err != nil {
			return nil, fmt.Errorf("scan checksum violation: %w", err)
		}
		if v.FromValue, err = scanDecimal(fromValue); err != nil {
			return nil, err
		}
		if v.OutputTotal, err = scanDecimal(outputsSum); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// NegativeBalance is an owner whose derived balance dropped below zero.
type NegativeBalance struct {
	OwnerID uuid.UUID
	Balance decimal.Decimal
}

// ListNegativeBalances audits the non-negative balance invariant.
func (q *Queries) ListNegativeBalances(ctx context.Context) ([]NegativeBalance, error) {
	rows, err := q.db.Query(ctx, `
		WITH credits AS (
			SELECT o.owner_id, SUM(o.value) AS total
			FROM transaction_outputs o
			JOIN transactions t ON t.id = o.transaction_id
			WHERE o.wallet_kind = 'PERSONAL' AND o.owner_id IS NOT NULL AND t.status <> 'FAILED'
			GROUP BY o.owner_id
		), debits AS (
			SELECT t.from_owner_id AS owner_id, SUM(t.from_value) AS total
			FROM transactions t
			WHERE t.from_wallet_kind = 'PERSONAL' AND t.from_owner_id IS NOT NULL
			  AND t.status IN ('VERIFIED', 'WITHDRAWING')
			GROUP BY t.from_owner_id
		)
		SELECT COALESCE(c.owner_id, d.owner_id),
		       (COALESCE(c.total, 0) - COALESCE(d.total, 0))::text
		FROM credits c
		FULL OUTER JOIN debits d ON c.owner_id = d.owner_id
		WHERE COALESCE(c.total, 0) - COALESCE(d.total, 0) < 0`)
	if err != nil {
		return nil, fmt.Errorf("list negative balances: %w", err)
	}
	defer rows.Close()

	var results []NegativeBalance
	for rows.Next() {
		var (
			nb      NegativeBalance
			balance string
		)
		if err := rows.Scan(&nb.OwnerID, &balance); err != nil {
			return nil, fmt.Errorf("scan negative balance: %w", err)
		}
		if nb.Balance, err = scanDecimal(balance); err != nil {
			return nil, err
		}
		results = append(results, nb)
	}
	return results, rows.Err()
}
