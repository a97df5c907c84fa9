package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PostgresStore implementa o Store em Postgres.
// Cada Update é uma transação com lock pessimista (FOR UPDATE) na linha da conta.
// Valores monetários ficam em NUMERIC(20,0) para caber qualquer uint64.
type PostgresStore struct{ db *sql.DB }

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const accountColumns = `user_address, balance::text, reserved::text,
	pending_request_id, pending_kind, pending_leverage, pending_stake::text,
	pending_origin, pending_target, pending_placed_at`

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
	acc Account
}

func (t *pgTx) Account() *Account { return &t.acc }

func (t *pgTx) SettlementApplied(key string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx, `SELECT 1 FROM ledger_settlements WHERE settlement_key=$1`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *pgTx) RecordSettlement(key string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO ledger_settlements(settlement_key, user_address) VALUES($1,$2)`,
		key, t.acc.User.Hex())
	return err
}

func (t *pgTx) Journal(e Entry) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO ledger_entries(user_address, operation_type, amount, ref, created_at) VALUES($1,$2,$3::numeric,$4,$5)`,
		e.User.Hex(), string(e.Op), strconv.FormatUint(e.Amount, 10), e.Ref, e.CreatedAt)
	return err
}

// Update trava a linha da conta (criando-a se necessário), executa fn e grava o resultado.
func (p *PostgresStore) Update(ctx context.Context, user common.Address, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_accounts(user_address) VALUES($1) ON CONFLICT (user_address) DO NOTHING`,
		user.Hex()); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}

	acc, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE user_address=$1 FOR UPDATE`, user.Hex()))
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}

	t := &pgTx{ctx: ctx, tx: tx, acc: acc}
	if err := fn(t); err != nil {
		return err
	}

	if err := saveAccount(ctx, tx, &t.acc); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return tx.Commit()
}

func saveAccount(ctx context.Context, tx *sql.Tx, a *Account) error {
	var (
		reqID    sql.NullString
		kind     sql.NullInt16
		leverage sql.NullInt64
		stake    sql.NullString
		origin   sql.NullInt64
		target   sql.NullInt64
		placedAt sql.NullTime
	)
	if b := a.PendingBet; b != nil && b.Status == BetPending {
		reqID = sql.NullString{String: b.RequestID.Hex(), Valid: true}
		kind = sql.NullInt16{Int16: int16(b.Kind), Valid: true}
		leverage = sql.NullInt64{Int64: int64(b.LeveragePercent), Valid: true}
		stake = sql.NullString{String: strconv.FormatUint(b.Stake, 10), Valid: true}
		origin = sql.NullInt64{Int64: int64(b.OriginChain), Valid: true}
		target = sql.NullInt64{Int64: int64(b.TargetChain), Valid: true}
		placedAt = sql.NullTime{Time: b.PlacedAt, Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE ledger_accounts SET
		  balance = $2::numeric,
		  reserved = $3::numeric,
		  pending_request_id = $4,
		  pending_kind = $5,
		  pending_leverage = $6,
		  pending_stake = $7::numeric,
		  pending_origin = $8,
		  pending_target = $9,
		  pending_placed_at = $10,
		  version = version + 1,
		  updated_at = NOW()
		WHERE user_address = $1`,
		a.User.Hex(),
		strconv.FormatUint(a.Balance, 10),
		strconv.FormatUint(a.Reserved, 10),
		reqID, kind, leverage, stake, origin, target, placedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		addr, balance, reserved string
		reqID                   sql.NullString
		kind                    sql.NullInt16
		leverage                sql.NullInt64
		stake                   sql.NullString
		origin                  sql.NullInt64
		target                  sql.NullInt64
		placedAt                sql.NullTime
	)
	if err := row.Scan(&addr, &balance, &reserved, &reqID, &kind, &leverage, &stake, &origin, &target, &placedAt); err != nil {
		return Account{}, err
	}

	acc := Account{User: common.HexToAddress(addr)}
	var err error
	if acc.Balance, err = strconv.ParseUint(balance, 10, 64); err != nil {
		return Account{}, fmt.Errorf("balance: %w", err)
	}
	if acc.Reserved, err = strconv.ParseUint(reserved, 10, 64); err != nil {
		return Account{}, fmt.Errorf("reserved: %w", err)
	}
	if reqID.Valid {
		b := &Bet{
			Owner:           acc.User,
			Kind:            BetKind(kind.Int16),
			LeveragePercent: uint64(leverage.Int64),
			RequestID:       common.HexToHash(reqID.String),
			Status:          BetPending,
			OriginChain:     uint32(origin.Int64),
			TargetChain:     uint32(target.Int64),
			PlacedAt:        placedAt.Time,
		}
		if stake.Valid {
			if b.Stake, err = strconv.ParseUint(stake.String, 10, 64); err != nil {
				return Account{}, fmt.Errorf("pending stake: %w", err)
			}
		}
		acc.PendingBet = b
	}
	return acc, nil
}

func (p *PostgresStore) Get(ctx context.Context, user common.Address) (Account, error) {
	acc, err := scanAccount(p.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE user_address=$1`, user.Hex()))
	if err == sql.ErrNoRows {
		return Account{User: user}, nil
	}
	return acc, err
}

func (p *PostgresStore) PendingBets(ctx context.Context) ([]Bet, error) {
	accs, err := p.list(ctx, `SELECT `+accountColumns+` FROM ledger_accounts
		WHERE pending_request_id IS NOT NULL ORDER BY pending_placed_at`)
	if err != nil {
		return nil, err
	}
	out := make([]Bet, 0, len(accs))
	for _, a := range accs {
		out = append(out, *a.PendingBet)
	}
	return out, nil
}

func (p *PostgresStore) Accounts(ctx context.Context) ([]Account, error) {
	return p.list(ctx, `SELECT `+accountColumns+` FROM ledger_accounts ORDER BY user_address`)
}

func (p *PostgresStore) list(ctx context.Context, q string) ([]Account, error) {
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Entries devolve os lançamentos de um usuário, do mais antigo ao mais recente.
func (p *PostgresStore) Entries(ctx context.Context, user common.Address) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT operation_type, amount::text, ref, created_at
		FROM ledger_entries WHERE user_address=$1 ORDER BY id`, user.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			op, amount, ref string
			ts              time.Time
		)
		if err := rows.Scan(&op, &amount, &ref, &ts); err != nil {
			return nil, err
		}
		v, err := strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{User: user, Op: Op(op), Amount: v, Ref: ref, CreatedAt: ts})
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
