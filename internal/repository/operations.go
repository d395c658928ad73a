package repository

// Операции движения средств. Каждая операция выполняется в одной
// транзакции; все изменяемые счета блокируются FOR UPDATE в порядке
// возрастания идентификатора, чтобы пересекающиеся реферальные цепочки
// не приводили к дедлокам.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mkoliv/investa-system/internal/ledger"
	"github.com/mkoliv/investa-system/internal/model"
)

// referrerChain возвращает идентификаторы предков счёта до ledger.MaxTiers
// ярусов. Отсутствие реферера на любом ярусе обрывает цепочку.
func referrerChain(ctx context.Context, tx pgx.Tx, accountID int64) ([]int64, error) {
	chain := make([]int64, 0, ledger.MaxTiers)
	current := accountID

	for i := 0; i < ledger.MaxTiers; i++ {
		var ref *int64
		err := tx.QueryRow(ctx,
			`SELECT referrer_id FROM accounts WHERE id = $1`, current,
		).Scan(&ref)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				if i == 0 {
					return nil, ErrAccountNotFound
				}
				return nil, fmt.Errorf("referrer chain broken at tier %d", i)
			}
			return nil, fmt.Errorf("resolve referrer: %w", err)
		}
		if ref == nil {
			break
		}
		chain = append(chain, *ref)
		current = *ref
	}

	return chain, nil
}

// lockAccounts блокирует счета по одному в порядке возрастания id.
func lockAccounts(ctx context.Context, tx pgx.Tx, ids []int64) error {
	sorted := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, id := range sorted {
		var dummy int
		err := tx.QueryRow(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account %d: %w", id, err)
		}
	}

	return nil
}

// creditBoth зачисляет сумму на доступный и субсидийный балансы счёта.
func creditBoth(ctx context.Context, tx pgx.Tx, accountID int64, amount decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		`UPDATE accounts
		 SET available_balance = available_balance + $2,
		     subsidy_balance = subsidy_balance + $2
		 WHERE id = $1`,
		accountID, amount,
	)
	if err != nil {
		return fmt.Errorf("credit account %d: %w", accountID, err)
	}
	return nil
}

func availableBalance(ctx context.Context, tx pgx.Tx, accountID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx,
		`SELECT available_balance FROM accounts WHERE id = $1`, accountID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

// ApproveDeposit одобряет депозит и зачисляет сумму на счёт владельца.
// Повторное одобрение — no-op: возвращается credited = false без ошибки.
func (r *PostgresRepository) ApproveDeposit(ctx context.Context, depositID int64) (bool, error) {
	var credited bool
	err := r.withRetry(ctx, func() error {
		credited = false

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var accountID int64
		var amount decimal.Decimal
		var approved bool
		err = tx.QueryRow(ctx,
			`SELECT account_id, amount, is_approved FROM deposits WHERE id = $1 FOR UPDATE`,
			depositID,
		).Scan(&accountID, &amount, &approved)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrDepositNotFound
			}
			return fmt.Errorf("select deposit: %w", err)
		}

		if approved {
			return tx.Commit(ctx)
		}

		if err := lockAccounts(ctx, tx, []int64{accountID}); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE deposits SET is_approved = TRUE WHERE id = $1`, depositID,
		); err != nil {
			return fmt.Errorf("approve deposit: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET available_balance = available_balance + $2 WHERE id = $1`,
			accountID, amount,
		); err != nil {
			return fmt.Errorf("credit deposit: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		credited = true
		return nil
	})
	return credited, err
}

// RequestWithdrawal создаёт заявку на вывод и немедленно списывает сумму
// с доступного баланса. Допускается не более одной заявки в статусе
// PENDING или APPROVED на счёт в день.
func (r *PostgresRepository) RequestWithdrawal(ctx context.Context, accountID int64, amount decimal.Decimal, method model.WithdrawalMethod, details string, today time.Time) (*model.Withdrawal, error) {
	var w *model.Withdrawal
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := lockAccounts(ctx, tx, []int64{accountID}); err != nil {
			return err
		}

		var count int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM withdrawals
			 WHERE account_id = $1 AND requested_on = $2 AND status = ANY($3)`,
			accountID, today,
			[]string{string(model.WithdrawalStatusPending), string(model.WithdrawalStatusApproved)},
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("count withdrawals: %w", err)
		}
		if count > 0 {
			return ErrDailyWithdrawalExists
		}

		balance, err := availableBalance(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		created := &model.Withdrawal{
			AccountID: accountID,
			Amount:    amount,
			Method:    method,
			Details:   details,
			Status:    model.WithdrawalStatusPending,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO withdrawals (account_id, amount, method, details, status, requested_on)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created_at`,
			accountID, amount, string(method), details, string(model.WithdrawalStatusPending), today,
		).Scan(&created.ID, &created.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET available_balance = available_balance - $2 WHERE id = $1`,
			accountID, amount,
		); err != nil {
			return fmt.Errorf("debit withdrawal: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		w = created
		return nil
	})
	return w, err
}

// ApproveWithdrawal переводит заявку из PENDING в APPROVED.
// Баланс не меняется: списание произошло при создании заявки.
// Заявка не в PENDING — no-op, возвращается changed = false.
func (r *PostgresRepository) ApproveWithdrawal(ctx context.Context, withdrawalID int64) (bool, error) {
	return r.transitionWithdrawal(ctx, withdrawalID, model.WithdrawalStatusApproved, false)
}

// RejectWithdrawal переводит заявку из PENDING в REJECTED и возвращает
// списанную сумму на доступный баланс. Явная административная операция
// отмены оптимистичного списания.
func (r *PostgresRepository) RejectWithdrawal(ctx context.Context, withdrawalID int64) (bool, error) {
	return r.transitionWithdrawal(ctx, withdrawalID, model.WithdrawalStatusRejected, true)
}

func (r *PostgresRepository) transitionWithdrawal(ctx context.Context, withdrawalID int64, target model.WithdrawalStatus, refund bool) (bool, error) {
	var changed bool
	err := r.withRetry(ctx, func() error {
		changed = false

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var accountID int64
		var amount decimal.Decimal
		var status string
		err = tx.QueryRow(ctx,
			`SELECT account_id, amount, status FROM withdrawals WHERE id = $1 FOR UPDATE`,
			withdrawalID,
		).Scan(&accountID, &amount, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWithdrawalNotFound
			}
			return fmt.Errorf("select withdrawal: %w", err)
		}

		if model.WithdrawalStatus(status) != model.WithdrawalStatusPending {
			return tx.Commit(ctx)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE withdrawals SET status = $2 WHERE id = $1`,
			withdrawalID, string(target),
		); err != nil {
			return fmt.Errorf("update withdrawal: %w", err)
		}

		if refund {
			if err := lockAccounts(ctx, tx, []int64{accountID}); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`UPDATE accounts SET available_balance = available_balance + $2 WHERE id = $1`,
				accountID, amount,
			); err != nil {
				return fmt.Errorf("refund withdrawal: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		changed = true
		return nil
	})
	return changed, err
}

// CompleteTask фиксирует выполнение ежедневного задания: начисляет доход
// счёту и комиссии трём ярусам рефереров. Доход равен дневной ставке
// последнего активного уровня, либо fallback для счёта без уровня.
// Повторное выполнение за день отклоняется как ErrDailyTaskCompleted.
func (r *PostgresRepository) CompleteTask(ctx context.Context, accountID int64, today time.Time, fallback decimal.Decimal) (decimal.Decimal, error) {
	var earnings decimal.Decimal
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		chain, err := referrerChain(ctx, tx, accountID)
		if err != nil {
			return err
		}

		if err := lockAccounts(ctx, tx, append([]int64{accountID}, chain...)); err != nil {
			return err
		}

		gain := fallback
		var dailyGain decimal.Decimal
		err = tx.QueryRow(ctx,
			`SELECT l.daily_gain
			 FROM user_levels ul
			 JOIN levels l ON l.id = ul.level_id
			 WHERE ul.account_id = $1 AND ul.is_active
			 ORDER BY ul.purchased_at DESC
			 LIMIT 1`,
			accountID,
		).Scan(&dailyGain)
		switch {
		case err == nil:
			gain = dailyGain
		case errors.Is(err, pgx.ErrNoRows):
			// счёт без уровня зарабатывает по базовой ставке
		default:
			return fmt.Errorf("select daily gain: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO tasks (account_id, earnings, completed_on) VALUES ($1, $2, $3)`,
			accountID, gain, today,
		); err != nil {
			if isUniqueViolation(err, "tasks_account_id_completed_on_key") {
				return ErrDailyTaskCompleted
			}
			return fmt.Errorf("insert task: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET available_balance = available_balance + $2 WHERE id = $1`,
			accountID, gain,
		); err != nil {
			return fmt.Errorf("credit earnings: %w", err)
		}

		plan := ledger.CommissionPlan(gain, ledger.TaskCommissionRates, len(chain))
		for _, c := range plan {
			if err := creditBoth(ctx, tx, chain[c.Tier-1], c.Amount); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		earnings = gain
		return nil
	})
	return earnings, err
}

// PurchaseLevel покупает уровень: списывает стоимость, создаёт владение
// и выплачивает комиссии реферерам с активным уровнем. Цепочка комиссий
// обрывается на первом реферере без активного уровня.
func (r *PostgresRepository) PurchaseLevel(ctx context.Context, accountID, levelID int64) (*model.Level, error) {
	var level *model.Level
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var l model.Level
		err = tx.QueryRow(ctx,
			`SELECT id, name, cost, daily_gain, monthly_gain, cycle_days FROM levels WHERE id = $1`,
			levelID,
		).Scan(&l.ID, &l.Name, &l.Cost, &l.DailyGain, &l.MonthlyGain, &l.CycleDays)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrLevelNotFound
			}
			return fmt.Errorf("select level: %w", err)
		}

		chain, err := referrerChain(ctx, tx, accountID)
		if err != nil {
			return err
		}

		if err := lockAccounts(ctx, tx, append([]int64{accountID}, chain...)); err != nil {
			return err
		}

		var owned bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM user_levels WHERE account_id = $1 AND level_id = $2 AND is_active
			)`,
			accountID, levelID,
		).Scan(&owned)
		if err != nil {
			return fmt.Errorf("check ownership: %w", err)
		}
		if owned {
			return ErrLevelAlreadyOwned
		}

		balance, err := availableBalance(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if balance.LessThan(l.Cost) {
			return ErrInsufficientBalance
		}

		if _, err := tx.Exec(ctx,
			`UPDATE accounts
			 SET available_balance = available_balance - $2, level_active = TRUE
			 WHERE id = $1`,
			accountID, l.Cost,
		); err != nil {
			return fmt.Errorf("debit level cost: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO user_levels (account_id, level_id) VALUES ($1, $2)`,
			accountID, levelID,
		); err != nil {
			return fmt.Errorf("insert ownership: %w", err)
		}

		invested := make([]bool, 0, len(chain))
		for _, refID := range chain {
			var active bool
			err = tx.QueryRow(ctx,
				`SELECT EXISTS (
					SELECT 1 FROM user_levels WHERE account_id = $1 AND is_active
				)`,
				refID,
			).Scan(&active)
			if err != nil {
				return fmt.Errorf("check referrer level: %w", err)
			}
			invested = append(invested, active)
		}

		plan := ledger.CommissionPlan(l.Cost, ledger.LevelCommissionRates, ledger.QualifiedDepth(invested))
		for _, c := range plan {
			if err := creditBoth(ctx, tx, chain[c.Tier-1], c.Amount); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		level = &l
		return nil
	})
	return level, err
}

// SpinRoulette тратит одно вращение и зачисляет выигранный приз на оба
// баланса. Нулевой приз тоже фиксируется записью розыгрыша.
func (r *PostgresRepository) SpinRoulette(ctx context.Context, accountID int64, prize decimal.Decimal) (int, error) {
	var remaining int
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := lockAccounts(ctx, tx, []int64{accountID}); err != nil {
			return err
		}

		var spins int
		err = tx.QueryRow(ctx,
			`SELECT roulette_spins FROM accounts WHERE id = $1`, accountID,
		).Scan(&spins)
		if err != nil {
			return fmt.Errorf("select spins: %w", err)
		}
		if spins <= 0 {
			return ErrNoSpins
		}

		if _, err := tx.Exec(ctx,
			`UPDATE accounts
			 SET roulette_spins = roulette_spins - 1,
			     available_balance = available_balance + $2,
			     subsidy_balance = subsidy_balance + $2
			 WHERE id = $1`,
			accountID, prize,
		); err != nil {
			return fmt.Errorf("apply spin: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO roulette_plays (account_id, prize, is_approved) VALUES ($1, $2, TRUE)`,
			accountID, prize,
		); err != nil {
			return fmt.Errorf("insert play: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		remaining = spins - 1
		return nil
	})
	return remaining, err
}
