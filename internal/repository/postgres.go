// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mkoliv/investa-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAccountExists возвращается при попытке создать счёт с уже существующим номером телефона.
var (
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound возвращается, если счёт не найден.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInviteCodeTaken возвращается при коллизии кода приглашения.
	ErrInviteCodeTaken = errors.New("invite code already taken")
	// ErrInviteCodeNotFound возвращается, если код приглашения не существует.
	ErrInviteCodeNotFound = errors.New("invite code not found")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDepositNotFound возвращается, если депозит не найден.
	ErrDepositNotFound = errors.New("deposit not found")
	// ErrWithdrawalNotFound возвращается, если заявка на вывод не найдена.
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	// ErrDailyWithdrawalExists возвращается, если за сегодня уже есть
	// заявка на вывод в статусе PENDING или APPROVED.
	ErrDailyWithdrawalExists = errors.New("withdrawal already requested today")
	// ErrDailyTaskCompleted возвращается при повторном выполнении задания за день.
	ErrDailyTaskCompleted = errors.New("task already completed today")
	// ErrLevelNotFound возвращается, если уровень не найден.
	ErrLevelNotFound = errors.New("level not found")
	// ErrLevelAlreadyOwned возвращается при повторной покупке активного уровня.
	ErrLevelAlreadyOwned = errors.New("level already owned")
	// ErrNoSpins возвращается при попытке крутить рулетку без доступных вращений.
	ErrNoSpins = errors.New("no spins available")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сбоях сериализации, дедлоках и сетевых ошибках.
// Каждая операция либо фиксируется целиком, либо откатывается и повторяется заново.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		(constraint == "" || pgErr.ConstraintName == constraint)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const accountColumns = `id, phone_number, full_name, password_hash, invite_code, referrer_id,
	available_balance, subsidy_balance, level_active, roulette_spins,
	free_plan_used, is_staff, is_active, created_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID, &a.PhoneNumber, &a.FullName, &a.PasswordHash, &a.InviteCode, &a.ReferrerID,
		&a.AvailableBalance, &a.SubsidyBalance, &a.LevelActive, &a.RouletteSpins,
		&a.FreePlanUsed, &a.IsStaff, &a.IsActive, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

// CreateAccount создаёт новый счёт. Код приглашения должен быть уникальным;
// при коллизии возвращается ErrInviteCodeTaken, и вызывающая сторона
// генерирует новый код.
func (r *PostgresRepository) CreateAccount(ctx context.Context, phone, fullName string, passwordHash []byte, inviteCode string, referrerID *int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (phone_number, full_name, password_hash, invite_code, referrer_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		phone, fullName, passwordHash, inviteCode, referrerID,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "accounts_phone_number_key") {
			return 0, fmt.Errorf("%w: %s", ErrAccountExists, phone)
		}
		if isUniqueViolation(err, "accounts_invite_code_key") {
			return 0, ErrInviteCodeTaken
		}
		return 0, fmt.Errorf("create account: %w", err)
	}
	return id, nil
}

// GetAccountByPhone возвращает счёт по номеру телефона.
func (r *PostgresRepository) GetAccountByPhone(ctx context.Context, phone string) (*model.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE phone_number = $1`, phone))
}

// GetAccountByID возвращает счёт по идентификатору.
func (r *PostgresRepository) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetAccountByInviteCode возвращает счёт по коду приглашения.
func (r *PostgresRepository) GetAccountByInviteCode(ctx context.Context, code string) (*model.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE invite_code = $1`, code))
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInviteCodeNotFound
	}
	return a, err
}

// GetSummary возвращает сводку по счёту на указанную дату.
func (r *PostgresRepository) GetSummary(ctx context.Context, accountID int64, today time.Time) (*model.Summary, error) {
	var s model.Summary
	err := r.pool.QueryRow(ctx,
		`SELECT available_balance, subsidy_balance, roulette_spins FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&s.AvailableBalance, &s.SubsidyBalance, &s.RouletteSpins)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("select balances: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM deposits WHERE account_id = $1 AND is_approved`,
		accountID,
	).Scan(&s.ApprovedDeposits)
	if err != nil {
		return nil, fmt.Errorf("sum approved deposits: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(earnings), 0) FROM tasks WHERE account_id = $1 AND completed_on = $2`,
		accountID, today,
	).Scan(&s.TodayIncome)
	if err != nil {
		return nil, fmt.Errorf("sum today income: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE account_id = $1 AND status = $2`,
		accountID, string(model.WithdrawalStatusApproved),
	).Scan(&s.TotalWithdrawn)
	if err != nil {
		return nil, fmt.Errorf("sum withdrawals: %w", err)
	}

	ownerships, err := r.GetOwnershipsByAccount(ctx, accountID, true)
	if err != nil {
		return nil, err
	}
	if len(ownerships) > 0 {
		s.ActiveLevel = &ownerships[0]
	}

	return &s, nil
}

// GetLevels возвращает каталог уровней, отсортированный по стоимости активации.
func (r *PostgresRepository) GetLevels(ctx context.Context) ([]model.Level, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, cost, daily_gain, monthly_gain, cycle_days
		 FROM levels
		 ORDER BY cost`,
	)
	if err != nil {
		return nil, fmt.Errorf("select levels: %w", err)
	}
	defer rows.Close()

	var levels []model.Level
	for rows.Next() {
		var l model.Level
		if err := rows.Scan(&l.ID, &l.Name, &l.Cost, &l.DailyGain, &l.MonthlyGain, &l.CycleDays); err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels = append(levels, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return levels, nil
}

// GetOwnershipsByAccount возвращает купленные уровни счёта,
// начиная с последней покупки.
func (r *PostgresRepository) GetOwnershipsByAccount(ctx context.Context, accountID int64, activeOnly bool) ([]model.LevelOwnership, error) {
	query := `SELECT ul.id, ul.account_id, ul.level_id, l.name, l.daily_gain, ul.purchased_at, ul.is_active
		 FROM user_levels ul
		 JOIN levels l ON l.id = ul.level_id
		 WHERE ul.account_id = $1`
	if activeOnly {
		query += ` AND ul.is_active`
	}
	query += ` ORDER BY ul.purchased_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("select ownerships: %w", err)
	}
	defer rows.Close()

	var res []model.LevelOwnership
	for rows.Next() {
		var o model.LevelOwnership
		if err := rows.Scan(&o.ID, &o.AccountID, &o.LevelID, &o.LevelName, &o.DailyGain, &o.PurchasedAt, &o.IsActive); err != nil {
			return nil, fmt.Errorf("scan ownership: %w", err)
		}
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateDeposit создаёт неодобренную заявку на пополнение.
func (r *PostgresRepository) CreateDeposit(ctx context.Context, d *model.Deposit) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO deposits (account_id, amount, method, payer_name, proof_ref)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		d.AccountID, d.Amount, string(d.Method), d.PayerName, d.ProofRef,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert deposit: %w", err)
	}
	return id, nil
}

// GetDepositsByAccount возвращает заявки на пополнение счёта.
func (r *PostgresRepository) GetDepositsByAccount(ctx context.Context, accountID int64) ([]model.Deposit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, amount, method, payer_name, proof_ref, is_approved, created_at
		 FROM deposits
		 WHERE account_id = $1
		 ORDER BY created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select deposits: %w", err)
	}
	defer rows.Close()

	var res []model.Deposit
	for rows.Next() {
		var d model.Deposit
		var method string
		if err := rows.Scan(&d.ID, &d.AccountID, &d.Amount, &method, &d.PayerName, &d.ProofRef, &d.IsApproved, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		d.Method = model.DepositMethod(method)
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetTasksByAccount возвращает историю выполненных заданий счёта.
func (r *PostgresRepository) GetTasksByAccount(ctx context.Context, accountID int64) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, earnings, completed_at
		 FROM tasks
		 WHERE account_id = $1
		 ORDER BY completed_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	var res []model.Task
	for rows.Next() {
		var task model.Task
		if err := rows.Scan(&task.ID, &task.AccountID, &task.Earnings, &task.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		res = append(res, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetWithdrawalsByAccount возвращает историю выводов счёта.
func (r *PostgresRepository) GetWithdrawalsByAccount(ctx context.Context, accountID int64) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, amount, method, details, status, created_at
		 FROM withdrawals
		 WHERE account_id = $1
		 ORDER BY created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	defer rows.Close()

	var res []model.Withdrawal
	for rows.Next() {
		var w model.Withdrawal
		var method, status string
		if err := rows.Scan(&w.ID, &w.AccountID, &w.Amount, &method, &w.Details, &status, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		w.Method = model.WithdrawalMethod(method)
		w.Status = model.WithdrawalStatus(status)
		res = append(res, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// HasWithdrawalToday сообщает, есть ли у счёта за указанную дату заявка
// на вывод в статусе PENDING или APPROVED. Проверка без блокировки;
// RequestWithdrawal повторяет её уже под блокировкой счёта.
func (r *PostgresRepository) HasWithdrawalToday(ctx context.Context, accountID int64, today time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM withdrawals
			WHERE account_id = $1 AND requested_on = $2 AND status = ANY($3)
		)`,
		accountID, today,
		[]string{string(model.WithdrawalStatusPending), string(model.WithdrawalStatusApproved)},
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check daily withdrawal: %w", err)
	}
	return exists, nil
}

// GetTeam возвращает статистику реферальной команды по трём ярусам.
func (r *PostgresRepository) GetTeam(ctx context.Context, accountID int64) (*model.Team, error) {
	var t model.Team
	err := r.pool.QueryRow(ctx,
		`SELECT subsidy_balance, invite_code FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&t.SubsidyBalance, &t.InviteCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}

	tier := []int64{accountID}
	for i := 0; i < 3; i++ {
		rows, err := r.pool.Query(ctx,
			`SELECT a.id,
			        EXISTS (SELECT 1 FROM user_levels ul WHERE ul.account_id = a.id AND ul.is_active)
			 FROM accounts a
			 WHERE a.referrer_id = ANY($1)`,
			tier,
		)
		if err != nil {
			return nil, fmt.Errorf("select tier %d: %w", i+1, err)
		}

		var next []int64
		for rows.Next() {
			var id int64
			var invested bool
			if err := rows.Scan(&id, &invested); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan tier member: %w", err)
			}
			next = append(next, id)
			t.Tiers[i].Members++
			if invested {
				t.Tiers[i].Investors++
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rows error: %w", err)
		}

		if len(next) == 0 {
			break
		}
		tier = next
	}

	return &t, nil
}

// GetRecentWinners возвращает последние одобренные выигрыши рулетки.
func (r *PostgresRepository) GetRecentWinners(ctx context.Context, limit int) ([]model.RoulettePlay, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, prize, is_approved, played_at
		 FROM roulette_plays
		 WHERE is_approved
		 ORDER BY played_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select winners: %w", err)
	}
	defer rows.Close()

	var res []model.RoulettePlay
	for rows.Next() {
		var p model.RoulettePlay
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Prize, &p.IsApproved, &p.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan play: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpsertBankDetails сохраняет платёжные реквизиты пользователя.
func (r *PostgresRepository) UpsertBankDetails(ctx context.Context, d *model.BankDetails) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO bank_details (account_id, bank_name, iban, account_holder_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id) DO UPDATE
		 SET bank_name = EXCLUDED.bank_name,
		     iban = EXCLUDED.iban,
		     account_holder_name = EXCLUDED.account_holder_name`,
		d.AccountID, d.BankName, d.IBAN, d.AccountHolderName,
	)
	if err != nil {
		return fmt.Errorf("upsert bank details: %w", err)
	}
	return nil
}

// GetBankDetails возвращает платёжные реквизиты пользователя, либо nil.
func (r *PostgresRepository) GetBankDetails(ctx context.Context, accountID int64) (*model.BankDetails, error) {
	var d model.BankDetails
	err := r.pool.QueryRow(ctx,
		`SELECT account_id, bank_name, iban, account_holder_name FROM bank_details WHERE account_id = $1`,
		accountID,
	).Scan(&d.AccountID, &d.BankName, &d.IBAN, &d.AccountHolderName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select bank details: %w", err)
	}
	return &d, nil
}

// GetPlatformSettings возвращает настройки платформы.
// Запись единственная; читается на каждый запрос, а не кэшируется.
func (r *PostgresRepository) GetPlatformSettings(ctx context.Context) (*model.PlatformSettings, error) {
	var s model.PlatformSettings
	err := r.pool.QueryRow(ctx,
		`SELECT support_link, history_text, deposit_instruction, withdrawal_instruction, roulette_prizes
		 FROM platform_settings WHERE id = 1`,
	).Scan(&s.SupportLink, &s.HistoryText, &s.DepositInstruction, &s.WithdrawalInstruction, &s.RoulettePrizes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.PlatformSettings{}, nil
		}
		return nil, fmt.Errorf("select settings: %w", err)
	}
	return &s, nil
}

// UpdatePlatformSettings сохраняет настройки платформы.
func (r *PostgresRepository) UpdatePlatformSettings(ctx context.Context, s *model.PlatformSettings) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO platform_settings (id, support_link, history_text, deposit_instruction, withdrawal_instruction, roulette_prizes)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET support_link = EXCLUDED.support_link,
		     history_text = EXCLUDED.history_text,
		     deposit_instruction = EXCLUDED.deposit_instruction,
		     withdrawal_instruction = EXCLUDED.withdrawal_instruction,
		     roulette_prizes = EXCLUDED.roulette_prizes`,
		s.SupportLink, s.HistoryText, s.DepositInstruction, s.WithdrawalInstruction, s.RoulettePrizes,
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

// GetPlatformBankAccounts возвращает реквизиты платформы для приёма депозитов.
func (r *PostgresRepository) GetPlatformBankAccounts(ctx context.Context) ([]model.PlatformBankAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, bank_name, iban, account_holder_name FROM platform_bank_accounts ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select platform accounts: %w", err)
	}
	defer rows.Close()

	var res []model.PlatformBankAccount
	for rows.Next() {
		var a model.PlatformBankAccount
		if err := rows.Scan(&a.ID, &a.BankName, &a.IBAN, &a.AccountHolderName); err != nil {
			return nil, fmt.Errorf("scan platform account: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GrantSpins добавляет счёту вращения рулетки.
func (r *PostgresRepository) GrantSpins(ctx context.Context, accountID int64, count int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET roulette_spins = roulette_spins + $2 WHERE id = $1`,
		accountID, count,
	)
	if err != nil {
		return fmt.Errorf("grant spins: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ExpireCycles деактивирует уровни, чей цикл истёк к моменту asOf,
// и сбрасывает флаг активного уровня у счётов без действующих уровней.
func (r *PostgresRepository) ExpireCycles(ctx context.Context, asOf time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE user_levels ul
		 SET is_active = FALSE
		 FROM levels l
		 WHERE l.id = ul.level_id
		   AND ul.is_active
		   AND ul.purchased_at + make_interval(days => l.cycle_days) <= $1`,
		asOf,
	)
	if err != nil {
		return 0, fmt.Errorf("expire ownerships: %w", err)
	}

	expired := tag.RowsAffected()
	if expired > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE accounts a
			 SET level_active = FALSE
			 WHERE a.level_active
			   AND NOT EXISTS (SELECT 1 FROM user_levels ul WHERE ul.account_id = a.id AND ul.is_active)`,
		)
		if err != nil {
			return 0, fmt.Errorf("reset level flags: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return expired, nil
}
