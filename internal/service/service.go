// Package service реализует бизнес-логику инвестиционной платформы.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mkoliv/investa-system/internal/config"
	"github.com/mkoliv/investa-system/internal/ledger"
	"github.com/mkoliv/investa-system/internal/model"
	"github.com/mkoliv/investa-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверном номере телефона или пароле.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInviteCode возвращается при регистрации с несуществующим кодом приглашения.
	ErrInvalidInviteCode = errors.New("invalid invite code")
	// ErrInvalidMethod возвращается, если способ оплаты не выбран или не поддерживается.
	ErrInvalidMethod = errors.New("invalid method")
	// ErrInvalidAmount возвращается для нулевой или отрицательной суммы.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrBelowMinimum возвращается, если сумма вывода меньше минимальной.
	ErrBelowMinimum = errors.New("amount below minimum")
	// ErrOutsideWindow возвращается при запросе вывода вне разрешённого окна.
	ErrOutsideWindow = errors.New("outside withdrawal window")
	// ErrNotStaff возвращается при вызове административной операции без прав.
	ErrNotStaff = errors.New("caller is not staff")
	// ErrInvalidPrizes возвращается при сохранении некорректного списка призов.
	ErrInvalidPrizes = errors.New("invalid prize list")
)

const inviteCodeAttempts = 5

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateAccount(ctx context.Context, phone, fullName string, passwordHash []byte, inviteCode string, referrerID *int64) (int64, error)
	GetAccountByPhone(ctx context.Context, phone string) (*model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	GetAccountByInviteCode(ctx context.Context, code string) (*model.Account, error)
	GetSummary(ctx context.Context, accountID int64, today time.Time) (*model.Summary, error)
	GetTeam(ctx context.Context, accountID int64) (*model.Team, error)

	CreateDeposit(ctx context.Context, d *model.Deposit) (int64, error)
	GetDepositsByAccount(ctx context.Context, accountID int64) ([]model.Deposit, error)
	ApproveDeposit(ctx context.Context, depositID int64) (bool, error)

	HasWithdrawalToday(ctx context.Context, accountID int64, today time.Time) (bool, error)
	RequestWithdrawal(ctx context.Context, accountID int64, amount decimal.Decimal, method model.WithdrawalMethod, details string, today time.Time) (*model.Withdrawal, error)
	GetWithdrawalsByAccount(ctx context.Context, accountID int64) ([]model.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, withdrawalID int64) (bool, error)
	RejectWithdrawal(ctx context.Context, withdrawalID int64) (bool, error)

	CompleteTask(ctx context.Context, accountID int64, today time.Time, fallback decimal.Decimal) (decimal.Decimal, error)
	GetTasksByAccount(ctx context.Context, accountID int64) ([]model.Task, error)

	GetLevels(ctx context.Context) ([]model.Level, error)
	GetOwnershipsByAccount(ctx context.Context, accountID int64, activeOnly bool) ([]model.LevelOwnership, error)
	PurchaseLevel(ctx context.Context, accountID, levelID int64) (*model.Level, error)
	ExpireCycles(ctx context.Context, asOf time.Time) (int64, error)

	SpinRoulette(ctx context.Context, accountID int64, prize decimal.Decimal) (int, error)
	GetRecentWinners(ctx context.Context, limit int) ([]model.RoulettePlay, error)
	GrantSpins(ctx context.Context, accountID int64, count int) error

	UpsertBankDetails(ctx context.Context, d *model.BankDetails) error
	GetBankDetails(ctx context.Context, accountID int64) (*model.BankDetails, error)
	GetPlatformSettings(ctx context.Context) (*model.PlatformSettings, error)
	UpdatePlatformSettings(ctx context.Context, s *model.PlatformSettings) error
	GetPlatformBankAccounts(ctx context.Context) ([]model.PlatformBankAccount, error)
}

// Service содержит бизнес-логику инвестиционной платформы.
type Service struct {
	repo Repository

	location        *time.Location
	minWithdrawal   decimal.Decimal
	withdrawOpen    int
	withdrawClose   int
	defaultEarnings decimal.Decimal

	now  func() time.Time
	intn func(n int) int
}

// NewService создаёт новый сервис с указанным репозиторием и конфигурацией.
func NewService(repo Repository, cfg *config.Config) *Service {
	return &Service{
		repo:            repo,
		location:        cfg.Location,
		minWithdrawal:   cfg.MinWithdrawal,
		withdrawOpen:    cfg.WithdrawOpen,
		withdrawClose:   cfg.WithdrawClose,
		defaultEarnings: cfg.DefaultEarnings,
		now:             time.Now,
		intn:            rand.Intn,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) today() time.Time {
	y, m, d := s.now().In(s.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RegisterAccount регистрирует новый счёт. Реферер задаётся один раз
// кодом приглашения и больше не меняется.
func (s *Service) RegisterAccount(ctx context.Context, phone, fullName, password, invitedByCode string) (int64, error) {
	var referrerID *int64
	if invitedByCode != "" {
		referrer, err := s.repo.GetAccountByInviteCode(ctx, invitedByCode)
		if err != nil {
			if errors.Is(err, repository.ErrInviteCodeNotFound) {
				return 0, ErrInvalidInviteCode
			}
			return 0, err
		}
		referrerID = &referrer.ID
	}

	hashed := hashPassword(phone, password)

	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		id, err := s.repo.CreateAccount(ctx, phone, fullName, hashed, newInviteCode(), referrerID)
		if err != nil {
			if errors.Is(err, repository.ErrInviteCodeTaken) {
				continue
			}
			return 0, err
		}
		return id, nil
	}

	return 0, fmt.Errorf("generate invite code: attempts exhausted")
}

// newInviteCode генерирует 8-символьный код приглашения.
func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
}

// AuthenticateAccount проверяет телефон и пароль и возвращает идентификатор счёта.
func (s *Service) AuthenticateAccount(ctx context.Context, phone, password string) (int64, error) {
	a, err := s.repo.GetAccountByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(phone, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(a.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return a.ID, nil
}

func hashPassword(phone, password string) []byte {
	sum := sha256.Sum256([]byte(phone + ":" + password))
	return sum[:]
}

// GetSummary возвращает сводку по счёту на текущую дату.
func (s *Service) GetSummary(ctx context.Context, accountID int64) (*model.Summary, error) {
	return s.repo.GetSummary(ctx, accountID, s.today())
}

// GetTeam возвращает статистику реферальной команды.
func (s *Service) GetTeam(ctx context.Context, accountID int64) (*model.Team, error) {
	return s.repo.GetTeam(ctx, accountID)
}

// CreateDeposit создаёт неодобренную заявку на пополнение.
// Баланс пополняется только после одобрения администратором.
func (s *Service) CreateDeposit(ctx context.Context, accountID int64, amount decimal.Decimal, method model.DepositMethod, payerName, proofRef string) (int64, error) {
	switch method {
	case model.DepositMethodBank, model.DepositMethodPix, model.DepositMethodTRC20:
	default:
		return 0, ErrInvalidMethod
	}
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}

	return s.repo.CreateDeposit(ctx, &model.Deposit{
		AccountID: accountID,
		Amount:    amount,
		Method:    method,
		PayerName: payerName,
		ProofRef:  proofRef,
	})
}

// GetDeposits возвращает заявки на пополнение счёта.
func (s *Service) GetDeposits(ctx context.Context, accountID int64) ([]model.Deposit, error) {
	return s.repo.GetDepositsByAccount(ctx, accountID)
}

// RequestWithdrawal создаёт заявку на вывод средств. Проверки выполняются
// в фиксированном порядке: способ выплаты, лимит одной заявки в день,
// временное окно, минимальная сумма, достаточность баланса.
func (s *Service) RequestWithdrawal(ctx context.Context, accountID int64, amount decimal.Decimal, method model.WithdrawalMethod, details string) (*model.Withdrawal, error) {
	switch method {
	case model.WithdrawalMethodBank, model.WithdrawalMethodPix, model.WithdrawalMethodUSDT:
	default:
		return nil, ErrInvalidMethod
	}

	today := s.today()
	exists, err := s.repo.HasWithdrawalToday(ctx, accountID, today)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, repository.ErrDailyWithdrawalExists
	}

	if !s.withinWithdrawWindow() {
		return nil, ErrOutsideWindow
	}

	if amount.LessThan(s.minWithdrawal) {
		return nil, ErrBelowMinimum
	}

	return s.repo.RequestWithdrawal(ctx, accountID, amount, method, details, today)
}

// withinWithdrawWindow проверяет, что локальное время попадает
// в разрешённое окно вывода. Границы включительные.
func (s *Service) withinWithdrawWindow() bool {
	t := s.now().In(s.location)
	minute := t.Hour()*60 + t.Minute()
	return minute >= s.withdrawOpen && minute <= s.withdrawClose
}

// GetWithdrawals возвращает историю выводов счёта.
func (s *Service) GetWithdrawals(ctx context.Context, accountID int64) ([]model.Withdrawal, error) {
	return s.repo.GetWithdrawalsByAccount(ctx, accountID)
}

// CompleteTask фиксирует выполнение ежедневного задания и возвращает
// начисленный доход.
func (s *Service) CompleteTask(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return s.repo.CompleteTask(ctx, accountID, s.today(), s.defaultEarnings)
}

// GetTasks возвращает историю выполненных заданий счёта.
func (s *Service) GetTasks(ctx context.Context, accountID int64) ([]model.Task, error) {
	return s.repo.GetTasksByAccount(ctx, accountID)
}

// GetLevels возвращает каталог уровней.
func (s *Service) GetLevels(ctx context.Context) ([]model.Level, error) {
	return s.repo.GetLevels(ctx)
}

// GetOwnerships возвращает купленные уровни счёта.
func (s *Service) GetOwnerships(ctx context.Context, accountID int64) ([]model.LevelOwnership, error) {
	return s.repo.GetOwnershipsByAccount(ctx, accountID, false)
}

// PurchaseLevel покупает уровень для счёта.
func (s *Service) PurchaseLevel(ctx context.Context, accountID, levelID int64) (*model.Level, error) {
	return s.repo.PurchaseLevel(ctx, accountID, levelID)
}

// RouletteInfo содержит состояние рулетки для счёта.
type RouletteInfo struct {
	Spins   int
	Prizes  []decimal.Decimal
	Winners []model.RoulettePlay
}

// GetRouletteInfo возвращает остаток вращений, список призов и последние выигрыши.
func (s *Service) GetRouletteInfo(ctx context.Context, accountID int64) (*RouletteInfo, error) {
	a, err := s.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	prizes, err := s.prizePool(ctx)
	if err != nil {
		return nil, err
	}

	winners, err := s.repo.GetRecentWinners(ctx, 10)
	if err != nil {
		return nil, err
	}

	return &RouletteInfo{Spins: a.RouletteSpins, Prizes: prizes, Winners: winners}, nil
}

func (s *Service) prizePool(ctx context.Context) ([]decimal.Decimal, error) {
	settings, err := s.repo.GetPlatformSettings(ctx)
	if err != nil {
		return nil, err
	}
	prizes, err := ledger.ParsePrizes(settings.RoulettePrizes)
	if err != nil {
		return nil, fmt.Errorf("prize pool configuration: %w", err)
	}
	return prizes, nil
}

// SpinRoulette разыгрывает приз из взвешенного пула и применяет результат.
// Пул строится заново на каждое вращение из текущих настроек.
func (s *Service) SpinRoulette(ctx context.Context, accountID int64) (decimal.Decimal, int, error) {
	prizes, err := s.prizePool(ctx)
	if err != nil {
		return decimal.Zero, 0, err
	}

	prize := ledger.Draw(ledger.WeightedPool(prizes), s.intn)

	remaining, err := s.repo.SpinRoulette(ctx, accountID, prize)
	if err != nil {
		return decimal.Zero, 0, err
	}

	return prize, remaining, nil
}

// GetBankDetails возвращает платёжные реквизиты пользователя, либо nil.
func (s *Service) GetBankDetails(ctx context.Context, accountID int64) (*model.BankDetails, error) {
	return s.repo.GetBankDetails(ctx, accountID)
}

// UpdateBankDetails сохраняет платёжные реквизиты пользователя.
func (s *Service) UpdateBankDetails(ctx context.Context, d *model.BankDetails) error {
	return s.repo.UpsertBankDetails(ctx, d)
}

// GetPlatformInfo возвращает настройки платформы и её банковские реквизиты.
func (s *Service) GetPlatformInfo(ctx context.Context) (*model.PlatformSettings, []model.PlatformBankAccount, error) {
	settings, err := s.repo.GetPlatformSettings(ctx)
	if err != nil {
		return nil, nil, err
	}
	banks, err := s.repo.GetPlatformBankAccounts(ctx)
	if err != nil {
		return nil, nil, err
	}
	return settings, banks, nil
}

func (s *Service) requireStaff(ctx context.Context, callerID int64) error {
	a, err := s.repo.GetAccountByID(ctx, callerID)
	if err != nil {
		return err
	}
	if !a.IsStaff {
		return ErrNotStaff
	}
	return nil
}

// ApproveDeposit одобряет депозит от имени администратора.
// Повторное одобрение — no-op: credited = false.
func (s *Service) ApproveDeposit(ctx context.Context, callerID, depositID int64) (bool, error) {
	if err := s.requireStaff(ctx, callerID); err != nil {
		return false, err
	}
	return s.repo.ApproveDeposit(ctx, depositID)
}

// ApproveWithdrawal одобряет заявку на вывод от имени администратора.
func (s *Service) ApproveWithdrawal(ctx context.Context, callerID, withdrawalID int64) (bool, error) {
	if err := s.requireStaff(ctx, callerID); err != nil {
		return false, err
	}
	return s.repo.ApproveWithdrawal(ctx, withdrawalID)
}

// RejectWithdrawal отклоняет заявку на вывод и возвращает средства на счёт.
func (s *Service) RejectWithdrawal(ctx context.Context, callerID, withdrawalID int64) (bool, error) {
	if err := s.requireStaff(ctx, callerID); err != nil {
		return false, err
	}
	return s.repo.RejectWithdrawal(ctx, withdrawalID)
}

// GrantSpins добавляет счёту вращения рулетки от имени администратора.
func (s *Service) GrantSpins(ctx context.Context, callerID, accountID int64, count int) error {
	if err := s.requireStaff(ctx, callerID); err != nil {
		return err
	}
	if count <= 0 {
		return ErrInvalidAmount
	}
	return s.repo.GrantSpins(ctx, accountID, count)
}

// UpdatePlatformSettings сохраняет настройки платформы от имени администратора.
func (s *Service) UpdatePlatformSettings(ctx context.Context, callerID int64, settings *model.PlatformSettings) error {
	if err := s.requireStaff(ctx, callerID); err != nil {
		return err
	}
	if settings.RoulettePrizes != "" {
		if _, err := ledger.ParsePrizes(settings.RoulettePrizes); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPrizes, err)
		}
	}
	return s.repo.UpdatePlatformSettings(ctx, settings)
}

// StartCycleExpiry запускает фоновый процесс деактивации уровней
// с истёкшим циклом.
func (s *Service) StartCycleExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.repo.ExpireCycles(ctx, s.now())
			}
		}
	}()
}
