// Package model содержит доменные сущности инвестиционной платформы.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account представляет финансовый счёт зарегистрированного пользователя.
type Account struct {
	ID               int64
	PhoneNumber      string
	FullName         string
	PasswordHash     []byte
	InviteCode       string
	ReferrerID       *int64
	AvailableBalance decimal.Decimal
	SubsidyBalance   decimal.Decimal
	LevelActive      bool
	RouletteSpins    int
	FreePlanUsed     bool
	IsStaff          bool
	IsActive         bool
	CreatedAt        time.Time
}

// DepositMethod описывает способ пополнения счёта.
type DepositMethod string

const (
	DepositMethodBank  DepositMethod = "bank"
	DepositMethodPix   DepositMethod = "pix"
	DepositMethodTRC20 DepositMethod = "trc20"
)

// Deposit описывает заявку на пополнение счёта.
// Создаётся пользователем неодобренной; зачисление на баланс происходит
// только при одобрении администратором.
type Deposit struct {
	ID         int64
	AccountID  int64
	Amount     decimal.Decimal
	Method     DepositMethod
	PayerName  string
	ProofRef   string
	IsApproved bool
	CreatedAt  time.Time
}

// WithdrawalStatus описывает статус заявки на вывод средств.
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "PENDING"
	WithdrawalStatusApproved WithdrawalStatus = "APPROVED"
	WithdrawalStatusRejected WithdrawalStatus = "REJECTED"
)

// WithdrawalMethod описывает способ вывода средств.
type WithdrawalMethod string

const (
	WithdrawalMethodBank WithdrawalMethod = "bank"
	WithdrawalMethodPix  WithdrawalMethod = "pix"
	WithdrawalMethodUSDT WithdrawalMethod = "usdt"
)

// Withdrawal описывает заявку на вывод средств.
// Сумма списывается с доступного баланса в момент создания заявки.
type Withdrawal struct {
	ID        int64
	AccountID int64
	Amount    decimal.Decimal
	Method    WithdrawalMethod
	Details   string
	Status    WithdrawalStatus
	CreatedAt time.Time
}

// Level описывает инвестиционный уровень (справочные данные).
type Level struct {
	ID          int64
	Name        string
	Cost        decimal.Decimal
	DailyGain   decimal.Decimal
	MonthlyGain decimal.Decimal
	CycleDays   int
}

// LevelOwnership связывает счёт с купленным уровнем.
type LevelOwnership struct {
	ID          int64
	AccountID   int64
	LevelID     int64
	LevelName   string
	DailyGain   decimal.Decimal
	PurchasedAt time.Time
	IsActive    bool
}

// Task описывает выполненное ежедневное задание и начисленный доход.
type Task struct {
	ID          int64
	AccountID   int64
	Earnings    decimal.Decimal
	CompletedAt time.Time
}

// RoulettePlay описывает один розыгрыш рулетки.
type RoulettePlay struct {
	ID         int64
	AccountID  int64
	Prize      decimal.Decimal
	IsApproved bool
	PlayedAt   time.Time
}

// BankDetails содержит платёжные реквизиты пользователя для выводов.
type BankDetails struct {
	AccountID         int64
	BankName          string
	IBAN              string
	AccountHolderName string
}

// PlatformBankAccount содержит реквизиты платформы для приёма депозитов.
type PlatformBankAccount struct {
	ID                int64
	BankName          string
	IBAN              string
	AccountHolderName string
}

// PlatformSettings содержит управляемые администратором настройки платформы.
// Разрешаются один раз на запрос, без глобального состояния.
type PlatformSettings struct {
	SupportLink           string
	HistoryText           string
	DepositInstruction    string
	WithdrawalInstruction string
	RoulettePrizes        string
}

// Summary содержит сводку по счёту для главного экрана.
type Summary struct {
	AvailableBalance decimal.Decimal
	SubsidyBalance   decimal.Decimal
	ApprovedDeposits decimal.Decimal
	TodayIncome      decimal.Decimal
	TotalWithdrawn   decimal.Decimal
	ActiveLevel      *LevelOwnership
	RouletteSpins    int
}

// TeamTier содержит статистику одного яруса реферальной команды.
type TeamTier struct {
	Members   int
	Investors int
}

// Team содержит статистику реферальной команды по трём ярусам.
type Team struct {
	Tiers          [3]TeamTier
	SubsidyBalance decimal.Decimal
	InviteCode     string
}
