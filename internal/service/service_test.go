package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkoliv/investa-system/internal/config"
	"github.com/mkoliv/investa-system/internal/model"
	"github.com/mkoliv/investa-system/internal/repository"
)

type stubRepo struct {
	createAccountID    int64
	createAccountErrs  []error
	createAccountCalls int

	accountByInvite    *model.Account
	accountByInviteErr error

	accountByPhone    *model.Account
	accountByPhoneErr error

	accountByID    *model.Account
	accountByIDErr error

	hasWithdrawalToday bool

	requestWithdrawalRes *model.Withdrawal
	requestWithdrawalErr error

	completeTaskEarnings decimal.Decimal
	completeTaskErr      error
	completeTaskToday    time.Time
	completeTaskFallback decimal.Decimal

	spinRemaining int
	spinErr       error
	spinPrize     decimal.Decimal

	settings *model.PlatformSettings

	expireCalls atomic.Int32
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateAccount(ctx context.Context, phone, fullName string, passwordHash []byte, inviteCode string, referrerID *int64) (int64, error) {
	call := s.createAccountCalls
	s.createAccountCalls++
	if call < len(s.createAccountErrs) {
		return 0, s.createAccountErrs[call]
	}
	return s.createAccountID, nil
}

func (s *stubRepo) GetAccountByPhone(ctx context.Context, phone string) (*model.Account, error) {
	return s.accountByPhone, s.accountByPhoneErr
}

func (s *stubRepo) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	return s.accountByID, s.accountByIDErr
}

func (s *stubRepo) GetAccountByInviteCode(ctx context.Context, code string) (*model.Account, error) {
	return s.accountByInvite, s.accountByInviteErr
}

func (s *stubRepo) GetSummary(ctx context.Context, accountID int64, today time.Time) (*model.Summary, error) {
	return &model.Summary{}, nil
}

func (s *stubRepo) GetTeam(ctx context.Context, accountID int64) (*model.Team, error) {
	return &model.Team{}, nil
}

func (s *stubRepo) CreateDeposit(ctx context.Context, d *model.Deposit) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetDepositsByAccount(ctx context.Context, accountID int64) ([]model.Deposit, error) {
	return nil, nil
}

func (s *stubRepo) ApproveDeposit(ctx context.Context, depositID int64) (bool, error) {
	return true, nil
}

func (s *stubRepo) HasWithdrawalToday(ctx context.Context, accountID int64, today time.Time) (bool, error) {
	return s.hasWithdrawalToday, nil
}

func (s *stubRepo) RequestWithdrawal(ctx context.Context, accountID int64, amount decimal.Decimal, method model.WithdrawalMethod, details string, today time.Time) (*model.Withdrawal, error) {
	return s.requestWithdrawalRes, s.requestWithdrawalErr
}

func (s *stubRepo) GetWithdrawalsByAccount(ctx context.Context, accountID int64) ([]model.Withdrawal, error) {
	return nil, nil
}

func (s *stubRepo) ApproveWithdrawal(ctx context.Context, withdrawalID int64) (bool, error) {
	return true, nil
}

func (s *stubRepo) RejectWithdrawal(ctx context.Context, withdrawalID int64) (bool, error) {
	return true, nil
}

func (s *stubRepo) CompleteTask(ctx context.Context, accountID int64, today time.Time, fallback decimal.Decimal) (decimal.Decimal, error) {
	s.completeTaskToday = today
	s.completeTaskFallback = fallback
	return s.completeTaskEarnings, s.completeTaskErr
}

func (s *stubRepo) GetTasksByAccount(ctx context.Context, accountID int64) ([]model.Task, error) {
	return nil, nil
}

func (s *stubRepo) GetLevels(ctx context.Context) ([]model.Level, error) { return nil, nil }

func (s *stubRepo) GetOwnershipsByAccount(ctx context.Context, accountID int64, activeOnly bool) ([]model.LevelOwnership, error) {
	return nil, nil
}

func (s *stubRepo) PurchaseLevel(ctx context.Context, accountID, levelID int64) (*model.Level, error) {
	return nil, nil
}

func (s *stubRepo) ExpireCycles(ctx context.Context, asOf time.Time) (int64, error) {
	s.expireCalls.Add(1)
	return 0, nil
}

func (s *stubRepo) SpinRoulette(ctx context.Context, accountID int64, prize decimal.Decimal) (int, error) {
	s.spinPrize = prize
	return s.spinRemaining, s.spinErr
}

func (s *stubRepo) GetRecentWinners(ctx context.Context, limit int) ([]model.RoulettePlay, error) {
	return nil, nil
}

func (s *stubRepo) GrantSpins(ctx context.Context, accountID int64, count int) error { return nil }

func (s *stubRepo) UpsertBankDetails(ctx context.Context, d *model.BankDetails) error { return nil }

func (s *stubRepo) GetBankDetails(ctx context.Context, accountID int64) (*model.BankDetails, error) {
	return nil, nil
}

func (s *stubRepo) GetPlatformSettings(ctx context.Context) (*model.PlatformSettings, error) {
	if s.settings != nil {
		return s.settings, nil
	}
	return &model.PlatformSettings{}, nil
}

func (s *stubRepo) UpdatePlatformSettings(ctx context.Context, settings *model.PlatformSettings) error {
	return nil
}

func (s *stubRepo) GetPlatformBankAccounts(ctx context.Context) ([]model.PlatformBankAccount, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Location:        time.UTC,
		MinWithdrawal:   decimal.RequireFromString("2500"),
		WithdrawOpen:    9 * 60,
		WithdrawClose:   17 * 60,
		DefaultEarnings: decimal.RequireFromString("80.00"),
	}
}

func newTestService(repo Repository) *Service {
	svc := NewService(repo, testConfig())
	// полдень внутри окна вывода
	svc.now = func() time.Time {
		return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("244923000111", "pass")
	b := hashPassword("244923000111", "pass")
	c := hashPassword("244923000111", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestRegisterAccount_InvalidInviteCode(t *testing.T) {
	repo := &stubRepo{accountByInviteErr: repository.ErrInviteCodeNotFound}
	svc := newTestService(repo)

	_, err := svc.RegisterAccount(context.Background(), "244923000111", "", "pass", "NOCODE99")
	if !errors.Is(err, ErrInvalidInviteCode) {
		t.Fatalf("expected ErrInvalidInviteCode, got %v", err)
	}
}

func TestRegisterAccount_RetriesInviteCodeCollision(t *testing.T) {
	repo := &stubRepo{
		createAccountID:   7,
		createAccountErrs: []error{repository.ErrInviteCodeTaken, repository.ErrInviteCodeTaken},
	}
	svc := newTestService(repo)

	id, err := svc.RegisterAccount(context.Background(), "244923000111", "", "pass", "")
	if err != nil {
		t.Fatalf("RegisterAccount error: %v", err)
	}
	if id != 7 {
		t.Fatalf("id = %d, want 7", id)
	}
	if repo.createAccountCalls != 3 {
		t.Fatalf("create calls = %d, want 3", repo.createAccountCalls)
	}
}

func TestRegisterAccount_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createAccountErrs: []error{repository.ErrAccountExists}}
	svc := newTestService(repo)

	_, err := svc.RegisterAccount(context.Background(), "244923000111", "", "pass", "")
	if !errors.Is(err, repository.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestAuthenticateAccount_InvalidCredentials(t *testing.T) {
	hashed := hashPassword("244923000111", "correct")
	repo := &stubRepo{
		accountByPhone: &model.Account{
			ID:           1,
			PhoneNumber:  "244923000111",
			PasswordHash: hashed,
		},
	}
	svc := newTestService(repo)

	_, err := svc.AuthenticateAccount(context.Background(), "244923000111", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRequestWithdrawal_ValidationOrder(t *testing.T) {
	amount := decimal.RequireFromString("3000")

	tests := []struct {
		name    string
		method  model.WithdrawalMethod
		hasOne  bool
		clock   time.Time
		amount  decimal.Decimal
		wantErr error
	}{
		{
			name:    "method not selected",
			method:  "",
			clock:   time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
			amount:  amount,
			wantErr: ErrInvalidMethod,
		},
		{
			name:   "daily limit before window check",
			method: model.WithdrawalMethodBank,
			hasOne: true,
			// вне окна, но причиной отказа должен быть дневной лимит
			clock:   time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC),
			amount:  amount,
			wantErr: repository.ErrDailyWithdrawalExists,
		},
		{
			name:    "outside window",
			method:  model.WithdrawalMethodBank,
			clock:   time.Date(2024, 3, 15, 8, 59, 0, 0, time.UTC),
			amount:  amount,
			wantErr: ErrOutsideWindow,
		},
		{
			name:    "below minimum",
			method:  model.WithdrawalMethodPix,
			clock:   time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
			amount:  decimal.RequireFromString("2499.99"),
			wantErr: ErrBelowMinimum,
		},
		{
			name:    "insufficient balance from repository",
			method:  model.WithdrawalMethodUSDT,
			clock:   time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
			amount:  amount,
			wantErr: repository.ErrInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{
				hasWithdrawalToday:   tt.hasOne,
				requestWithdrawalErr: repository.ErrInsufficientBalance,
			}
			svc := newTestService(repo)
			svc.now = func() time.Time { return tt.clock }

			_, err := svc.RequestWithdrawal(context.Background(), 1, tt.amount, tt.method, "IBAN123")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithdrawWindow_InclusiveBounds(t *testing.T) {
	tests := []struct {
		name  string
		clock time.Time
		want  bool
	}{
		{name: "opening minute", clock: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC), want: true},
		{name: "closing minute", clock: time.Date(2024, 3, 15, 17, 0, 0, 0, time.UTC), want: true},
		{name: "minute before opening", clock: time.Date(2024, 3, 15, 8, 59, 0, 0, time.UTC), want: false},
		{name: "minute after closing", clock: time.Date(2024, 3, 15, 17, 1, 0, 0, time.UTC), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&stubRepo{})
			svc.now = func() time.Time { return tt.clock }

			if got := svc.withinWithdrawWindow(); got != tt.want {
				t.Fatalf("withinWithdrawWindow at %s = %v, want %v", tt.clock, got, tt.want)
			}
		})
	}
}

func TestCompleteTask_PassesDayAndFallback(t *testing.T) {
	repo := &stubRepo{completeTaskEarnings: decimal.RequireFromString("80.00")}
	svc := newTestService(repo)

	earnings, err := svc.CompleteTask(context.Background(), 1)
	if err != nil {
		t.Fatalf("CompleteTask error: %v", err)
	}
	if earnings.String() != "80" {
		t.Fatalf("earnings = %s, want 80", earnings)
	}

	wantDay := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !repo.completeTaskToday.Equal(wantDay) {
		t.Fatalf("today = %s, want %s", repo.completeTaskToday, wantDay)
	}
	if repo.completeTaskFallback.String() != "80" {
		t.Fatalf("fallback = %s, want 80", repo.completeTaskFallback)
	}
}

func TestSpinRoulette_DeterministicDraw(t *testing.T) {
	repo := &stubRepo{
		spinRemaining: 4,
		settings:      &model.PlatformSettings{RoulettePrizes: "0,500,1000,0,5000,200,0,10000"},
	}
	svc := newTestService(repo)
	svc.intn = func(n int) int { return n - 1 } // последний элемент пула: 10000

	prize, remaining, err := svc.SpinRoulette(context.Background(), 1)
	if err != nil {
		t.Fatalf("SpinRoulette error: %v", err)
	}
	if prize.String() != "10000" {
		t.Fatalf("prize = %s, want 10000", prize)
	}
	if remaining != 4 {
		t.Fatalf("remaining = %d, want 4", remaining)
	}
	if repo.spinPrize.String() != "10000" {
		t.Fatalf("repo received prize %s, want 10000", repo.spinPrize)
	}
}

func TestSpinRoulette_NoSpins(t *testing.T) {
	repo := &stubRepo{spinErr: repository.ErrNoSpins}
	svc := newTestService(repo)
	svc.intn = func(n int) int { return 0 }

	_, _, err := svc.SpinRoulette(context.Background(), 1)
	if !errors.Is(err, repository.ErrNoSpins) {
		t.Fatalf("expected ErrNoSpins, got %v", err)
	}
}

func TestAdminOperations_RequireStaff(t *testing.T) {
	repo := &stubRepo{accountByID: &model.Account{ID: 2, IsStaff: false}}
	svc := newTestService(repo)

	if _, err := svc.ApproveDeposit(context.Background(), 2, 1); !errors.Is(err, ErrNotStaff) {
		t.Fatalf("ApproveDeposit error = %v, want ErrNotStaff", err)
	}
	if _, err := svc.RejectWithdrawal(context.Background(), 2, 1); !errors.Is(err, ErrNotStaff) {
		t.Fatalf("RejectWithdrawal error = %v, want ErrNotStaff", err)
	}
	if err := svc.GrantSpins(context.Background(), 2, 3, 5); !errors.Is(err, ErrNotStaff) {
		t.Fatalf("GrantSpins error = %v, want ErrNotStaff", err)
	}
}

func TestGrantSpins_RejectsNonPositiveCount(t *testing.T) {
	repo := &stubRepo{accountByID: &model.Account{ID: 1, IsStaff: true}}
	svc := newTestService(repo)

	if err := svc.GrantSpins(context.Background(), 1, 3, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("error = %v, want ErrInvalidAmount", err)
	}
}

func TestStartCycleExpiry_StopsOnCancel(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo)

	ctx, cancel := context.WithCancel(context.Background())
	svc.StartCycleExpiry(ctx, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	if repo.expireCalls.Load() == 0 {
		t.Fatalf("expected at least one expire call")
	}
}
