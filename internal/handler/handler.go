// Package handler содержит HTTP-обработчики API инвестиционной платформы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mkoliv/investa-system/internal/middleware"
	"github.com/mkoliv/investa-system/internal/model"
	"github.com/mkoliv/investa-system/internal/repository"
	"github.com/mkoliv/investa-system/internal/service"
	"github.com/mkoliv/investa-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterAccount(ctx context.Context, phone, fullName, password, invitedByCode string) (int64, error)
	AuthenticateAccount(ctx context.Context, phone, password string) (int64, error)
	GetSummary(ctx context.Context, accountID int64) (*model.Summary, error)
	GetTeam(ctx context.Context, accountID int64) (*model.Team, error)
	CreateDeposit(ctx context.Context, accountID int64, amount decimal.Decimal, method model.DepositMethod, payerName, proofRef string) (int64, error)
	GetDeposits(ctx context.Context, accountID int64) ([]model.Deposit, error)
	RequestWithdrawal(ctx context.Context, accountID int64, amount decimal.Decimal, method model.WithdrawalMethod, details string) (*model.Withdrawal, error)
	GetWithdrawals(ctx context.Context, accountID int64) ([]model.Withdrawal, error)
	CompleteTask(ctx context.Context, accountID int64) (decimal.Decimal, error)
	GetTasks(ctx context.Context, accountID int64) ([]model.Task, error)
	GetLevels(ctx context.Context) ([]model.Level, error)
	GetOwnerships(ctx context.Context, accountID int64) ([]model.LevelOwnership, error)
	PurchaseLevel(ctx context.Context, accountID, levelID int64) (*model.Level, error)
	GetRouletteInfo(ctx context.Context, accountID int64) (*service.RouletteInfo, error)
	SpinRoulette(ctx context.Context, accountID int64) (decimal.Decimal, int, error)
	GetBankDetails(ctx context.Context, accountID int64) (*model.BankDetails, error)
	UpdateBankDetails(ctx context.Context, d *model.BankDetails) error
	GetPlatformInfo(ctx context.Context) (*model.PlatformSettings, []model.PlatformBankAccount, error)

	ApproveDeposit(ctx context.Context, callerID, depositID int64) (bool, error)
	ApproveWithdrawal(ctx context.Context, callerID, withdrawalID int64) (bool, error)
	RejectWithdrawal(ctx context.Context, callerID, withdrawalID int64) (bool, error)
	GrantSpins(ctx context.Context, callerID, accountID int64, count int) error
	UpdatePlatformSettings(ctx context.Context, callerID int64, settings *model.PlatformSettings) error
}

// Handler реализует HTTP-обработчики API инвестиционной платформы.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type reasonResponse struct {
	Reason string `json:"reason"`
}

// Стабильные коды причин отказа, возвращаемые в JSON-ответе.
const (
	reasonInvalidMethod     = "invalid_method"
	reasonLimitReached      = "limit_reached"
	reasonOutsideWindow     = "outside_withdrawal_window"
	reasonBelowMinimum      = "below_minimum"
	reasonInsufficientFunds = "insufficient_balance"
	reasonDuplicateLevel    = "duplicate_level"
	reasonNoSpins           = "no_spins_available"
	reasonInvalidInvite     = "invalid_invite_code"
	reasonAlreadyApproved   = "already_approved"
)

// reasonForError сопоставляет ожидаемые отказы бизнес-логики
// HTTP-статусу и коду причины.
func reasonForError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, service.ErrInvalidMethod):
		return http.StatusBadRequest, reasonInvalidMethod, true
	case errors.Is(err, repository.ErrDailyWithdrawalExists),
		errors.Is(err, repository.ErrDailyTaskCompleted):
		return http.StatusConflict, reasonLimitReached, true
	case errors.Is(err, service.ErrOutsideWindow):
		return http.StatusUnprocessableEntity, reasonOutsideWindow, true
	case errors.Is(err, service.ErrBelowMinimum):
		return http.StatusUnprocessableEntity, reasonBelowMinimum, true
	case errors.Is(err, repository.ErrInsufficientBalance):
		return http.StatusPaymentRequired, reasonInsufficientFunds, true
	case errors.Is(err, repository.ErrLevelAlreadyOwned):
		return http.StatusConflict, reasonDuplicateLevel, true
	case errors.Is(err, repository.ErrNoSpins):
		return http.StatusConflict, reasonNoSpins, true
	case errors.Is(err, service.ErrInvalidInviteCode):
		return http.StatusUnprocessableEntity, reasonInvalidInvite, true
	}
	return 0, "", false
}

func (h *Handler) writeReason(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(reasonResponse{Reason: reason})
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type registerRequest struct {
	PhoneNumber string `json:"phone_number"`
	FullName    string `json:"full_name"`
	Password    string `json:"password"`
	InviteCode  string `json:"invite_code"`
}

// Register обрабатывает регистрацию нового счёта.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidPhoneNumber(req.PhoneNumber) || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	accountID, err := h.service.RegisterAccount(r.Context(), req.PhoneNumber, req.FullName, req.Password, req.InviteCode)
	if err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		if status, reason, ok := reasonForError(err); ok {
			h.writeReason(w, status, reason)
			return
		}
		h.logger.Error("register account error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, accountID)
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

// Login выполняет аутентификацию и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.PhoneNumber == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	accountID, err := h.service.AuthenticateAccount(r.Context(), req.PhoneNumber, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login account error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, accountID)
	w.WriteHeader(http.StatusOK)
}

type ownershipResponse struct {
	LevelID     int64           `json:"level_id"`
	LevelName   string          `json:"level_name"`
	DailyGain   decimal.Decimal `json:"daily_gain"`
	PurchasedAt string          `json:"purchased_at"`
	IsActive    bool            `json:"is_active"`
}

type summaryResponse struct {
	AvailableBalance decimal.Decimal    `json:"available_balance"`
	SubsidyBalance   decimal.Decimal    `json:"subsidy_balance"`
	ApprovedDeposits decimal.Decimal    `json:"approved_deposits"`
	TodayIncome      decimal.Decimal    `json:"today_income"`
	TotalWithdrawn   decimal.Decimal    `json:"total_withdrawn"`
	ActiveLevel      *ownershipResponse `json:"active_level,omitempty"`
	RouletteSpins    int                `json:"roulette_spins"`
}

// GetSummary возвращает сводку по счёту текущего пользователя.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	s, err := h.service.GetSummary(r.Context(), accountID)
	if err != nil {
		h.logger.Error("get summary error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := summaryResponse{
		AvailableBalance: s.AvailableBalance,
		SubsidyBalance:   s.SubsidyBalance,
		ApprovedDeposits: s.ApprovedDeposits,
		TodayIncome:      s.TodayIncome,
		TotalWithdrawn:   s.TotalWithdrawn,
		RouletteSpins:    s.RouletteSpins,
	}
	if s.ActiveLevel != nil {
		resp.ActiveLevel = newOwnershipResponse(*s.ActiveLevel)
	}

	h.writeJSON(w, resp)
}

func newOwnershipResponse(o model.LevelOwnership) *ownershipResponse {
	return &ownershipResponse{
		LevelID:     o.LevelID,
		LevelName:   o.LevelName,
		DailyGain:   o.DailyGain,
		PurchasedAt: o.PurchasedAt.Format(time.RFC3339),
		IsActive:    o.IsActive,
	}
}

type teamTierResponse struct {
	Members   int `json:"members"`
	Investors int `json:"investors"`
}

type teamResponse struct {
	Tiers          [3]teamTierResponse `json:"tiers"`
	SubsidyBalance decimal.Decimal     `json:"subsidy_balance"`
	InviteCode     string              `json:"invite_code"`
}

// GetTeam возвращает статистику реферальной команды текущего пользователя.
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	team, err := h.service.GetTeam(r.Context(), accountID)
	if err != nil {
		h.logger.Error("get team error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := teamResponse{
		SubsidyBalance: team.SubsidyBalance,
		InviteCode:     team.InviteCode,
	}
	for i, tier := range team.Tiers {
		resp.Tiers[i] = teamTierResponse{Members: tier.Members, Investors: tier.Investors}
	}

	h.writeJSON(w, resp)
}

type depositRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	PayerName string          `json:"payer_name"`
	ProofRef  string          `json:"proof_ref"`
}

type depositResponse struct {
	ID         int64           `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	PayerName  string          `json:"payer_name,omitempty"`
	IsApproved bool            `json:"is_approved"`
	CreatedAt  string          `json:"created_at"`
}

// CreateDeposit создаёт заявку на пополнение от текущего пользователя.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateDeposit(r.Context(), accountID, req.Amount, model.DepositMethod(req.Method), req.PayerName, req.ProofRef)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		if status, reason, ok := reasonForError(err); ok {
			h.writeReason(w, status, reason)
			return
		}
		h.logger.Error("create deposit error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]int64{"id": id})
}

// GetDeposits возвращает заявки на пополнение текущего пользователя.
func (h *Handler) GetDeposits(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	deposits, err := h.service.GetDeposits(r.Context(), accountID)
	if err != nil {
		h.logger.Error("get deposits error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(deposits) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]depositResponse, 0, len(deposits))
	for _, d := range deposits {
		resp = append(resp, depositResponse{
			ID:         d.ID,
			Amount:     d.Amount,
			Method:     string(d.Method),
			PayerName:  d.PayerName,
			IsApproved: d.IsApproved,
			CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, resp)
}

type withdrawalRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
	Details string          `json:"details"`
}

type withdrawalResponse struct {
	ID        int64           `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
}

// RequestWithdrawal создаёт заявку на вывод средств текущего пользователя.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wd, err := h.service.RequestWithdrawal(r.Context(), accountID, req.Amount, model.WithdrawalMethod(req.Method), req.Details)
	if err != nil {
		if status, reason, ok := reasonForError(err); ok {
			h.writeReason(w, status, reason)
			return
		}
		h.logger.Error("request withdrawal error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, withdrawalResponse{
		ID:        wd.ID,
		Amount:    wd.Amount,
		Method:    string(wd.Method),
		Status:    string(wd.Status),
		CreatedAt: wd.CreatedAt.Format(time.RFC3339),
	})
}

// GetWithdrawals возвращает историю выводов текущего пользователя.
func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	withdrawals, err := h.service.GetWithdrawals(r.Context(), accountID)
	if err != nil {
		h.logger.Error("get withdrawals error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(withdrawals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]withdrawalResponse, 0, len(withdrawals))
	for _, wd := range withdrawals {
		resp = append(resp, withdrawalResponse{
			ID:        wd.ID,
			Amount:    wd.Amount,
			Method:    string(wd.Method),
			Status:    string(wd.Status),
			CreatedAt: wd.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, resp)
}

// CompleteTask фиксирует выполнение ежедневного задания текущим пользователем.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	earnings, err := h.service.CompleteTask(r.Context(), accountID)
	if err != nil {
		if status, reason, ok := reasonForError(err); ok {
			h.writeReason(w, status, reason)
			return
		}
		h.logger.Error("complete task error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]decimal.Decimal{"earnings": earnings})
}

type taskResponse struct {
	Earnings    decimal.Decimal `json:"earnings"`
	CompletedAt string          `json:"completed_at"`
}

// GetTasks возвращает историю выполненных заданий текущего пользователя.
func (h *Handler) GetTasks(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	tasks, err := h.service.GetTasks(r.Context(), accountID)
	if err != nil {
		h.logger.Error("get tasks error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(tasks) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		resp = append(resp, taskResponse{
			Earnings:    task.Earnings,
			CompletedAt: task.CompletedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, resp)
}

type levelResponse struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Cost        decimal.Decimal `json:"cost"`
	DailyGain   decimal.Decimal `json:"daily_gain"`
	MonthlyGain decimal.Decimal `json:"monthly_gain"`
	CycleDays   int             `json:"cycle_days"`
}

// GetLevels возвращает каталог уровней.
func (h *Handler) GetLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.GetLevels(r.Context())
	if err != nil {
		h.logger.Error("get levels error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]levelResponse, 0, len(levels))
	for _, l := range levels {
		resp = append(resp, levelResponse{
			ID:          l.ID,
			Name:        l.Name,
			Cost:        l.Cost,
			DailyGain:   l.DailyGain,
			MonthlyGain: l.MonthlyGain,
			CycleDays:   l.CycleDays,
		})
	}

	h.writeJSON(w, resp)
}

// GetOwnerships возвращает купленные уровни текущего пользователя.
func (h *Handler) GetOwnerships(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	ownerships, err := h.service.GetOwnerships(r.Context(), accountID)
	if err != nil {
		h.logger.Error("get ownerships error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(ownerships) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]*ownershipResponse, 0, len(ownerships))
	for _, o := range ownerships {
		resp = append(resp, newOwnershipResponse(o))
	}

	h.writeJSON(w, resp)
}

type purchaseRequest struct {
	LevelID int64 `json:"level_id"`
}

// PurchaseLevel покупает уровень для текущего пользователя.
func (h *Handler) PurchaseLevel(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	level, err := h.service.PurchaseLevel(r.Context(), accountID, req.LevelID)
	if err != nil {
		if errors.Is(err, repository.ErrLevelNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		if status, reason, ok := reasonForError(err); ok {
			h.writeReason(w, status, reason)
			return
		}
		h.logger.Error("purchase level error", zap.Error(err), zap.Int64("accountID", accountID), zap.Int64("levelID", req.LevelID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, levelResponse{
		ID:          level.ID,
		Name:        level.Name,
		Cost:        level.Cost,
		DailyGain:   level.DailyGain,
		MonthlyGain: level.MonthlyGain,
		CycleDays:   level.CycleDays,
	})
}

type winnerResponse struct {
	Prize    decimal.Decimal `json:"prize"`
	PlayedAt string          `json:"played_at"`
}

type rouletteInfoResponse struct {
	Spins   int               `json:"spins"`
	Prizes  []decimal.Decimal `json:"prizes"`
	Winners []winnerResponse  `json:"winners"`
}

// GetRouletteInfo возвращает состояние рулетки для текущего пользователя.
func (h *Handler) GetRouletteInfo(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	info, err := h.service.GetRouletteInfo(r.Context(), accountID)
	if err != nil {
		h.logger.Error("get roulette info error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := rouletteInfoResponse{
		Spins:   info.Spins,
		Prizes:  info.Prizes,
		Winners: make([]winnerResponse, 0, len(info.Winners)),
	}
	for _, p := range info.Winners {
		resp.Winners = append(resp.Winners, winnerResponse{
			Prize:    p.Prize,
			PlayedAt: p.PlayedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, resp)
}

type spinResponse struct {
	Prize          decimal.Decimal `json:"prize"`
	RemainingSpins int             `json:"remaining_spins"`
}

// SpinRoulette разыгрывает приз для текущего пользователя.
func (h *Handler) SpinRoulette(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	prize, remaining, err := h.service.SpinRoulette(r.Context(), accountID)
	if err != nil {
		if status, reason, ok := reasonForError(err); ok {
			h.writeReason(w, status, reason)
			return
		}
		h.logger.Error("spin roulette error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, spinResponse{Prize: prize, RemainingSpins: remaining})
}

type bankDetailsPayload struct {
	BankName          string `json:"bank_name"`
	IBAN              string `json:"iban"`
	AccountHolderName string `json:"account_holder_name"`
}

// GetBankDetails возвращает платёжные реквизиты текущего пользователя.
func (h *Handler) GetBankDetails(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	details, err := h.service.GetBankDetails(r.Context(), accountID)
	if err != nil {
		h.logger.Error("get bank details error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if details == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, bankDetailsPayload{
		BankName:          details.BankName,
		IBAN:              details.IBAN,
		AccountHolderName: details.AccountHolderName,
	})
}

// UpdateBankDetails сохраняет платёжные реквизиты текущего пользователя.
func (h *Handler) UpdateBankDetails(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req bankDetailsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.BankName == "" || req.IBAN == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.UpdateBankDetails(r.Context(), &model.BankDetails{
		AccountID:         accountID,
		BankName:          req.BankName,
		IBAN:              req.IBAN,
		AccountHolderName: req.AccountHolderName,
	})
	if err != nil {
		h.logger.Error("update bank details error", zap.Error(err), zap.Int64("accountID", accountID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type platformBankResponse struct {
	BankName          string `json:"bank_name"`
	IBAN              string `json:"iban"`
	AccountHolderName string `json:"account_holder_name"`
}

type settingsPayload struct {
	SupportLink           string `json:"support_link"`
	HistoryText           string `json:"history_text"`
	DepositInstruction    string `json:"deposit_instruction"`
	WithdrawalInstruction string `json:"withdrawal_instruction"`
	RoulettePrizes        string `json:"roulette_prizes"`
}

type platformInfoResponse struct {
	Settings     settingsPayload        `json:"settings"`
	BankAccounts []platformBankResponse `json:"bank_accounts"`
}

// GetPlatformInfo возвращает настройки платформы и её банковские реквизиты.
func (h *Handler) GetPlatformInfo(w http.ResponseWriter, r *http.Request) {
	settings, banks, err := h.service.GetPlatformInfo(r.Context())
	if err != nil {
		h.logger.Error("get platform info error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := platformInfoResponse{
		Settings: settingsPayload{
			SupportLink:           settings.SupportLink,
			HistoryText:           settings.HistoryText,
			DepositInstruction:    settings.DepositInstruction,
			WithdrawalInstruction: settings.WithdrawalInstruction,
			RoulettePrizes:        settings.RoulettePrizes,
		},
		BankAccounts: make([]platformBankResponse, 0, len(banks)),
	}
	for _, b := range banks {
		resp.BankAccounts = append(resp.BankAccounts, platformBankResponse{
			BankName:          b.BankName,
			IBAN:              b.IBAN,
			AccountHolderName: b.AccountHolderName,
		})
	}

	h.writeJSON(w, resp)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// writeAdminError обрабатывает общие отказы административных операций.
func (h *Handler) writeAdminError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrNotStaff):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, repository.ErrDepositNotFound),
		errors.Is(err, repository.ErrWithdrawalNotFound),
		errors.Is(err, repository.ErrAccountNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	default:
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type transitionResponse struct {
	Changed bool   `json:"changed"`
	Reason  string `json:"reason,omitempty"`
}

// ApproveDeposit одобряет заявку на пополнение. Повторное одобрение
// отвечает успехом без повторного зачисления.
func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	depositID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	credited, err := h.service.ApproveDeposit(r.Context(), callerID, depositID)
	if err != nil {
		h.writeAdminError(w, err, "approve deposit error")
		return
	}

	resp := transitionResponse{Changed: credited}
	if !credited {
		resp.Reason = reasonAlreadyApproved
	}
	h.writeJSON(w, resp)
}

// ApproveWithdrawal одобряет заявку на вывод.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	withdrawalID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	changed, err := h.service.ApproveWithdrawal(r.Context(), callerID, withdrawalID)
	if err != nil {
		h.writeAdminError(w, err, "approve withdrawal error")
		return
	}

	resp := transitionResponse{Changed: changed}
	if !changed {
		resp.Reason = reasonAlreadyApproved
	}
	h.writeJSON(w, resp)
}

// RejectWithdrawal отклоняет заявку на вывод с возвратом средств.
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	withdrawalID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	changed, err := h.service.RejectWithdrawal(r.Context(), callerID, withdrawalID)
	if err != nil {
		h.writeAdminError(w, err, "reject withdrawal error")
		return
	}

	resp := transitionResponse{Changed: changed}
	if !changed {
		resp.Reason = reasonAlreadyApproved
	}
	h.writeJSON(w, resp)
}

type grantSpinsRequest struct {
	AccountID int64 `json:"account_id"`
	Count     int   `json:"count"`
}

// GrantSpins добавляет счёту вращения рулетки.
func (h *Handler) GrantSpins(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req grantSpinsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.GrantSpins(r.Context(), callerID, req.AccountID, req.Count); err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.writeAdminError(w, err, "grant spins error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// UpdatePlatformSettings сохраняет настройки платформы.
func (h *Handler) UpdatePlatformSettings(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.UpdatePlatformSettings(r.Context(), callerID, &model.PlatformSettings{
		SupportLink:           req.SupportLink,
		HistoryText:           req.HistoryText,
		DepositInstruction:    req.DepositInstruction,
		WithdrawalInstruction: req.WithdrawalInstruction,
		RoulettePrizes:        req.RoulettePrizes,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotStaff) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		if errors.Is(err, service.ErrInvalidPrizes) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.logger.Error("update platform settings error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
