package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mkoliv/investa-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware платформы.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/summary", h.GetSummary)
			r.Get("/team", h.GetTeam)

			r.Post("/deposits", h.CreateDeposit)
			r.Get("/deposits", h.GetDeposits)

			r.Post("/withdrawals", h.RequestWithdrawal)
			r.Get("/withdrawals", h.GetWithdrawals)

			r.Post("/task", h.CompleteTask)
			r.Get("/tasks", h.GetTasks)

			r.Get("/levels", h.GetLevels)
			r.Get("/levels/owned", h.GetOwnerships)
			r.Post("/levels/purchase", h.PurchaseLevel)

			r.Get("/roulette", h.GetRouletteInfo)
			r.Post("/roulette/spin", h.SpinRoulette)

			r.Get("/bank", h.GetBankDetails)
			r.Put("/bank", h.UpdateBankDetails)

			r.Get("/platform", h.GetPlatformInfo)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/deposits/{id}/approve", h.ApproveDeposit)
		r.Post("/withdrawals/{id}/approve", h.ApproveWithdrawal)
		r.Post("/withdrawals/{id}/reject", h.RejectWithdrawal)
		r.Post("/spins", h.GrantSpins)
		r.Put("/settings", h.UpdatePlatformSettings)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
