package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type statusResponse struct {
	Nick                 string          `json:"nick"`
	Channels             []string        `json:"channels"`
	PendingVerifications int             `json:"pending_verifications"`
	TotalBalance         decimal.Decimal `json:"total_balance"`
}

type balanceResponse struct {
	Account     string          `json:"account"`
	Confirmed   decimal.Decimal `json:"confirmed"`
	Unconfirmed decimal.Decimal `json:"unconfirmed"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	total, err := a.wallet.TotalBalance(r.Context())
	if err != nil {
		a.log.Error("status: failed to get total balance", zap.Error(err))
		http.Error(w, "wallet unavailable", http.StatusBadGateway)
		return
	}

	channels := a.config.Channels
	if channels == nil {
		channels = []string{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Nick:                 a.chat.Nick(),
		Channels:             channels,
		PendingVerifications: a.verifier.Pending(),
		TotalBalance:         total,
	})
}

func (a *API) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	account := strings.ToLower(mux.Vars(r)["account"])
	if account == "" {
		http.Error(w, "invalid account", http.StatusBadRequest)
		return
	}

	confirmed, err := a.wallet.GetBalance(r.Context(), account, a.config.Coin.MinConfirmations)
	if err != nil {
		a.log.Error("balance: failed to get confirmed balance", zap.String("account", account), zap.Error(err))
		http.Error(w, "wallet unavailable", http.StatusBadGateway)
		return
	}
	total, err := a.wallet.GetBalance(r.Context(), account, 0)
	if err != nil {
		a.log.Error("balance: failed to get unconfirmed balance", zap.String("account", account), zap.Error(err))
		http.Error(w, "wallet unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account:     account,
		Confirmed:   confirmed,
		Unconfirmed: total.Sub(confirmed),
	})
}
