package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/castcle/wallet-engine/internal/models"
	"github.com/castcle/wallet-engine/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletHandler exposes the transaction intake and balance surface. Creation
// always answers 202: the verdict arrives asynchronously and is read back via
// GET.
type WalletHandler struct {
	svc *service.TransactionService
}

func NewWalletHandler(svc *service.TransactionService) *WalletHandler {
	return &WalletHandler{svc: svc}
}

type endpointPayload struct {
	Value   string  `json:"value"`
	OwnerID *string `json:"ownerId,omitempty"`
	Address *string `json:"address,omitempty"`
	ChainID *string `json:"chainId,omitempty"`
}

type createTransferRequest struct {
	To   []endpointPayload `json:"to"`
	Note string            `json:"note,omitempty"`
}

// CreateTransfer handles POST /v1/wallet/transfers. The sender is always the
// authenticated user; recipients are on-platform personal wallets.
func (h *WalletHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if len(req.To) == 0 {
		RespondError(w, r, http.StatusBadRequest, "request/missing-recipients", "at least one recipient is required")
		return
	}

	to := make([]models.WalletEndpoint, 0, len(req.To))
	total := decimal.Zero
	for _, out := range req.To {
		value, err := domain.ParseAmount(out.Value)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-value", "invalid recipient value")
			return
		}
		if out.OwnerID == nil {
			RespondError(w, r, http.StatusBadRequest, "request/missing-owner", "recipient ownerId is required")
			return
		}
		ownerID, err := uuid.Parse(*out.OwnerID)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-owner", "invalid recipient ownerId")
			return
		}
		to = append(to, models.WalletEndpoint{
			Kind:    domain.WalletPersonal,
			Value:   value,
			OwnerID: &ownerID,
		})
		total = total.Add(value)
	}

	tx, err := h.svc.Create(r.Context(), service.CreateTransactionRequest{
		Type: domain.TxTypeSend,
		From: models.WalletEndpoint{Kind: domain.WalletPersonal, Value: total, OwnerID: &actorID},
		To:   to,
		Data: models.TransactionData{Note: req.Note},
	})
	if err != nil {
		zap.L().Error("create transfer failed", zap.Error(err), zap.String("owner_id", actorID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/transfer-create-failed", "Failed to create transfer")
		return
	}

	RespondJSON(w, http.StatusAccepted, tx)
}

type createWithdrawRequest struct {
	Value   string `json:"value"`
	Address string `json:"address"`
	ChainID string `json:"chainId,omitempty"`
	Note    string `json:"note,omitempty"`
}

// CreateWithdraw handles POST /v1/wallet/withdrawals. The full value is sent
// to one external address; the transaction settles through WITHDRAWING.
func (h *WalletHandler) CreateWithdraw(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req createWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	value, err := domain.ParseAmount(req.Value)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-value", "invalid withdrawal value")
		return
	}
	if req.Address == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-address", "address is required")
		return
	}

	out := models.WalletEndpoint{
		Kind:  domain.WalletExternalWithdraw,
		Value: value,
	}
	out.Address = &req.Address
	if req.ChainID != "" {
		out.ChainID = &req.ChainID
	}

	tx, err := h.svc.Create(r.Context(), service.CreateTransactionRequest{
		Type: domain.TxTypeWithdraw,
		From: models.WalletEndpoint{Kind: domain.WalletPersonal, Value: value, OwnerID: &actorID},
		To:   []models.WalletEndpoint{out},
		Data: models.TransactionData{Note: req.Note},
	})
	if err != nil {
		zap.L().Error("create withdrawal failed", zap.Error(err), zap.String("owner_id", actorID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/withdraw-create-failed", "Failed to create withdrawal")
		return
	}

	RespondJSON(w, http.StatusAccepted, tx)
}

// GetBalance handles GET /v1/wallet/{ownerId}/balance. Owners read their own
// balance; admins read anyone's.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	ownerID, err := uuid.Parse(chi.URLParam(r, "ownerId"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-owner", "Invalid owner ID")
		return
	}
	if !isAdmin && ownerID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), ownerID)
	if err != nil {
		zap.L().Error("get balance failed", zap.Error(err), zap.String("owner_id", ownerID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/balance-read-failed", "Failed to get balance")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"ownerId": ownerID.String(),
		"balance": balance.String(),
	})
}

// GetTransaction handles GET /v1/wallet/transactions/{id}.
func (h *WalletHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	txID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-transaction-id", "Invalid transaction ID")
		return
	}

	tx, err := h.svc.GetTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			RespondError(w, r, http.StatusNotFound, "wallet/transaction-not-found", "Transaction not found")
			return
		}
		zap.L().Error("get transaction failed", zap.Error(err), zap.String("transaction_id", txID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/transaction-read-failed", "Failed to get transaction")
		return
	}
	if !isAdmin && !transactionVisibleTo(*tx, actorID) {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	RespondJSON(w, http.StatusOK, tx)
}

func transactionVisibleTo(tx models.Transaction, actorID uuid.UUID) bool {
	if tx.From.OwnerID != nil && *tx.From.OwnerID == actorID {
		return true
	}
	for _, out := range tx.To {
		if out.OwnerID != nil && *out.OwnerID == actorID {
			return true
		}
	}
	return false
}
