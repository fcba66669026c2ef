package settlement

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/bridge-settlement/pkg/app/errors"
	apphttp "github.com/chainsafe/bridge-settlement/pkg/app/http"
	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
	"github.com/chainsafe/bridge-settlement/pkg/validation"
)

const maxBodySize = 1 << 20

// OperatorTokenHeader carries the operator token on administrative requests.
const OperatorTokenHeader = "X-Operator-Token"

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// CompleteRequest reports the on-chain hashes of a settled transfer.
type CompleteRequest struct {
	SourceTxHash string `json:"sourceTxHash"`
	TargetTxHash string `json:"targetTxHash"`
}

// CancelRequest carries an optional cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// PoolRequest moves liquidity in or out of a pool.
type PoolRequest struct {
	SourceChain string          `json:"sourceChain"`
	TargetChain string          `json:"targetChain"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
}

// existsResponse is the conflict body of a duplicate submission.
type existsResponse struct {
	Error    string        `json:"error"`
	Code     int           `json:"code"`
	Transfer transfer.View `json:"transfer"`
}

// RegisterRoutes registers the settlement endpoints on r
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Post("/validate", apphttp.HandleError(h.validate))
	r.Get("/pools", apphttp.HandleError(h.pools))
	r.Get("/summary", apphttp.HandleError(h.summary))

	r.Route("/transfers", func(r chi.Router) {
		r.Post("/", apphttp.HandleError(h.submit))
		r.Get("/", apphttp.HandleError(h.list))
		r.Get("/{id}", apphttp.HandleError(h.get))
		r.Post("/{id}/signatures", apphttp.HandleError(h.addSignature))
		r.Post("/{id}/approve", apphttp.HandleError(h.approve))
		r.Post("/{id}/execute", apphttp.HandleError(h.execute))
		r.Post("/{id}/complete", apphttp.HandleError(h.complete))
		r.Post("/{id}/cancel", apphttp.HandleError(h.cancel))
	})
}

// RegisterOperatorRoutes registers the administrative endpoints on r. Every request must
// present token in the X-Operator-Token header; an empty token disables them.
func RegisterOperatorRoutes(r chi.Router, service Service, token string, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Group(func(r chi.Router) {
		r.Use(requireOperator(token))
		r.Post("/signers/{id}/revoke", apphttp.HandleError(h.revokeSigner))
		r.Post("/pools/deposit", apphttp.HandleError(h.deposit))
		r.Post("/pools/withdraw", apphttp.HandleError(h.withdraw))
	})
}

func requireOperator(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				apphttp.DefaultErrorHandler(w, apperrors.ForbiddenError(nil, "operator endpoints are disabled"))
				return
			}
			got := r.Header.Get(OperatorTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				apphttp.DefaultErrorHandler(w, apperrors.ForbiddenError(nil, "invalid operator token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *HTTP) validate(w http.ResponseWriter, r *http.Request) error {
	var req validation.Request
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	res, err := h.service.Validate(r.Context(), req)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if res.RateLimit.Limited {
		status = http.StatusTooManyRequests
	}
	h.writeJSON(w, status, res)
	return nil
}

func (h *HTTP) submit(w http.ResponseWriter, r *http.Request) error {
	var req transfer.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	t, err := h.service.Submit(r.Context(), req)
	if err != nil {
		var svcErr *apperrors.ServiceError
		if t != nil && errors.Is(err, bridge.ErrTransferExists) && errors.As(err, &svcErr) {
			h.writeJSON(w, http.StatusConflict, &existsResponse{
				Error:    svcErr.Message,
				Code:     http.StatusConflict,
				Transfer: t.View(),
			})
			return nil
		}
		return err
	}
	h.writeJSON(w, http.StatusCreated, t.View())
	return nil
}

func (h *HTTP) addSignature(w http.ResponseWriter, r *http.Request) error {
	var in transfer.SignatureInput
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	return h.respond(w, func() (*transfer.Transfer, error) {
		return h.service.AddSignature(r.Context(), chi.URLParam(r, "id"), in)
	})
}

func (h *HTTP) approve(w http.ResponseWriter, r *http.Request) error {
	return h.respond(w, func() (*transfer.Transfer, error) {
		return h.service.Approve(r.Context(), chi.URLParam(r, "id"))
	})
}

func (h *HTTP) execute(w http.ResponseWriter, r *http.Request) error {
	return h.respond(w, func() (*transfer.Transfer, error) {
		return h.service.Execute(r.Context(), chi.URLParam(r, "id"))
	})
}

func (h *HTTP) complete(w http.ResponseWriter, r *http.Request) error {
	var req CompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.SourceTxHash == "" || req.TargetTxHash == "" {
		return apperrors.BadRequestError(nil, "sourceTxHash and targetTxHash are required")
	}
	return h.respond(w, func() (*transfer.Transfer, error) {
		return h.service.Complete(r.Context(), chi.URLParam(r, "id"), req.SourceTxHash, req.TargetTxHash)
	})
}

func (h *HTTP) cancel(w http.ResponseWriter, r *http.Request) error {
	var req CancelRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
	}
	return h.respond(w, func() (*transfer.Transfer, error) {
		return h.service.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	})
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) error {
	return h.respond(w, func() (*transfer.Transfer, error) {
		return h.service.GetTransfer(r.Context(), chi.URLParam(r, "id"))
	})
}

func (h *HTTP) list(w http.ResponseWriter, r *http.Request) error {
	status := transfer.StatusUnknown
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, err := transfer.ParseStatus(s)
		if err != nil {
			return apperrors.BadRequestError(err, "invalid status filter")
		}
		status = parsed
	}
	transfers, err := h.service.ListTransfers(r.Context(), status)
	if err != nil {
		return err
	}
	views := make([]transfer.View, 0, len(transfers))
	for _, t := range transfers {
		views = append(views, t.View())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"transfers": views})
	return nil
}

func (h *HTTP) pools(w http.ResponseWriter, r *http.Request) error {
	pools, err := h.service.Pools(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"pools": pools})
	return nil
}

func (h *HTTP) summary(w http.ResponseWriter, r *http.Request) error {
	s, err := h.service.Summary(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, s)
	return nil
}

func (h *HTTP) revokeSigner(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := h.service.RevokeSigner(r.Context(), id); err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"signerId": id, "revoked": true})
	return nil
}

func (h *HTTP) deposit(w http.ResponseWriter, r *http.Request) error {
	key, amount, err := decodePoolRequest(r)
	if err != nil {
		return err
	}
	snap, err := h.service.Deposit(r.Context(), key, amount)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, snap)
	return nil
}

func (h *HTTP) withdraw(w http.ResponseWriter, r *http.Request) error {
	key, amount, err := decodePoolRequest(r)
	if err != nil {
		return err
	}
	snap, err := h.service.Withdraw(r.Context(), key, amount)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, snap)
	return nil
}

func decodePoolRequest(r *http.Request) (bridge.PoolKey, decimal.Decimal, error) {
	var req PoolRequest
	if err := decodeJSON(r, &req); err != nil {
		return bridge.PoolKey{}, decimal.Zero, err
	}
	if req.SourceChain == "" || req.TargetChain == "" || req.Asset == "" {
		return bridge.PoolKey{}, decimal.Zero, apperrors.BadRequestError(nil, "sourceChain, targetChain and asset are required")
	}
	return bridge.NewPoolKey(req.SourceChain, req.TargetChain, req.Asset), req.Amount, nil
}

// respond writes the transfer view on success. Unknown state is never written alongside an error.
func (h *HTTP) respond(w http.ResponseWriter, call func() (*transfer.Transfer, error)) error {
	t, err := call()
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, t.View())
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}
