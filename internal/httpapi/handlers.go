// Package httpapi is the local JSON API the companion UI talks to. It binds
// on loopback only; the PIN gate, not the network boundary, protects
// mutating routes.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/burnerhq/burnerd/internal/balances"
	"github.com/burnerhq/burnerd/internal/bus"
	"github.com/burnerhq/burnerd/internal/history"
	"github.com/burnerhq/burnerd/internal/pin"
	"github.com/burnerhq/burnerd/internal/registry"
	"github.com/burnerhq/burnerd/internal/transfer"
	"github.com/burnerhq/burnerd/internal/validator"
	"github.com/burnerhq/burnerd/internal/wallets"
)

// Engine drives transfers and bridge deposits; *transfer.Engine satisfies it.
type Engine interface {
	Transfer(ctx context.Context, req transfer.TransferRequest, onStep transfer.StepFunc) (*transfer.Result, error)
	Bridge(ctx context.Context, req transfer.BridgeRequest, onStep transfer.StepFunc) (*transfer.Result, error)
}

// BalanceCache reads and refreshes the balance snapshots.
type BalanceCache interface {
	GetLast(addr common.Address) ([]balances.Balance, bool)
	Refresh(addrs []common.Address)
}

// HistoryCache reads and refreshes the activity snapshots.
type HistoryCache interface {
	GetLast(addr common.Address) ([]history.Entry, bool)
	Refresh(addrs []common.Address)
}

type Handler struct {
	reg      *registry.Registry
	store    *wallets.Store
	engine   Engine
	balances BalanceCache
	history  HistoryCache
	events   *bus.Bus
	gate     *pin.Gate
	log      *zap.SugaredLogger
}

func NewHandler(reg *registry.Registry, store *wallets.Store, engine Engine, bal BalanceCache, hist HistoryCache, events *bus.Bus, gate *pin.Gate, log *zap.SugaredLogger) *Handler {
	return &Handler{
		reg:      reg,
		store:    store,
		engine:   engine,
		balances: bal,
		history:  hist,
		events:   events,
		gate:     gate,
		log:      log,
	}
}

// -------- DTOs for the local client API --------

type unlockReq struct {
	PIN string `json:"pin" binding:"required"`
}

type createWalletReq struct {
	Label  string `json:"label"  binding:"required"`
	Kind   string `json:"kind"   binding:"required"`
	Vendor string `json:"vendor"`
}

type renameWalletReq struct {
	Label string `json:"label" binding:"required"`
}

type transferReq struct {
	From    string `json:"from"    binding:"required"`
	To      string `json:"to"      binding:"required"`
	Token   string `json:"token"   binding:"required"`
	Amount  string `json:"amount"  binding:"required"`
	ChainID uint64 `json:"chainId" binding:"required"`
}

type bridgeReq struct {
	From               string `json:"from"               binding:"required"`
	To                 string `json:"to"`
	Token              string `json:"token"              binding:"required"`
	Amount             string `json:"amount"             binding:"required"`
	SourceChainID      uint64 `json:"sourceChainId"      binding:"required"`
	DestinationChainID uint64 `json:"destinationChainId" binding:"required"`
}

type refreshReq struct {
	Addresses []string `json:"addresses"`
}

type operationRes struct {
	UserOpHash string `json:"userOpHash"`
	TxHash     string `json:"txHash"`
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// POST /api/unlock
func (h *Handler) Unlock(c *gin.Context) {
	var req unlockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.gate.Verify(req.PIN); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unlocked": true})
}

// GET /api/wallets
func (h *Handler) ListWallets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"wallets": h.store.List()})
}

// POST /api/wallets
func (h *Handler) CreateWallet(c *gin.Context) {
	var req createWalletReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w, err := h.store.Create(c.Request.Context(), wallets.CreateRequest{
		Label:  req.Label,
		Kind:   validator.Kind(req.Kind),
		Vendor: validator.Vendor(req.Vendor),
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	// New wallets start with empty caches; warm them in the background.
	h.balances.Refresh([]common.Address{w.Address})

	c.JSON(http.StatusCreated, w)
}

// GET /api/wallets/:address
func (h *Handler) GetWallet(c *gin.Context) {
	addr, ok := h.walletAddress(c)
	if !ok {
		return
	}
	w, err := h.store.Get(addr)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, w)
}

// PATCH /api/wallets/:address
func (h *Handler) RenameWallet(c *gin.Context) {
	addr, ok := h.walletAddress(c)
	if !ok {
		return
	}
	var req renameWalletReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.Rename(addr, req.Label); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	w, err := h.store.Get(addr)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, w)
}

// DELETE /api/wallets/:address
func (h *Handler) BurnWallet(c *gin.Context) {
	addr, ok := h.walletAddress(c)
	if !ok {
		return
	}
	if err := h.store.Burn(addr); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"burned": addr.Hex()})
}

// GET /api/wallets/:address/qr
func (h *Handler) ReceiveQR(c *gin.Context) {
	addr, ok := h.walletAddress(c)
	if !ok {
		return
	}
	png, err := h.store.ReceiveQR(addr, 0)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// GET /api/wallets/:address/balances
func (h *Handler) WalletBalances(c *gin.Context) {
	addr, ok := h.walletAddress(c)
	if !ok {
		return
	}
	if _, err := h.store.Get(addr); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	rows, cached := h.balances.GetLast(addr)
	if !cached {
		// Nothing cached yet; kick off a fetch and report empty.
		h.balances.Refresh([]common.Address{addr})
	}

	// Zero positions stay in the cache for the burn check but are noise in
	// the API.
	out := make([]balances.Balance, 0, len(rows))
	for _, b := range rows {
		if b.Raw.Sign() != 0 {
			out = append(out, b)
		}
	}
	c.JSON(http.StatusOK, gin.H{"balances": out, "cached": cached})
}

// GET /api/wallets/:address/history
func (h *Handler) WalletHistory(c *gin.Context) {
	addr, ok := h.walletAddress(c)
	if !ok {
		return
	}
	if _, err := h.store.Get(addr); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	entries, cached := h.history.GetLast(addr)
	if !cached {
		h.history.Refresh([]common.Address{addr})
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "cached": cached})
}

// POST /api/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, ok := parseAddress(c, req.From)
	if !ok {
		return
	}
	to, ok := parseAddress(c, req.To)
	if !ok {
		return
	}
	w, err := h.store.Get(from)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	res, err := h.engine.Transfer(c.Request.Context(), transfer.TransferRequest{
		Wallet:  w,
		To:      to,
		Token:   req.Token,
		Amount:  req.Amount,
		ChainID: req.ChainID,
	}, h.logStep("transfer", from))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, operationRes{
		UserOpHash: res.UserOpHash.Hex(),
		TxHash:     res.TxHash.Hex(),
	})
}

// POST /api/bridge
func (h *Handler) Bridge(c *gin.Context) {
	var req bridgeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, ok := parseAddress(c, req.From)
	if !ok {
		return
	}
	var to common.Address
	if req.To != "" {
		if to, ok = parseAddress(c, req.To); !ok {
			return
		}
	}
	w, err := h.store.Get(from)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	res, err := h.engine.Bridge(c.Request.Context(), transfer.BridgeRequest{
		Wallet:             w,
		To:                 to,
		Token:              req.Token,
		Amount:             req.Amount,
		SourceChainID:      req.SourceChainID,
		DestinationChainID: req.DestinationChainID,
	}, h.logStep("bridge", from))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, operationRes{
		UserOpHash: res.UserOpHash.Hex(),
		TxHash:     res.TxHash.Hex(),
	})
}

// POST /api/refresh
func (h *Handler) Refresh(c *gin.Context) {
	// Body is optional: no addresses means refresh everything.
	var req refreshReq
	_ = c.ShouldBindJSON(&req)

	addrs := h.store.Addresses()
	if len(req.Addresses) > 0 {
		addrs = addrs[:0]
		for _, raw := range req.Addresses {
			if !common.IsHexAddress(raw) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address " + raw})
				return
			}
			addrs = append(addrs, common.HexToAddress(raw))
		}
	}

	h.balances.Refresh(addrs)
	h.history.Refresh(addrs)
	c.JSON(http.StatusAccepted, gin.H{"refreshing": len(addrs)})
}

// GET /api/events
//
// Server-sent events: one "refresh" event per completed balance or history
// pass, so the UI re-reads its views instead of polling.
func (h *Handler) Events(c *gin.Context) {
	sub, cancel := h.events.Subscribe()
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-sub:
			if !open {
				return false
			}
			addrs := make([]string, 0, len(ev.Addresses))
			for _, a := range ev.Addresses {
				addrs = append(addrs, a.Hex())
			}
			c.SSEvent("refresh", gin.H{
				"topic":     ev.Topic,
				"addresses": addrs,
				"failed":    ev.Failed,
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// GET /api/registry
func (h *Handler) Registry(c *gin.Context) {
	type chainInfo struct {
		ChainID uint64 `json:"chainId"`
		Name    string `json:"name"`
	}
	chains := make([]chainInfo, 0)
	for _, id := range h.reg.Chains() {
		ch, err := h.reg.Chain(id)
		if err != nil {
			continue
		}
		chains = append(chains, chainInfo{ChainID: ch.ChainID, Name: ch.Name})
	}
	c.JSON(http.StatusOK, gin.H{"chains": chains, "tokens": h.reg.Tokens()})
}

func (h *Handler) logStep(op string, addr common.Address) transfer.StepFunc {
	return func(s transfer.Step) {
		h.log.Infow(op+" progress", "address", addr.Hex(), "step", string(s))
	}
}

func (h *Handler) walletAddress(c *gin.Context) (common.Address, bool) {
	return parseAddress(c, c.Param("address"))
}

func parseAddress(c *gin.Context, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address " + raw})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// statusFor maps domain errors onto HTTP codes; everything unrecognized is a
// bad gateway, the error being upstream of us.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wallets.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallets.ErrWalletNotEmpty),
		errors.Is(err, pin.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, wallets.ErrEmptyLabel),
		errors.Is(err, registry.ErrUnsupportedChain),
		errors.Is(err, registry.ErrUnsupportedToken),
		errors.Is(err, registry.ErrInvalidAmount),
		errors.Is(err, transfer.ErrZeroAmount),
		errors.Is(err, transfer.ErrMissingRecipient),
		errors.Is(err, transfer.ErrSameChain),
		errors.Is(err, transfer.ErrAmountTooSmallForBridge),
		errors.Is(err, validator.ErrUnknownWalletKind):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
