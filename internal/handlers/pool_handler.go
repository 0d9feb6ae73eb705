package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"

	"settlement-service/internal/chain"
	"settlement-service/internal/contracts"
	"settlement-service/internal/models"

	"github.com/gofiber/fiber/v3"
)

// PoolHandler exposes the capital-pool lifecycle. Administrative operations
// (creation, whitelist, gates) go out under the platform identity; deposits
// and withdrawals move user funds and go out under the custody identity.
type PoolHandler struct {
	gateway  *contracts.PoolGateway
	platform chain.SigningIdentity
	custody  chain.SigningIdentity
}

func NewPoolHandler(gateway *contracts.PoolGateway, platform, custody chain.SigningIdentity) *PoolHandler {
	return &PoolHandler{
		gateway:  gateway,
		platform: platform,
		custody:  custody,
	}
}

func (h *PoolHandler) Register(app *fiber.App) {
	poolGroup := app.Group("settlement/protected/api/v1/pools")

	poolGroup.Post("/create", h.CreatePool)                          // POST /pools/create
	poolGroup.Post("/:address/deposit", h.Deposit)                   // POST /pools/:address/deposit
	poolGroup.Post("/:address/withdraw", h.Withdraw)                 // POST /pools/:address/withdraw
	poolGroup.Post("/:address/whitelist/add", h.AddDepositor)        // POST /pools/:address/whitelist/add
	poolGroup.Post("/:address/whitelist/remove", h.RemoveDepositor)  // POST /pools/:address/whitelist/remove
	poolGroup.Patch("/:address/deposits-open", h.SetDepositsOpen)       // PATCH /pools/:address/deposits-open
	poolGroup.Patch("/:address/withdrawals-open", h.SetWithdrawalsOpen) // PATCH /pools/:address/withdrawals-open
}

type createPoolRequest struct {
	Variant            string   `json:"variant"`
	MinCapital         string   `json:"min_capital"`
	MaxCapital         string   `json:"max_capital"`
	TargetCapital      string   `json:"target_capital"`
	Owner              string   `json:"owner"`
	MinDeposit         string   `json:"min_deposit"`
	MaxDeposit         string   `json:"max_deposit"`
	WhitelistSeed      []string `json:"whitelist_seed"`
	MemberContribution string   `json:"member_contribution"`
}

func parseAmount(name, value string, required bool) (*big.Int, error) {
	if value == "" {
		if required {
			return nil, fmt.Errorf("%s is required", name)
		}
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%s is not a valid integer amount", name)
	}
	return amount, nil
}

func (h *PoolHandler) CreatePool(c fiber.Ctx) error {
	var req createPoolRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_BODY", "Failed to parse request body"))
	}

	params := &models.CreatePoolParams{
		Variant:       models.PoolVariant(req.Variant),
		Owner:         req.Owner,
		WhitelistSeed: req.WhitelistSeed,
	}

	amounts := []struct {
		name     string
		value    string
		required bool
		target   **big.Int
	}{
		{"min_capital", req.MinCapital, true, &params.MinCapital},
		{"max_capital", req.MaxCapital, true, &params.MaxCapital},
		{"target_capital", req.TargetCapital, false, &params.TargetCapital},
		{"min_deposit", req.MinDeposit, false, &params.MinDeposit},
		{"max_deposit", req.MaxDeposit, false, &params.MaxDeposit},
		{"member_contribution", req.MemberContribution, false, &params.MemberContribution},
	}
	for _, a := range amounts {
		parsed, err := parseAmount(a.name, a.value, a.required)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(
				CreateErrorResponse("INVALID_AMOUNT", err.Error()))
		}
		*a.target = parsed
	}

	pool, err := h.gateway.CreatePool(c.Context(), params, h.platform)
	if err != nil {
		slog.Error("Failed to create pool", "variant", req.Variant, "error", err)
		return h.settlementError(c, err, "POOL_CREATION_FAILED")
	}

	return c.Status(http.StatusCreated).JSON(CreateSuccessResponse(pool))
}

type moveFundsRequest struct {
	Amount string `json:"amount"`
	MinOut string `json:"min_out"`
}

func (h *PoolHandler) Deposit(c fiber.Ctx) error {
	var req moveFundsRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_BODY", "Failed to parse request body"))
	}

	amount, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_AMOUNT", err.Error()))
	}
	minOut, err := parseAmount("min_out", req.MinOut, false)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_AMOUNT", err.Error()))
	}
	if minOut == nil {
		minOut = big.NewInt(0)
	}

	result, err := h.gateway.Deposit(c.Context(), c.Params("address"), amount, minOut, h.custody)
	if err != nil {
		slog.Error("Failed to deposit", "pool", c.Params("address"), "error", err)
		return h.settlementError(c, err, "DEPOSIT_FAILED")
	}

	return c.Status(http.StatusOK).JSON(CreateSuccessResponse(result))
}

func (h *PoolHandler) Withdraw(c fiber.Ctx) error {
	var req moveFundsRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_BODY", "Failed to parse request body"))
	}

	shares, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_AMOUNT", err.Error()))
	}
	minOut, err := parseAmount("min_out", req.MinOut, false)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_AMOUNT", err.Error()))
	}
	if minOut == nil {
		minOut = big.NewInt(0)
	}

	result, err := h.gateway.Withdraw(c.Context(), c.Params("address"), shares, minOut, h.custody)
	if err != nil {
		slog.Error("Failed to withdraw", "pool", c.Params("address"), "error", err)
		return h.settlementError(c, err, "WITHDRAWAL_FAILED")
	}

	return c.Status(http.StatusOK).JSON(CreateSuccessResponse(result))
}

type depositorRequest struct {
	Depositor string `json:"depositor"`
}

func (h *PoolHandler) AddDepositor(c fiber.Ctx) error {
	return h.changeWhitelist(c, h.gateway.AddDepositor)
}

func (h *PoolHandler) RemoveDepositor(c fiber.Ctx) error {
	return h.changeWhitelist(c, h.gateway.RemoveDepositor)
}

func (h *PoolHandler) changeWhitelist(c fiber.Ctx, op func(ctx context.Context, pool, depositor string, identity chain.SigningIdentity) error) error {
	var req depositorRequest
	if err := c.Bind().Body(&req); err != nil || req.Depositor == "" {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_BODY", "depositor address is required"))
	}

	if err := op(c.Context(), c.Params("address"), req.Depositor, h.platform); err != nil {
		slog.Error("Failed to change whitelist", "pool", c.Params("address"), "error", err)
		return h.settlementError(c, err, "WHITELIST_CHANGE_FAILED")
	}

	return c.Status(http.StatusOK).JSON(CreateSuccessResponse(map[string]any{
		"pool":      c.Params("address"),
		"depositor": req.Depositor,
	}))
}

type gateRequest struct {
	Open bool `json:"open"`
}

func (h *PoolHandler) SetDepositsOpen(c fiber.Ctx) error {
	return h.changeGate(c, h.gateway.SetDepositsOpen)
}

func (h *PoolHandler) SetWithdrawalsOpen(c fiber.Ctx) error {
	return h.changeGate(c, h.gateway.SetWithdrawalsOpen)
}

func (h *PoolHandler) changeGate(c fiber.Ctx, op func(ctx context.Context, pool string, open bool, identity chain.SigningIdentity) error) error {
	var req gateRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			CreateErrorResponse("INVALID_BODY", "Failed to parse request body"))
	}

	if err := op(c.Context(), c.Params("address"), req.Open, h.platform); err != nil {
		slog.Error("Failed to change pool gate", "pool", c.Params("address"), "error", err)
		return h.settlementError(c, err, "GATE_CHANGE_FAILED")
	}

	return c.Status(http.StatusOK).JSON(CreateSuccessResponse(map[string]any{
		"pool": c.Params("address"),
		"open": req.Open,
	}))
}

// settlementError maps the orchestration error taxonomy to HTTP statuses:
// pre-flight and ledger rejections are client-visible conflicts, ambiguous
// timeouts are 504s telling the caller to poll, everything else is a 500.
func (h *PoolHandler) settlementError(c fiber.Ctx, err error, code string) error {
	switch {
	case chain.IsSimulationRevert(err):
		return c.Status(http.StatusUnprocessableEntity).JSON(
			CreateErrorResponse("SIMULATION_REVERTED", err.Error()))
	case chain.IsContractRevert(err):
		return c.Status(http.StatusConflict).JSON(
			CreateErrorResponse("CONTRACT_REVERTED", err.Error()))
	case chain.IsConfirmationTimeout(err):
		return c.Status(http.StatusGatewayTimeout).JSON(
			CreateErrorResponse("CONFIRMATION_TIMEOUT", err.Error()))
	default:
		return c.Status(http.StatusInternalServerError).JSON(
			CreateErrorResponse(code, err.Error()))
	}
}
