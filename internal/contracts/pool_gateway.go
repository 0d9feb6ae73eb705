package contracts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"settlement-service/internal/chain"
	"settlement-service/internal/models"
)

// ErrPoolEventMissing means the creation transaction confirmed but no
// PoolCreated event was found in the receipt. The pool may exist on-ledger
// with an address unknown to us; this is an inconsistency to investigate,
// not a transaction failure.
var ErrPoolEventMissing = errors.New("pool creation confirmed but no PoolCreated event in receipt")

var (
	eventPoolCreated = chain.NewEventABI("PoolCreated(uint256,address,uint8)")
	eventDeposited   = chain.NewEventABI("Deposited(address,uint256,uint256)")
	eventWithdrawn   = chain.NewEventABI("Withdrawn(address,uint256)")
)

// PoolGateway drives the capital-pool factory and pool contracts through the
// orchestration layer: simulate, dispatch serialized, confirm, parse typed
// events.
type PoolGateway struct {
	engine      *chain.Engine
	factoryAddr string
	tokenAddr   string
	gasLimit    uint64
}

func NewPoolGateway(engine *chain.Engine, factoryAddr, tokenAddr string, gasLimit uint64) *PoolGateway {
	return &PoolGateway{
		engine:      engine,
		factoryAddr: factoryAddr,
		tokenAddr:   tokenAddr,
		gasLimit:    gasLimit,
	}
}

func poolVariantCode(variant models.PoolVariant) uint64 {
	switch variant {
	case models.PoolVariantPublic:
		return 0
	case models.PoolVariantPrivate:
		return 1
	default:
		return 2
	}
}

func (g *PoolGateway) createCalldata(params *models.CreatePoolParams) ([]byte, error) {
	switch params.Variant {
	case models.PoolVariantPublic:
		return NewCall("createPublicPool(uint256,uint256,uint256)").
			Uint256(params.MinCapital).
			Uint256(params.MaxCapital).
			Uint256(params.TargetCapital).
			Build()
	case models.PoolVariantPrivate:
		return NewCall("createPrivatePool(address,uint256,uint256,uint256,uint256,uint256)").
			Address(params.Owner).
			Uint256(params.MinCapital).
			Uint256(params.MaxCapital).
			Uint256(params.TargetCapital).
			Uint256(params.MinDeposit).
			Uint256(params.MaxDeposit).
			Build()
	case models.PoolVariantMutual:
		return NewCall("createMutualPool(uint256,uint256,uint256,uint256)").
			Uint256(params.MinCapital).
			Uint256(params.MaxCapital).
			Uint256(params.TargetCapital).
			Uint256(params.MemberContribution).
			Build()
	default:
		return nil, fmt.Errorf("invalid pool variant: %s", params.Variant)
	}
}

// CreatePool creates a pool through the factory. For private pools the
// whitelist seed is applied with dependent addDepositor calls inside the same
// serialized section, so the seed shares the creation's nonce ordering.
func (g *PoolGateway) CreatePool(ctx context.Context, params *models.CreatePoolParams, identity chain.SigningIdentity) (*models.Pool, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool parameters: %w", err)
	}

	calldata, err := g.createCalldata(params)
	if err != nil {
		return nil, err
	}

	var pool *models.Pool
	err = g.engine.ExecuteSerialized(ctx, identity, func(txCtx *chain.TxContext) error {
		receipt, err := txCtx.Dispatch(ctx, chain.Call{To: g.factoryAddr, Data: calldata, GasLimit: g.gasLimit})
		if err != nil {
			return err
		}

		event, found := chain.FindEvent(receipt, eventPoolCreated)
		if !found {
			return fmt.Errorf("%w (tx %s)", ErrPoolEventMissing, receipt.TxHash)
		}
		poolID, err := event.TopicUint64(1)
		if err != nil {
			return fmt.Errorf("failed to decode PoolCreated: %w", err)
		}
		poolAddr, err := event.WordAddress(0)
		if err != nil {
			return fmt.Errorf("failed to decode PoolCreated: %w", err)
		}

		pool = &models.Pool{
			Address:       poolAddr,
			PoolID:        poolID,
			Variant:       params.Variant,
			MinCapital:    params.MinCapital,
			MaxCapital:    params.MaxCapital,
			TargetCapital: params.TargetCapital,
			DepositsOpen:  true,
		}

		// Seed the whitelist as dependent sub-transactions under the same
		// identity lock.
		for _, depositor := range params.WhitelistSeed {
			addCalldata, err := NewCall("addDepositor(address)").Address(depositor).Build()
			if err != nil {
				return err
			}
			if _, err := txCtx.Dispatch(ctx, chain.Call{To: poolAddr, Data: addCalldata, GasLimit: g.gasLimit}); err != nil {
				return fmt.Errorf("failed to seed whitelist with %s: %w", depositor, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Pool created",
		"pool_id", pool.PoolID,
		"address", pool.Address,
		"variant", pool.Variant)
	return pool, nil
}

// allowance reads the current capital-token allowance granted to the pool.
func (g *PoolGateway) allowance(ctx context.Context, txCtx *chain.TxContext, owner, pool string) (*big.Int, error) {
	calldata, err := NewCall("allowance(address,address)").Address(owner).Address(pool).Build()
	if err != nil {
		return nil, err
	}
	result, err := txCtx.CallView(ctx, chain.Call{To: g.tokenAddr, Data: calldata})
	if err != nil {
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

// Deposit runs the two-phase deposit inside one serialized section: check the
// current allowance, approve exactly the shortfall's target amount if it is
// insufficient, wait for the approval, then deposit. If the deposit step
// fails after the approval confirmed, re-running the whole operation is safe:
// the allowance re-check skips the redundant approval.
func (g *PoolGateway) Deposit(ctx context.Context, pool string, amount, minOut *big.Int, identity chain.SigningIdentity) (*models.DepositResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive")
	}

	var result *models.DepositResult
	err := g.engine.ExecuteSerialized(ctx, identity, func(txCtx *chain.TxContext) error {
		current, err := g.allowance(ctx, txCtx, identity.Address, pool)
		if err != nil {
			return err
		}

		if current.Cmp(amount) < 0 {
			approveData, err := NewCall("approve(address,uint256)").Address(pool).Uint256(amount).Build()
			if err != nil {
				return err
			}
			if _, err := txCtx.Dispatch(ctx, chain.Call{To: g.tokenAddr, Data: approveData, GasLimit: g.gasLimit}); err != nil {
				return fmt.Errorf("approval failed: %w", err)
			}
		}

		depositData, err := NewCall("deposit(uint256,uint256)").Uint256(amount).Uint256(minOut).Build()
		if err != nil {
			return err
		}
		receipt, err := txCtx.Dispatch(ctx, chain.Call{To: pool, Data: depositData, GasLimit: g.gasLimit})
		if err != nil {
			return err
		}

		event, found := chain.FindEvent(receipt, eventDeposited)
		if !found {
			return fmt.Errorf("deposit confirmed but no Deposited event in receipt %s", receipt.TxHash)
		}
		shares, err := event.WordBigInt(0)
		if err != nil {
			return fmt.Errorf("failed to decode Deposited: %w", err)
		}
		price, err := event.WordBigInt(1)
		if err != nil {
			return fmt.Errorf("failed to decode Deposited: %w", err)
		}

		result = &models.DepositResult{
			PoolAddress:  pool,
			SharesMinted: shares,
			SharePrice:   price,
			TxHash:       receipt.TxHash,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Withdraw redeems pool shares and parses the proceeds from the Withdrawn event.
func (g *PoolGateway) Withdraw(ctx context.Context, pool string, shareAmount, minOut *big.Int, identity chain.SigningIdentity) (*models.WithdrawResult, error) {
	if shareAmount == nil || shareAmount.Sign() <= 0 {
		return nil, fmt.Errorf("withdrawal share amount must be positive")
	}

	calldata, err := NewCall("withdraw(uint256,uint256)").Uint256(shareAmount).Uint256(minOut).Build()
	if err != nil {
		return nil, err
	}

	receipt, err := g.engine.Execute(ctx, identity, chain.Call{To: pool, Data: calldata, GasLimit: g.gasLimit})
	if err != nil {
		return nil, err
	}

	event, found := chain.FindEvent(receipt, eventWithdrawn)
	if !found {
		return nil, fmt.Errorf("withdrawal confirmed but no Withdrawn event in receipt %s", receipt.TxHash)
	}
	proceeds, err := event.WordBigInt(0)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Withdrawn: %w", err)
	}

	return &models.WithdrawResult{
		PoolAddress: pool,
		Proceeds:    proceeds,
		TxHash:      receipt.TxHash,
	}, nil
}

// AddDepositor whitelists an address on a private pool.
func (g *PoolGateway) AddDepositor(ctx context.Context, pool, depositor string, identity chain.SigningIdentity) error {
	calldata, err := NewCall("addDepositor(address)").Address(depositor).Build()
	if err != nil {
		return err
	}
	return g.toggle(ctx, pool, calldata, identity)
}

// RemoveDepositor removes an address from a private pool's whitelist.
func (g *PoolGateway) RemoveDepositor(ctx context.Context, pool, depositor string, identity chain.SigningIdentity) error {
	calldata, err := NewCall("removeDepositor(address)").Address(depositor).Build()
	if err != nil {
		return err
	}
	return g.toggle(ctx, pool, calldata, identity)
}

// SetDepositsOpen toggles the pool's deposit gate.
func (g *PoolGateway) SetDepositsOpen(ctx context.Context, pool string, open bool, identity chain.SigningIdentity) error {
	calldata, err := NewCall("setDepositsOpen(bool)").Bool(open).Build()
	if err != nil {
		return err
	}
	return g.toggle(ctx, pool, calldata, identity)
}

// SetWithdrawalsOpen toggles the pool's withdrawal gate.
func (g *PoolGateway) SetWithdrawalsOpen(ctx context.Context, pool string, open bool, identity chain.SigningIdentity) error {
	calldata, err := NewCall("setWithdrawalsOpen(bool)").Bool(open).Build()
	if err != nil {
		return err
	}
	return g.toggle(ctx, pool, calldata, identity)
}

// toggle runs an authorized state-change call; success or failure is all the
// caller needs, no event parsing.
func (g *PoolGateway) toggle(ctx context.Context, pool string, calldata []byte, identity chain.SigningIdentity) error {
	_, err := g.engine.Execute(ctx, identity, chain.Call{To: pool, Data: calldata, GasLimit: g.gasLimit})
	return err
}
