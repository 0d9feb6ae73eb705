package models

import (
	"fmt"
	"math/big"
)

// Pool represents a capital pool created through the on-ledger factory.
// Pools are created once and mutated by deposit/withdraw/whitelist/toggle
// operations; they are never deleted.
type Pool struct {
	Address         string      `db:"address" json:"address"`
	PoolID          uint64      `db:"pool_id" json:"pool_id"`
	Variant         PoolVariant `db:"variant" json:"variant"`
	MinCapital      *big.Int    `db:"-" json:"min_capital"`
	MaxCapital      *big.Int    `db:"-" json:"max_capital"`
	TargetCapital   *big.Int    `db:"-" json:"target_capital"`
	DepositsOpen    bool        `db:"deposits_open" json:"deposits_open"`
	WithdrawalsOpen bool        `db:"withdrawals_open" json:"withdrawals_open"`
}

// CreatePoolParams carries the variant-specific creation parameters.
// Private pools need an owner, deposit bounds and a whitelist seed; public
// pools only need capital bounds; mutual pools need the member contribution.
type CreatePoolParams struct {
	Variant            PoolVariant `json:"variant"`
	MinCapital         *big.Int    `json:"min_capital"`
	MaxCapital         *big.Int    `json:"max_capital"`
	TargetCapital      *big.Int    `json:"target_capital"`
	Owner              string      `json:"owner,omitempty"`
	MinDeposit         *big.Int    `json:"min_deposit,omitempty"`
	MaxDeposit         *big.Int    `json:"max_deposit,omitempty"`
	WhitelistSeed      []string    `json:"whitelist_seed,omitempty"`
	MemberContribution *big.Int    `json:"member_contribution,omitempty"`
}

// Validate enforces the variant-specific required fields and the
// target <= max capital invariant.
func (p *CreatePoolParams) Validate() error {
	if !IsValidPoolVariant(p.Variant) {
		return fmt.Errorf("invalid pool variant: %s", p.Variant)
	}
	if p.MinCapital == nil || p.MaxCapital == nil {
		return fmt.Errorf("capital bounds are required")
	}
	if p.MinCapital.Sign() < 0 || p.MaxCapital.Sign() <= 0 {
		return fmt.Errorf("capital bounds must be positive")
	}
	if p.MinCapital.Cmp(p.MaxCapital) > 0 {
		return fmt.Errorf("min capital %s exceeds max capital %s", p.MinCapital, p.MaxCapital)
	}
	if p.TargetCapital != nil && p.TargetCapital.Cmp(p.MaxCapital) > 0 {
		return fmt.Errorf("target capital %s exceeds max capital %s", p.TargetCapital, p.MaxCapital)
	}

	switch p.Variant {
	case PoolVariantPrivate:
		if p.Owner == "" {
			return fmt.Errorf("private pool requires an owner")
		}
		if p.MinDeposit == nil || p.MaxDeposit == nil {
			return fmt.Errorf("private pool requires min and max deposit")
		}
		if len(p.WhitelistSeed) == 0 {
			return fmt.Errorf("private pool requires a whitelist seed")
		}
	case PoolVariantMutual:
		if p.MemberContribution == nil || p.MemberContribution.Sign() <= 0 {
			return fmt.Errorf("mutual pool requires a positive member contribution")
		}
	}
	return nil
}

// DepositResult carries the values parsed from the Deposited event.
type DepositResult struct {
	PoolAddress  string   `json:"pool_address"`
	SharesMinted *big.Int `json:"shares_minted"`
	SharePrice   *big.Int `json:"share_price"`
	TxHash       string   `json:"tx_hash"`
}

// WithdrawResult carries the values parsed from the Withdrawn event.
type WithdrawResult struct {
	PoolAddress string   `json:"pool_address"`
	Proceeds    *big.Int `json:"proceeds"`
	TxHash      string   `json:"tx_hash"`
}
