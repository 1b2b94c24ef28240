// Package domain holds the ledger records persisted by every store backend.
package domain

import (
	"github.com/gagliardetto/solana-go"
)

// Config is the singleton ledger configuration written once by initialize.
type Config struct {
	Admin             solana.PublicKey `json:"admin"`
	StakeMint         solana.PublicKey `json:"stake_mint"`
	Decimals          uint8            `json:"decimals"`
	Interval          int64            `json:"interval"`
	MaxDevotionCharge int64            `json:"max_devotion_charge"`
	Bump              uint8            `json:"bump"`
	CreatedAt         int64            `json:"created_at"`
}

// Aggregate tracks the sum of all staked amounts.
type Aggregate struct {
	TotalStaked uint64 `json:"total_staked"`
}

// Devotion is the per-owner staking position.
type Devotion struct {
	Owner              solana.PublicKey `json:"owner"`
	Amount             uint64           `json:"amount"`
	ResidualDevotion   uint64           `json:"residual_devotion"`
	LastStakeTimestamp int64            `json:"last_stake_timestamp"`
	// Deposit is the storage deposit charged when the record and vault were opened.
	Deposit uint64 `json:"deposit"`
	Bump    uint8  `json:"bump"`
}

// Mint describes the fungible asset that can be staked.
type Mint struct {
	Address  solana.PublicKey `json:"address"`
	Decimals uint8            `json:"decimals"`
	Supply   uint64           `json:"supply"`
}
