package api

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
	"github.com/Proton-105/devotion/internal/fixedpoint"
)

// Amounts are rendered as decimal strings of raw units; *_ui fields carry the
// same value scaled by the mint decimals.

type accountsRequest struct {
	Devotion     solana.PublicKey `json:"devotion"`
	Vault        solana.PublicKey `json:"vault"`
	TokenAccount solana.PublicKey `json:"token_account"`
	StakeMint    solana.PublicKey `json:"stake_mint"`
}

func (a accountsRequest) toAccounts() devotion.Accounts {
	return devotion.Accounts{
		Devotion:     a.Devotion,
		Vault:        a.Vault,
		TokenAccount: a.TokenAccount,
		StakeMint:    a.StakeMint,
	}
}

type initializeRequest struct {
	StakeMint         solana.PublicKey `json:"stake_mint"`
	Interval          int64            `json:"interval" validate:"gt=0"`
	MaxDevotionCharge int64            `json:"max_devotion_charge" validate:"gt=0"`
}

type amountRequest struct {
	Amount   string          `json:"amount" validate:"omitempty,number"`
	AmountUI string          `json:"amount_ui" validate:"omitempty,numeric"`
	Accounts accountsRequest `json:"accounts"`
}

type heresyRequest struct {
	Accounts accountsRequest `json:"accounts"`
}

type configView struct {
	Admin             string `json:"admin"`
	StakeMint         string `json:"stake_mint"`
	Decimals          uint8  `json:"decimals"`
	Interval          int64  `json:"interval"`
	MaxDevotionCharge int64  `json:"max_devotion_charge"`
	Bump              uint8  `json:"bump"`
	CreatedAt         int64  `json:"created_at"`
}

func newConfigView(cfg *domain.Config) configView {
	return configView{
		Admin:             cfg.Admin.String(),
		StakeMint:         cfg.StakeMint.String(),
		Decimals:          cfg.Decimals,
		Interval:          cfg.Interval,
		MaxDevotionCharge: cfg.MaxDevotionCharge,
		Bump:              cfg.Bump,
		CreatedAt:         cfg.CreatedAt,
	}
}

type aggregateView struct {
	TotalStaked   string `json:"total_staked"`
	TotalStakedUI string `json:"total_staked_ui,omitempty"`
}

type positionView struct {
	Owner              string `json:"owner"`
	DevotionAccount    string `json:"devotion_account"`
	VaultAccount       string `json:"vault_account"`
	Amount             string `json:"amount"`
	AmountUI           string `json:"amount_ui"`
	VaultBalance       string `json:"vault_balance"`
	ResidualDevotion   string `json:"residual_devotion"`
	Devotion           string `json:"devotion"`
	MaxDevotion        string `json:"max_devotion"`
	LastStakeTimestamp int64  `json:"last_stake_timestamp"`
	EvaluatedAt        int64  `json:"evaluated_at"`
}

func newPositionView(p *devotion.Position) positionView {
	return positionView{
		Owner:              p.Owner.String(),
		DevotionAccount:    p.DevotionAccount.String(),
		VaultAccount:       p.VaultAccount.String(),
		Amount:             raw(p.Amount),
		AmountUI:           fixedpoint.Format(p.Amount, p.Decimals),
		VaultBalance:       raw(p.VaultBalance),
		ResidualDevotion:   raw(p.ResidualDevotion),
		Devotion:           raw(p.Devotion),
		MaxDevotion:        raw(p.MaxDevotion),
		LastStakeTimestamp: p.LastStakeTimestamp,
		EvaluatedAt:        p.EvaluatedAt,
	}
}

type scoreView struct {
	Owner    string `json:"owner"`
	Devotion string `json:"devotion"`
}

type devoteView struct {
	Owner              string `json:"owner"`
	Deposited          string `json:"deposited"`
	Amount             string `json:"amount"`
	ResidualDevotion   string `json:"residual_devotion"`
	LastStakeTimestamp int64  `json:"last_stake_timestamp"`
	Opened             bool   `json:"opened"`
}

func newDevoteView(r *devotion.DevoteReceipt) devoteView {
	return devoteView{
		Owner:              r.Owner.String(),
		Deposited:          raw(r.Deposited),
		Amount:             raw(r.Amount),
		ResidualDevotion:   raw(r.ResidualDevotion),
		LastStakeTimestamp: r.LastStakeTimestamp,
		Opened:             r.Opened,
	}
}

type waverView struct {
	Owner              string `json:"owner"`
	Withdrawn          string `json:"withdrawn"`
	Remaining          string `json:"remaining"`
	ForfeitedDevotion  string `json:"forfeited_devotion"`
	LastStakeTimestamp int64  `json:"last_stake_timestamp"`
}

func newWaverView(r *devotion.WaverReceipt) waverView {
	return waverView{
		Owner:              r.Owner.String(),
		Withdrawn:          raw(r.Withdrawn),
		Remaining:          raw(r.Remaining),
		ForfeitedDevotion:  raw(r.ForfeitedDevotion),
		LastStakeTimestamp: r.LastStakeTimestamp,
	}
}

type heresyView struct {
	Owner             string `json:"owner"`
	Returned          string `json:"returned"`
	Refunded          string `json:"refunded"`
	ForfeitedDevotion string `json:"forfeited_devotion"`
}

func newHeresyView(r *devotion.HeresyReceipt) heresyView {
	return heresyView{
		Owner:             r.Owner.String(),
		Returned:          raw(r.Returned),
		Refunded:          raw(r.Refunded),
		ForfeitedDevotion: raw(r.ForfeitedDevotion),
	}
}

func raw(v uint64) string {
	return strconv.FormatUint(v, 10)
}
