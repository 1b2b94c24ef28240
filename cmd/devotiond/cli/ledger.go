package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
	"github.com/Proton-105/devotion/internal/fixedpoint"
)

func newInitCmd(root *rootOptions) *cobra.Command {
	var (
		admin, stakeMint    string
		interval, maxCharge int64
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the ledger configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			adminKey, err := solana.PublicKeyFromBase58(admin)
			if err != nil {
				return fmt.Errorf("--admin: %w", err)
			}
			mintKey, err := solana.PublicKeyFromBase58(stakeMint)
			if err != nil {
				return fmt.Errorf("--stake-mint: %w", err)
			}

			a, err := bootstrap(cmd.Context(), root, bootstrapOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			cfg, err := a.engine.Initialize(cmd.Context(), devotion.InitializeParams{
				Admin:             adminKey,
				StakeMint:         mintKey,
				Interval:          interval,
				MaxDevotionCharge: maxCharge,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().StringVar(&admin, "admin", "", "admin public key")
	cmd.Flags().StringVar(&stakeMint, "stake-mint", "", "registered stake mint")
	cmd.Flags().Int64Var(&interval, "interval", 86_400, "seconds per devotion unit")
	cmd.Flags().Int64Var(&maxCharge, "max-devotion-charge", 15_552_000, "seconds after which accrual stops")
	_ = cmd.MarkFlagRequired("admin")
	_ = cmd.MarkFlagRequired("stake-mint")
	return cmd
}

func newMintCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Manage token mints",
	}

	var (
		address  string
		decimals uint8
		supply   uint64
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a mint, generating an address when none is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mint := domain.Mint{Decimals: decimals, Supply: supply}
			if address == "" {
				mint.Address = solana.NewWallet().PublicKey()
			} else {
				key, err := solana.PublicKeyFromBase58(address)
				if err != nil {
					return fmt.Errorf("--address: %w", err)
				}
				mint.Address = key
			}

			a, err := bootstrap(cmd.Context(), root, bootstrapOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.engine.RegisterMint(cmd.Context(), mint); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), mint)
		},
	}
	create.Flags().StringVar(&address, "address", "", "mint address")
	create.Flags().Uint8Var(&decimals, "decimals", 9, "mint decimals")
	create.Flags().Uint64Var(&supply, "supply", 0, "recorded supply in raw units")

	cmd.AddCommand(create)
	return cmd
}

func newFundCmd(root *rootOptions) *cobra.Command {
	var mint string

	cmd := &cobra.Command{
		Use:   "fund <owner> <amount>",
		Short: "Credit native balance, or tokens of --mint, to an owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("owner: %w", err)
			}

			a, err := bootstrap(cmd.Context(), root, bootstrapOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			if mint == "" {
				amount, err := strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("amount: %w", err)
				}
				balance, err := a.engine.Fund(cmd.Context(), owner, amount)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]uint64{"balance": balance})
			}

			mintKey, err := solana.PublicKeyFromBase58(mint)
			if err != nil {
				return fmt.Errorf("--mint: %w", err)
			}
			cfg, err := a.engine.Config(cmd.Context())
			if err != nil {
				return err
			}
			if !cfg.StakeMint.Equals(mintKey) {
				return fmt.Errorf("--mint %s is not the stake mint", mintKey)
			}
			amount, err := fixedpoint.Parse(args[1], cfg.Decimals)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			balance, err := a.engine.FundTokens(cmd.Context(), owner, mintKey, amount)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"balance":    strconv.FormatUint(balance, 10),
				"balance_ui": fixedpoint.Format(balance, cfg.Decimals),
			})
		},
	}
	cmd.Flags().StringVar(&mint, "mint", "", "credit tokens of the stake mint; amount is then in display units")
	return cmd
}

func newPositionCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "position <owner>",
		Short: "Show an owner's stake and live devotion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("owner: %w", err)
			}

			a, err := bootstrap(cmd.Context(), root, bootstrapOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			position, err := a.engine.Position(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), position)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
