package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/config"
	"github.com/klend-harness/env"
	"github.com/klend-harness/harness"
	"github.com/klend-harness/klend"
	"github.com/klend-harness/program"
	"github.com/klend-harness/utils"
	"github.com/spf13/cobra"
)

var (
	owner        string
	manifestFile string
	tag          uint8
	id           uint8
	symbol       string
	amount       uint64
	outDir       string
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Print the program addresses of an owner's position",
	RunE: func(cmd *cobra.Command, args []string) error {
		market, err := loadMarket()
		if err != nil {
			return err
		}
		wallet, err := solana.PublicKeyFromBase58(owner)
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		pos, err := klend.NewSequencer(market, wallet).NewPosition(tag, id, solana.PublicKey{}, solana.PublicKey{})
		if err != nil {
			return err
		}
		metadata, err := klend.MetadataAddress(market.Program, wallet)
		if err != nil {
			return err
		}
		authority, err := klend.MarketAuthorityAddress(market.Program, market.Address)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "market authority: %s\n", authority)
		fmt.Fprintf(out, "user metadata:    %s\n", metadata)
		fmt.Fprintf(out, "position:         %s\n", pos.Address)
		for _, asset := range klend.Assets() {
			reserve, err := market.Reserve(asset)
			if err != nil || reserve.FarmState.IsZero() {
				continue
			}
			link, err := klend.FarmLinkAddress(market.FarmsProgram, reserve.FarmState, pos.Address)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s farm link:    %s\n", asset, link)
		}
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the instruction sequence of an operation without sending it",
}

var planBorrowCmd = &cobra.Command{
	Use:   "borrow",
	Short: "Plan a borrow against a position holding jitoSOL collateral",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, pos, err := planSequencer()
		if err != nil {
			return err
		}
		asset, err := klend.ParseAsset(symbol)
		if err != nil {
			return err
		}
		pos.State.Deposits = []klend.Asset{klend.AssetJitoSOL}
		seq, err := s.Borrow(pos, asset, solana.NewWallet().PublicKey(), amount)
		if err != nil {
			return err
		}
		printSteps(cmd.OutOrStdout(), seq.Steps, nil)
		return nil
	},
}

var planLeverageCmd = &cobra.Command{
	Use:   "leverage",
	Short: "Plan the leverage bundle for an empty position",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, pos, err := planSequencer()
		if err != nil {
			return err
		}
		b, err := s.Leverage(pos, harness.DefaultLeverage(), klend.LeverageAccounts{
			FlashHolding:        solana.NewWallet().PublicKey(),
			SwapIntermediate:    solana.NewWallet().PublicKey(),
			CollateralLiquidity: solana.NewWallet().PublicKey(),
			CollateralTokens:    solana.NewWallet().PublicKey(),
		})
		if err != nil {
			return err
		}
		printSteps(cmd.OutOrStdout(), b.Steps(), func(index int) string {
			stage, _ := b.StageOf(index)
			return stage
		})
		return nil
	},
}

var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "Write validator account files and print the validator arguments",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		admin, err := loadKey(cfg.AdminKey)
		if err != nil {
			return err
		}
		e := env.NewEnv(utils.NewLog("", utils.EnvLog))
		if err := e.Load(cfg.Manifest); err != nil {
			return err
		}
		validatorArgs, err := e.WriteValidatorAccounts(outDir, admin.PublicKey())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "solana-test-validator --reset %s\n", strings.Join(validatorArgs, " "))
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [scenario...]",
	Short: "Run scenarios against the configured validator",
	Long:  fmt.Sprintf("Run scenarios against the configured validator. Scenarios: %s.", strings.Join(scenarios, ", ")),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		runner, err := NewRunner(cmd.Context(), cfg, simulate)
		if err != nil {
			return err
		}
		defer runner.Stop()
		return runner.Run(args...)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{deriveCmd, planBorrowCmd, planLeverageCmd} {
		cmd.Flags().StringVar(&owner, "owner", "", "owner wallet address")
		cmd.Flags().StringVar(&manifestFile, "manifest", "", "fixture manifest with market overrides")
		cmd.Flags().Uint8Var(&tag, "tag", 0, "position tag")
		cmd.Flags().Uint8Var(&id, "id", 0, "position id")
		cmd.MarkFlagRequired("owner")
	}
	planBorrowCmd.Flags().StringVar(&symbol, "symbol", "SOL", "asset to borrow")
	planBorrowCmd.Flags().Uint64Var(&amount, "amount", 20000000000, "amount to borrow")
	fixturesCmd.Flags().StringVar(&outDir, "out", utils.AccountsPath, "directory for the validator account files")

	planCmd.AddCommand(planBorrowCmd, planLeverageCmd)
	rootCmd.AddCommand(deriveCmd, planCmd, fixturesCmd, runCmd)
}

func loadMarket() (*klend.Market, error) {
	if manifestFile == "" {
		return klend.MainMarket(), nil
	}
	e := env.NewEnv(nil)
	if err := e.Load(manifestFile); err != nil {
		return nil, err
	}
	return e.Manifest().Market()
}

func planSequencer() (*klend.Sequencer, *klend.Position, error) {
	market, err := loadMarket()
	if err != nil {
		return nil, nil, err
	}
	wallet, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, nil, fmt.Errorf("owner: %w", err)
	}
	s := klend.NewSequencer(market, wallet)
	pos, err := s.NewPosition(tag, id, solana.PublicKey{}, solana.PublicKey{})
	if err != nil {
		return nil, nil, err
	}
	return s, pos, nil
}

func flags(role program.Role) string {
	out := []byte("--")
	if role.IsWritable {
		out[0] = 'w'
	}
	if role.IsSigner {
		out[1] = 's'
	}
	return string(out)
}

func printSteps(w io.Writer, steps []*program.Instruction, stageOf func(int) string) {
	for i, step := range steps {
		header := fmt.Sprintf("#%d %s", i, step.Op)
		if stageOf != nil {
			header = fmt.Sprintf("%s [%s]", header, stageOf(i))
		}
		fmt.Fprintf(w, "%s -> %s\n", header, step.ProgramID())
		for _, role := range step.IsRoles {
			fmt.Fprintf(w, "    %s %-32s %s\n", flags(role), role.Name, role.PublicKey)
		}
	}
}
