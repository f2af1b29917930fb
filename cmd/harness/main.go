package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/klend-harness/utils"
	"github.com/spf13/cobra"
)

var (
	configFile string
	simulate   bool
)

var rootCmd = &cobra.Command{
	Use:   "harness",
	Short: "Drive the Kamino lending program against a local validator",
	Long: `harness composes Kamino lending instruction sequences and leverage
bundles, writes the validator fixtures they run against and submits the
scenarios to a validator.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", utils.ConfigFile, "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "simulate transactions instead of sending them")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGABRT)
	go shutdown(cancel, quit)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func shutdown(cancel context.CancelFunc, quit <-chan os.Signal) {
	osCall := <-quit
	fmt.Printf("System call: %v, harness is shutting down......\n", osCall)
	cancel()
}
