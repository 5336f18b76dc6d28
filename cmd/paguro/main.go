package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/paguro/cmd/paguro/cmds"
	"github.com/go-go-golems/paguro/pkg/config"
	"github.com/go-go-golems/paguro/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logCloser io.Closer

var rootCmd = &cobra.Command{
	Use:          "paguro",
	Short:        "paguro is the terminal chat widget of the Villa Celi booking assistant",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		if err := config.Init(viper.GetViper(), configFile); err != nil {
			return err
		}
		s, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		logCloser, err = logging.InitLogger(s.LoggingSettings())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func main() {
	logging.AddFlags(rootCmd)
	config.AddFlags(rootCmd)
	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))

	rootCmd.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewHealthCommand(),
		cmds.NewSessionCommand(),
		cmds.NewBookingURLCommand(),
		cmds.NewHistoryCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
