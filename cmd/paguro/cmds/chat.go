package cmds

import (
	"os"
	"strings"

	"github.com/go-go-golems/paguro/pkg/booking"
	"github.com/go-go-golems/paguro/pkg/chatrunner"
	"github.com/go-go-golems/paguro/pkg/logging"
	chatstore "github.com/go-go-golems/paguro/pkg/persistence/chatstore"
	"github.com/go-go-golems/paguro/pkg/reply"
	"github.com/go-go-golems/paguro/pkg/widget"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewChatCommand() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Chat with Paguro",
		Long: "Open the chat widget. In a terminal this is the full screen widget, otherwise messages are read line by line.\n" +
			"With a message (or --mode once) a single message is sent and the reply printed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			if message == "" && len(args) > 0 {
				message = strings.Join(args, " ")
			}

			modeName := s.Mode
			if message != "" && strings.EqualFold(modeName, "auto") {
				modeName = string(chatrunner.RunModeOnce)
			}
			mode, err := chatrunner.ParseRunMode(modeName)
			if err != nil {
				return err
			}
			if (mode == chatrunner.RunModeChat || mode == chatrunner.RunModeInteractive) && s.LogFile == "" {
				// the widget owns the screen
				logging.Discard()
			}

			profile, err := s.WidgetProfile()
			if err != nil {
				return err
			}
			client, err := newClient(s)
			if err != nil {
				return err
			}
			store := openStore(s, profile)
			defer func() { _ = store.Close() }()

			redirector, err := booking.NewRedirector(s.BookingPageURL())
			if err != nil {
				return err
			}
			navigator := chatrunner.NewTerminalNavigator(
				chatrunner.WithOpenCommand(s.OpenCommand),
				chatrunner.WithCopyLink(s.CopyLink),
			)

			builder := chatrunner.NewChatBuilder().
				WithContext(cmd.Context()).
				WithChannel(client).
				WithStore(store).
				WithControllerOptions(
					widget.WithProfile(profile),
					widget.WithRedirector(redirector),
					widget.WithFormatter(reply.NewFormatter(reply.WithEscaping(s.EscapeHTML))),
				).
				WithNavigator(navigator).
				WithEventSettings(s.EventSettings()).
				WithMode(mode).
				WithMessage(message).
				WithInput(os.Stdin).
				WithOutputWriter(os.Stdout).
				WithPrompt(isatty.IsTerminal(os.Stdin.Fd()))

			if s.HistoryDB != "" {
				history, err := chatstore.NewSQLiteTranscriptStoreForFile(s.HistoryDB)
				if err != nil {
					return errors.Wrap(err, "could not open history database")
				}
				defer func() { _ = history.Close() }()
				convID := uuid.NewString()
				builder = builder.WithHistory(history, convID)
				log.Debug().Str("conv_id", convID).Str("db", s.HistoryDB).Msg("recording conversation")
			}

			cs, err := builder.Build()
			if err != nil {
				return err
			}
			return cs.Run()
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Send this message and print the reply")
	cmd.Flags().String("mode", "auto", "Run mode (auto, chat, repl, once, interactive)")
	cobra.CheckErr(viper.BindPFlag("mode", cmd.Flags().Lookup("mode")))

	return cmd
}
