package cmds

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"
)

func NewSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or forget the stored conversation session",
	}
	cmd.AddCommand(newSessionShowCommand(), newSessionClearCommand())
	return cmd
}

func newSessionShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored session id",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			profile, err := s.WidgetProfile()
			if err != nil {
				return err
			}
			store, err := openBackendStore(s, profile)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			current := store.Load(cmd.Context())
			id := current.ID
			if !current.IsSet() {
				id = "(none)"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s backend, key %s): %s\n", profile.Name, s.SessionBackend, store.Key(), id)
			return nil
		},
	}
}

func newSessionClearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored session id so the next chat starts a new conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			profile, err := s.WidgetProfile()
			if err != nil {
				return err
			}

			if !yes {
				if !isatty.IsTerminal(os.Stdin.Fd()) {
					return errors.New("refusing to clear the session without a terminal, pass --yes")
				}
				ok, err := confirm(fmt.Sprintf("Clear the %s session? [y/N]", profile.Name))
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			store, err := openBackendStore(s, profile)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Clear(cmd.Context()); err != nil {
				return errors.Wrap(err, "could not clear session")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func confirm(query string) (bool, error) {
	ui := &input.UI{
		Writer: os.Stderr,
		Reader: os.Stdin,
	}
	answer, err := ui.Ask(query, &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch strings.ToLower(answer) {
			case "y", "yes", "n", "no", "":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}
	a := strings.ToLower(answer)
	return a == "y" || a == "yes", nil
}
