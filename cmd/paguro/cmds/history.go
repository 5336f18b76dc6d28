package cmds

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/go-go-golems/paguro/pkg/config"
	chatstore "github.com/go-go-golems/paguro/pkg/persistence/chatstore"
	"github.com/go-go-golems/paguro/pkg/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewHistoryCommand() *cobra.Command {
	var (
		limit  int
		since  time.Duration
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded conversations (needs --history-db)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var sinceMs int64
			if since > 0 {
				sinceMs = time.Now().Add(-since).UnixMilli()
			}
			records, err := store.ListConversations(cmd.Context(), limit, sinceMs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "CONVERSATION\tWIDGET\tSESSION\tENTRIES\tLAST ACTIVITY")
			for _, r := range records {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					r.ConvID, r.Widget, r.SessionID, r.Entries,
					time.UnixMilli(r.LastActivityMs).Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of conversations")
	cmd.Flags().DurationVar(&since, "since", 0, "Only conversations active within this duration")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	cmd.AddCommand(newHistoryShowCommand())
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation>",
		Short: "Print the transcript of a recorded conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			_, ok, err := store.GetConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.Errorf("no conversation %q", args[0])
			}
			entries, err := store.Entries(cmd.Context(), args[0], 0)
			if err != nil {
				return err
			}
			view := ui.NewLineView(cmd.OutOrStdout(), true)
			for _, e := range entries {
				view.Append(e)
			}
			return nil
		},
	}
}

func openHistory() (*chatstore.SQLiteTranscriptStore, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return openHistoryFor(s)
}

func openHistoryFor(s *config.Settings) (*chatstore.SQLiteTranscriptStore, error) {
	if s.HistoryDB == "" {
		return nil, errors.New("no history database configured, set --history-db or PAGURO_HISTORY_DB")
	}
	return chatstore.NewSQLiteTranscriptStoreForFile(s.HistoryDB)
}
