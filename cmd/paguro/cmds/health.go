package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func NewHealthCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the chat backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			client, err := newClient(s)
			if err != nil {
				return err
			}

			h, err := client.Probe(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(h)
			}
			_, _ = fmt.Fprintf(out, "backend:  %s\n", client.BaseURL())
			_, _ = fmt.Fprintf(out, "status:   %s\n", h.Status)
			if h.Ollama != nil {
				_, _ = fmt.Fprintf(out, "ollama:   %s\n", h.Ollama.Status)
			}
			if h.Location != nil {
				_, _ = fmt.Fprintf(out, "location: %v\n", h.Location)
			}
			if h.Features != nil {
				_, _ = fmt.Fprintf(out, "features: %v\n", h.Features)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw health document")
	return cmd
}
