// cmd_list.go - Studies und Sessions Commands
// Hauptfunktionen: StudiesHandler, SessionsHandler
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/embedr/embedr/api"
)

// StudiesHandler - Listet alle gespeicherten Studien auf
func StudiesHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.ListStudies(cmd.Context())
	if err != nil {
		return err
	}

	var data [][]string
	for _, s := range resp.Studies {
		if len(args) == 0 || strings.HasPrefix(strings.ToLower(s.Name), strings.ToLower(args[0])) {
			data = append(data, []string{s.Name, strconv.Itoa(len(s.Metadata))})
		}
	}

	renderTable([]string{"NAME", "METADATA DIMS"}, data)
	return nil
}

// SessionsHandler - Listet alle offenen Sessions auf
func SessionsHandler(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.ListSessions(cmd.Context())
	if err != nil {
		return err
	}

	var data [][]string
	for _, s := range resp.Sessions {
		data = append(data, []string{
			s.ID,
			fmt.Sprintf("%d/%d", s.Count, s.Capacity),
			s.Study,
		})
	}

	renderTable([]string{"ID", "CONTEXT", "STUDY"}, data)
	return nil
}

// renderTable gibt Daten im ueblichen Listen-Layout aus
func renderTable(header []string, data [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// newStudiesCmd - Erstellt den studies Command
func newStudiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "studies [PREFIX]",
		Short:   "List stored studies",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    StudiesHandler,
	}
}

// newSessionsCmd - Erstellt den sessions Command
func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "sessions",
		Short:   "List open inference sessions",
		Args:    cobra.ExactArgs(0),
		PreRunE: checkServerHeartbeat,
		RunE:    SessionsHandler,
	}
}
