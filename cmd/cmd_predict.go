// cmd_predict.go - Predict Command
// Hauptfunktionen: PredictHandler, parseVector, readStudyFile
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/embedr/embedr/api"
)

// PredictHandler - Bewertet Target-Punkte gegen einen Kontext
//
// Der Kontext kommt entweder aus einer Studien-Datei (--file, JSON im
// api.Study-Format) oder aus einer auf dem Server gespeicherten Studie
// (--study). Targets sind komma-separierte Feature-Vektoren.
func PredictHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	targets := make([][]float64, 0, len(args))
	for _, arg := range args {
		v, err := parseVector(arg)
		if err != nil {
			return err
		}
		targets = append(targets, v)
	}

	var study *api.Study
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		study, err = readStudyFile(file)
		if err != nil {
			return err
		}
	} else if name, _ := cmd.Flags().GetString("study"); name != "" {
		study, err = client.GetStudy(cmd.Context(), name)
		if err != nil {
			return err
		}
	} else {
		return fmt.Errorf("either --file or --study is required")
	}

	resp, err := client.Predict(cmd.Context(), &api.PredictRequest{
		Context:  study.Observations,
		Targets:  targets,
		Metadata: study.Metadata,
	})
	if err != nil {
		return err
	}

	var data [][]string
	for i, p := range resp.Predictions {
		data = append(data, []string{
			args[i],
			strconv.FormatFloat(p.Mean, 'g', 6, 64),
			strconv.FormatFloat(p.Std, 'g', 6, 64),
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"TARGET", "MEAN", "STD"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

// parseVector liest einen komma-separierten Feature-Vektor
func parseVector(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	v := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid feature vector %q: %w", s, err)
		}
		v[i] = f
	}
	return v, nil
}

// readStudyFile laedt eine Studie aus einer JSON-Datei
func readStudyFile(path string) (*api.Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var study api.Study
	if err := json.Unmarshal(data, &study); err != nil {
		return nil, fmt.Errorf("parse study file %s: %w", path, err)
	}
	return &study, nil
}

// newPredictCmd - Erstellt den predict Command
func newPredictCmd() *cobra.Command {
	predictCmd := &cobra.Command{
		Use:     "predict TARGET...",
		Short:   "Predict objective values for target points",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    PredictHandler,
	}

	predictCmd.Flags().String("file", "", "Study context as a JSON file")
	predictCmd.Flags().String("study", "", "Name of a stored study to use as context")

	return predictCmd
}
