// cmd_serve.go - Server-Start und Version
// Hauptfunktionen: RunServer, buildModel, versionHandler
package cmd

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/embedr/embedr/api"
	"github.com/embedr/embedr/checkpoint"
	"github.com/embedr/embedr/envconfig"
	"github.com/embedr/embedr/model"
	"github.com/embedr/embedr/server"
	"github.com/embedr/embedr/version"
	"github.com/embedr/embedr/vocab"
)

// checkpointFile ist der Dateiname des Modell-Checkpoints im
// Models-Verzeichnis
const checkpointFile = "icl.safetensors"

// defaultConfig ist die Modell-Konfiguration des Servers. Liegt ein
// Checkpoint im Models-Verzeichnis, ueberschreibt er die initialen
// Gewichte.
func defaultConfig() model.Config {
	sv := vocab.Default()
	return model.Config{
		DModel:      128,
		FFWDimRatio: 4,
		NHead:       8,
		NumLayers:   4,
		UseMetadata: true,
		EmbedderFactory: func() model.Embedder {
			return model.NewPooledEmbedder(rand.New(rand.NewPCG(0, 0)), sv.Size(), 64)
		},
	}
}

// buildModel konstruiert das Modell und laedt vorhandene Gewichte
func buildModel() (*model.ICLTransformer, error) {
	m, err := model.New(defaultConfig(), rand.New(rand.NewPCG(0, 0)))
	if err != nil {
		return nil, err
	}

	path := filepath.Join(envconfig.Models(), checkpointFile)
	if _, err := os.Stat(path); err == nil {
		if err := checkpoint.LoadInto(path, m.Tensors()); err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
		}
	}
	return m, nil
}

// RunServer - Startet den Embedr-Server
func RunServer(_ *cobra.Command, _ []string) error {
	m, err := buildModel()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln, m)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// versionHandler - Zeigt die Version an
func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Println("Warning: could not connect to a running Embedr instance")
	}

	if serverVersion != "" {
		fmt.Printf("embedr version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Printf("Warning: client version is %s\n", version.Version)
	}
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start Embedr",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}
