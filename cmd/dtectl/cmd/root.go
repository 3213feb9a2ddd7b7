package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/dte-sii/internal/bootstrap"
	"github.com/jhoicas/dte-sii/pkg/config"
	"github.com/jhoicas/dte-sii/pkg/logger"
)

var (
	tenantID string
	verbose  bool

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dtectl",
	Short: "Operación del servicio de emisión de DTE",
	Long: `dtectl administra el servicio de emisión de documentos tributarios electrónicos.

Lee la misma configuración que la API (variables de entorno, .env o config.env).

Ejemplos:
  dtectl migrate up
  dtectl tenant set --rut 76086428-5 --name "EMPRESA SPA" ... --tenant t1
  dtectl caf import FoliosSII76086428533.xml --tenant t1
  dtectl ranges list --tenant t1
  dtectl doc status 8c0f... --refresh --tenant t1
  dtectl verify dte_firmado.xml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		log = logger.New(logger.Config{Env: "development", Level: level})
		return nil
	},
}

// Execute corre el comando raíz.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", os.Getenv("DTE_TENANT"), "Tenant sobre el que se opera (env: DTE_TENANT)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log en nivel debug")
}

// withContainer conecta las dependencias, corre fn y las cierra.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *bootstrap.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := bootstrap.New(ctx, cfg, log.Zerolog())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func requireTenant() error {
	if tenantID == "" {
		return fmt.Errorf("falta --tenant (o DTE_TENANT)")
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
