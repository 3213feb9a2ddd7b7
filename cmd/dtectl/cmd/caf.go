package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/dte-sii/internal/application/dto"
	"github.com/jhoicas/dte-sii/internal/bootstrap"
)

var cafCmd = &cobra.Command{
	Use:   "caf",
	Short: "Archivos de autorización de folios",
}

var cafImportCmd = &cobra.Command{
	Use:   "import [archivo.xml]",
	Short: "Registra un CAF descargado del SII",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("leer CAF: %w", err)
		}
		return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
			r, err := c.Allocator.ImportCAF(ctx, tenantID, raw)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewFolioRangeResponse(r))
		})
	},
}

var rangesCmd = &cobra.Command{
	Use:   "ranges",
	Short: "Rangos de folios del tenant",
}

var rangesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lista los rangos y los folios restantes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
			list, err := c.Allocator.ListRanges(ctx, tenantID)
			if err != nil {
				return err
			}
			out := make([]dto.FolioRangeResponse, 0, len(list))
			for _, r := range list {
				out = append(out, dto.NewFolioRangeResponse(r))
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

var rangesDeactivateCmd = &cobra.Command{
	Use:   "deactivate [range-id]",
	Short: "Saca un rango de la asignación (los folios ya usados no cambian)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
			return c.Allocator.Deactivate(ctx, tenantID, args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(cafCmd, rangesCmd)
	cafCmd.AddCommand(cafImportCmd)
	rangesCmd.AddCommand(rangesListCmd, rangesDeactivateCmd)
}
