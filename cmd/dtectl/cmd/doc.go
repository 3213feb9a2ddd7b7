package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/dte-sii/internal/application/dto"
	"github.com/jhoicas/dte-sii/internal/bootstrap"
)

var (
	statusRefresh bool
	statusWait    time.Duration
	voidReason    string
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Documentos emitidos",
}

var docStatusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Muestra el documento; --refresh consulta al SII, --wait espera un estado terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
			switch {
			case statusWait > 0:
				if _, err := c.Pipeline.WaitForStatus(ctx, tenantID, args[0], statusWait); err != nil {
					return err
				}
			case statusRefresh:
				if _, err := c.Pipeline.RefreshStatus(ctx, tenantID, args[0]); err != nil {
					return err
				}
			}
			doc, err := c.Pipeline.Get(ctx, tenantID, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewDocumentResponse(doc))
		})
	},
}

var docResumeCmd = &cobra.Command{
	Use:   "resume [document-id]",
	Short: "Retoma un documento desde su último estado",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
			doc, err := c.Pipeline.Resume(ctx, tenantID, args[0])
			if doc != nil {
				_ = printJSON(cmd.OutOrStdout(), dto.NewDocumentResponse(doc))
			}
			return err
		})
	},
}

var docVoidCmd = &cobra.Command{
	Use:   "void [document-id]",
	Short: "Anula el folio de un documento que no llegó al SII",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
			doc, err := c.Pipeline.Void(ctx, tenantID, args[0], voidReason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewDocumentResponse(doc))
		})
	},
}

var docAttemptsCmd = &cobra.Command{
	Use:   "attempts [document-id]",
	Short: "Log de envíos y consultas del documento",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
			list, err := c.Pipeline.Attempts(ctx, tenantID, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewAttemptResponses(list))
		})
	},
}

func init() {
	rootCmd.AddCommand(docCmd)
	docCmd.AddCommand(docStatusCmd, docResumeCmd, docVoidCmd, docAttemptsCmd)
	docStatusCmd.Flags().BoolVar(&statusRefresh, "refresh", false, "Consultar el estado al SII antes de mostrar")
	docStatusCmd.Flags().DurationVar(&statusWait, "wait", 0, "Consultar cada intervalo hasta aceptado o rechazado (ej: 30s)")
	docVoidCmd.Flags().StringVar(&voidReason, "reason", "", "Motivo de la anulación")
	_ = docVoidCmd.MarkFlagRequired("reason")
}
