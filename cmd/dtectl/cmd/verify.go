package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [archivo.xml]",
	Short: "Verifica todas las firmas XML-DSig de un DTE o EnvioDTE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("leer XML: %w", err)
		}
		if err := signer.NewDigitalSignatureService().Verify(data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: firmas válidas\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
