package cmd

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
)

var (
	certPasswordEnv string
	certKeyPath     string
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Certificados de firma",
}

// certCheckCmd diagnóstico del .p12/.pem: archivo, contraseña, vigencia, llave y cadena.
var certCheckCmd = &cobra.Command{
	Use:   "check [certificado.p12|.pem]",
	Short: "Diagnostica un certificado antes de registrarlo en el tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		path := args[0]
		fmt.Fprintf(out, "📂 Leyendo: %s\n", path)

		var cert tls.Certificate
		var err error
		switch strings.ToLower(filepath.Ext(path)) {
		case ".p12", ".pfx":
			password := ""
			if certPasswordEnv != "" {
				password = os.Getenv(certPasswordEnv)
			}
			cert, err = signer.LoadFromP12(path, password)
		default:
			cert, err = signer.LoadFromPEM(path, certKeyPath)
		}
		if err != nil {
			return fmt.Errorf("❌ archivo o contraseña: %w", err)
		}

		var opts []signer.Option
		if cfg.SII.TrustRoots != "" {
			roots, err := signer.LoadTrustRoots(cfg.SII.TrustRoots)
			if err != nil {
				return err
			}
			opts = append(opts, signer.WithRoots(roots))
		} else {
			fmt.Fprintln(out, "⚠️  SII_TRUST_ROOTS no definido: no se valida la cadena")
		}
		leaf, err := signer.NewDigitalSignatureService(opts...).CheckCertificate(cert)
		if err != nil {
			return fmt.Errorf("❌ %w", err)
		}

		fmt.Fprintf(out, "✅ Sujeto:      %s\n", leaf.Subject.CommonName)
		fmt.Fprintf(out, "   Emisor:      %s\n", leaf.Issuer.CommonName)
		fmt.Fprintf(out, "   Vigencia:    %s → %s (%d días restantes)\n",
			leaf.NotBefore.Format("2006-01-02"), leaf.NotAfter.Format("2006-01-02"),
			int(time.Until(leaf.NotAfter).Hours()/24))
		fmt.Fprintf(out, "   Huella SHA1: %s\n", signer.Fingerprint(leaf))
		fmt.Fprintf(out, "   Cadena:      %d certificado(s)\n", len(cert.Certificate))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(certCmd)
	certCmd.AddCommand(certCheckCmd)
	certCheckCmd.Flags().StringVar(&certPasswordEnv, "password-env", "", "Variable de entorno con la contraseña del .p12")
	certCheckCmd.Flags().StringVar(&certKeyPath, "key", "", "Llave PEM separada (si no viene en el mismo archivo)")
}
