package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/dte-sii/internal/bootstrap"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

var profileFlags struct {
	rut, name, activity, address, comuna, city string
	activityCode, resolutionNumber              int
	resolutionDate, senderRUT                   string
	certPath, certPasswordEnv                   string
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Datos del emisor",
}

var tenantSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Crea o reemplaza el perfil del emisor del tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		f := profileFlags
		rut, err := checkedRUT(f.rut)
		if err != nil {
			return fmt.Errorf("--rut: %w", err)
		}
		sender, err := checkedRUT(f.senderRUT)
		if err != nil {
			return fmt.Errorf("--sender-rut: %w", err)
		}
		resDate, err := time.Parse("2006-01-02", f.resolutionDate)
		if err != nil {
			return fmt.Errorf("--resolution-date (AAAA-MM-DD): %w", err)
		}
		p := &entity.TenantProfile{
			TenantID:         tenantID,
			RUT:              rut,
			LegalName:        f.name,
			Activity:         f.activity,
			ActivityCode:     f.activityCode,
			Address:          f.address,
			Comuna:           f.comuna,
			City:             f.city,
			ResolutionNumber: f.resolutionNumber,
			ResolutionDate:   resDate,
			SenderRUT:        sender,
			CertPath:         f.certPath,
			CertPasswordEnv:  f.certPasswordEnv,
		}
		return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
			if err := c.Profiles.Upsert(ctx, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "perfil de %s guardado (RUT %s)\n", tenantID, rut)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(tenantSetCmd)
	fl := tenantSetCmd.Flags()
	fl.StringVar(&profileFlags.rut, "rut", "", "RUT del emisor")
	fl.StringVar(&profileFlags.name, "name", "", "Razón social")
	fl.StringVar(&profileFlags.activity, "activity", "", "Giro")
	fl.IntVar(&profileFlags.activityCode, "activity-code", 0, "Código de actividad económica")
	fl.StringVar(&profileFlags.address, "address", "", "Dirección de origen")
	fl.StringVar(&profileFlags.comuna, "comuna", "", "Comuna de origen")
	fl.StringVar(&profileFlags.city, "city", "", "Ciudad de origen")
	fl.IntVar(&profileFlags.resolutionNumber, "resolution-number", 0, "Número de resolución SII (0 en certificación)")
	fl.StringVar(&profileFlags.resolutionDate, "resolution-date", "", "Fecha de resolución AAAA-MM-DD")
	fl.StringVar(&profileFlags.senderRUT, "sender-rut", "", "RUT del titular del certificado")
	fl.StringVar(&profileFlags.certPath, "cert", "", "Ruta al .p12 o .pem")
	fl.StringVar(&profileFlags.certPasswordEnv, "cert-password-env", "", "Variable de entorno con la contraseña")
	for _, name := range []string{"rut", "name", "activity", "resolution-date", "sender-rut", "cert"} {
		_ = tenantSetCmd.MarkFlagRequired(name)
	}
}

func checkedRUT(raw string) (string, error) {
	if err := sii.ValidateRUT(raw); err != nil {
		return "", err
	}
	return sii.NormalizeRUT(raw)
}
