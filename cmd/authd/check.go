package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth/internal/config"
	"github.com/MrEthical07/tenantauth/internal/security"
)

var errPostureFailed = errors.New("configuration has high severity findings")

func newCheckCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print its security posture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			report, err := posture(cfg)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			if report.Failed() {
				return errPostureFailed
			}
			return nil
		},
	}
}

func posture(cfg *config.Config) (security.Report, error) {
	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return security.Report{}, err
	}
	return security.BuildReport(engCfg, cfg.IsProd()), nil
}

func printReport(w io.Writer, r security.Report) {
	mode := "jwt_only"
	if r.StrictMode {
		mode = "strict"
	}
	fmt.Fprintf(w, "production:      %t\n", r.ProductionMode)
	fmt.Fprintf(w, "signing:         %s\n", r.SigningAlgorithm)
	fmt.Fprintf(w, "validation:      %s\n", mode)
	fmt.Fprintf(w, "access ttl:      %s\n", r.AccessTTL)
	fmt.Fprintf(w, "refresh ttl:     %s (idle %s, max %s)\n", r.RefreshTTL, r.IdleTimeout, r.MaxLifetime)
	fmt.Fprintf(w, "argon2id:        m=%d t=%d p=%d\n", r.Argon2.Memory, r.Argon2.Time, r.Argon2.Parallelism)
	fmt.Fprintf(w, "otp:             %d digits, %d attempts\n", r.OTPDigits, r.OTPMaxAttempts)
	fmt.Fprintf(w, "lockout:         %t\n", r.LockoutActive)
	fmt.Fprintf(w, "refresh limit:   %t\n", r.RefreshThrottled)
	fmt.Fprintf(w, "audit:           %t\n", r.AuditEnabled)
	for _, f := range r.Findings {
		fmt.Fprintf(w, "[%s] %s\n", f.Severity, f.Message)
	}
}

// logReport writes findings to log and returns errPostureFailed when the
// report fails.
func logReport(log *zap.Logger, r security.Report) error {
	for _, f := range r.Findings {
		switch f.Severity {
		case security.SeverityHigh:
			log.Error("security posture", zap.String("finding", f.Message))
		case security.SeverityWarn:
			log.Warn("security posture", zap.String("finding", f.Message))
		default:
			log.Info("security posture", zap.String("finding", f.Message))
		}
	}
	if r.Failed() {
		return errPostureFailed
	}
	return nil
}
