package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/adapters/framework"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/config"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/core/services"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/secfile"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a payload proxy against the pilot proxy",
	Long: `Verify a payload proxy against the pilot proxy.

The pilot proxy is read from the file named by X509_USER_PROXY. The payload
proxy is read from --payload as PEM. On success the payload subject DN and
any matched FQANs are printed; a non-zero exit reports the denial reason.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().String("payload", "", "path to the payload proxy PEM file (required)")
	verifyCmd.Flags().StringSlice("fqan", nil, "FQAN attribute of the payload, repeatable")
	verifyCmd.Flags().String("pattern", "", "glob at least one FQAN must match (overrides config)")
	verifyCmd.Flags().String("lock", "", "lock type: none, range, wholefile, both (overrides config)")
	_ = verifyCmd.MarkFlagRequired("payload")
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if pattern, _ := cmd.Flags().GetString("pattern"); pattern != "" {
		cfg.FQANPattern = pattern
	}
	if lock, _ := cmd.Flags().GetString("lock"); lock != "" {
		cfg.LockPolicy = lock
	}
	policy, err := cfg.ParsedLockPolicy()
	if err != nil {
		return err
	}

	payloadPath, _ := cmd.Flags().GetString("payload")
	payloadPEM, err := os.ReadFile(payloadPath)
	if err != nil {
		return fmt.Errorf("reading payload proxy: %w", err)
	}
	fqans, _ := cmd.Flags().GetStringSlice("fqan")

	source := &framework.InMemorySource{
		PEM:      string(payloadPEM),
		NFQANs:   len(fqans),
		HasNFQAN: len(fqans) > 0,
		FQANs:    fqans,
	}
	sink := framework.NewRecordingSink()

	svc, err := services.NewProxyService(source, sink,
		services.WithLogger(logger),
		services.WithReader(secfile.NewReader(cfg.ReaderOptions())),
	)
	if err != nil {
		return err
	}

	err = svc.Authorize(cmd.Context(), services.AuthorizeRequest{
		LockPolicy:    policy,
		FQANPattern:   cfg.FQANPattern,
		RejectLimited: cfg.RejectLimited,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "payload authorized\n")
	fmt.Fprintf(cmd.OutOrStdout(), "subject: %s\n", sink.SubjectDN)
	for _, fqan := range sink.FQANs {
		fmt.Fprintf(cmd.OutOrStdout(), "fqan: %s\n", fqan)
	}
	return nil
}
