package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/core/domain"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/core/services"
	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/secfile"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [proxy-file]",
	Short: "Show classification of a proxy credential",
	Long: `Show classification of a proxy credential.

Without an argument the proxy is located via X509_USER_PROXY, falling back
to the conventional /tmp/x509up_u<uid> location.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().String("lock", "range", "lock type: none, range, wholefile, both")
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else if path = os.Getenv(services.EnvPilotProxy); path == "" {
		path = fmt.Sprintf("/tmp/x509up_u%d", os.Getuid())
	}

	lock, _ := cmd.Flags().GetString("lock")
	policy, err := secfile.ParseLockPolicy(lock)
	if err != nil {
		return err
	}

	reader := secfile.NewReader(secfile.Options{})
	pemData, err := reader.ReadSecureFile(path, policy)
	if err != nil {
		return err
	}
	chain, err := domain.ParseChain(pemData)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "file         : %s\n", path)
	fmt.Fprintf(out, "chain length : %d\n", chain.Len())
	for i, cert := range chain.Certificates() {
		class := domain.Classify(cert)
		fmt.Fprintf(out, "[%d] subject  : %s\n", i, cert.Subject.String())
		fmt.Fprintf(out, "    issuer   : %s\n", cert.Issuer.String())
		fmt.Fprintf(out, "    rfc proxy: %v\n", class.RFCProxy)
		fmt.Fprintf(out, "    limited  : %v\n", class.Limited)
		fmt.Fprintf(out, "    not after: %s\n", cert.NotAfter)
	}
	return nil
}
