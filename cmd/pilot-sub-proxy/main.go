// pilot-sub-proxy verifies payload proxy credentials delegated through a
// pilot job's proxy certificate.
//
// Usage:
//
//	pilot-sub-proxy verify --payload payload.pem [--fqan /vo/Role=x ...]
//	pilot-sub-proxy inspect [proxy-file]
//	pilot-sub-proxy version
package main

import (
	"fmt"
	"os"

	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
