// Command proctorctl runs enrollment and verification against local image
// files using the same configuration and backends as the HTTP service.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(buildService).Execute(); err != nil {
		if !errors.Is(err, errReportFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
