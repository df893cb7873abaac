//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Command svcbscan checks domains for RFC 9460 SVCB/HTTPS DNS records
// and reports on deployment quality.
package main

import (
	"os"

	"github.com/bassosimone/svcbscan/internal/cli"
)

func main() {
	code := cli.Run(os.Args[1:])
	os.Exit(code)
}
