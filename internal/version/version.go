//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package version carries build metadata set via -ldflags.
package version

var (
	Version   = "1.0.0"
	Commit    = "none"
	BuildDate = "unknown"
)
