// Package appfs holds the files embedded in the binaries: database migrations, email templates
// and the default notification rules.
package appfs

import "embed"

//go:embed assets migrations
var FS embed.FS
