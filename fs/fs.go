// Package appfs embeds the files the binaries need at runtime: migrations, email templates & assets.
package appfs

import "embed"

//go:embed migrations/*.sql assets
var FS embed.FS
