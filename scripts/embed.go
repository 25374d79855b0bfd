// Package scripts embeds the built-in extension scripts. Projects enable
// them by listing their paths, such as "checks/strict.risor", in the
// extensions of topdown.toml while scripts_dir is unset.
package scripts

import "embed"

// FS holds every built-in script under checks/.
//
//go:embed checks/*.risor
var FS embed.FS
