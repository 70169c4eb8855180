package embedded

import (
	"embed"
)

// FS embeds the prize roster files at build time: the Nobel laureate
// list as YAML and the Aquileo winner list as tab-separated text.
//
//go:embed rosters/*
var FS embed.FS
