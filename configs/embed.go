// Package configs provides embedded configuration templates.
//
// Templates are embedded at build time with go:embed so they ship inside
// the binary regardless of how weft was installed. `weft init` writes the
// project template; `weft config init` writes the user template.
//
// Configuration precedence (see internal/config.Load):
//
//	1. Hardcoded defaults (internal/config NewConfig)
//	2. User config (~/.config/weft/config.yaml)
//	3. Project config (.weft.yaml)
//	4. Environment variables (WEFT_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for machine-level configuration:
// settings that apply to every project on this machine, such as the
// Ollama host or an OpenAI-compatible endpoint.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration,
// written to .weft.yaml in the project root and meant to be committed.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
