// Package configs embeds the annotated configuration template written by
// `onedesk config init`.
package configs

import _ "embed"

// Template is the commented onedesk.yaml with every option at its default.
//
//go:embed onedesk.example.yaml
var Template string
