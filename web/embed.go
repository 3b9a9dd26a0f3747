// Package web holds the dashboard's templates and stylesheet.
package web

import "embed"

// TemplatesFS holds the page and partial templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the assets served under /static/.
//
//go:embed static/*.css
var StaticFS embed.FS
