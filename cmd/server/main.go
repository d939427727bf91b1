// Package main runs the hop link redirector.
//
//	@title			Hop Link Redirector API
//	@version		1.0
//	@description	Redirects short keys to the URLs listed in a link table
//	@host			localhost:8080
//	@BasePath		/
//	@schemes		http https
package main

import (
	"go.uber.org/fx"

	_ "github.com/sp3dr4/hop/docs"
	hopfx "github.com/sp3dr4/hop/internal/fx"
)

func main() {
	fx.New(hopfx.HTTPServerModules).Run()
}
