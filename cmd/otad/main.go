package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/otad/cmd/otad/app"
)

func main() {
	app.NewApp().Run()
}
