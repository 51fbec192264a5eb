package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/telehub/cmd/cpeer-obd-agent/app"
)

func main() {
	app.NewApp().Run()
}
