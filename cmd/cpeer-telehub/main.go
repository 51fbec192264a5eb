package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/telehub/cmd/cpeer-telehub/app"
)

func main() {
	app.NewApp().Run()
}
