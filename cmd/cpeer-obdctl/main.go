package main

import (
	"github.com/autopeer-io/telehub/cmd/cpeer-obdctl/app"
)

func main() {
	app.NewApp().Run()
}
