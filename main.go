package main

import (
	"os"

	"github.com/mwcnet/mwcd/app"
)

func main() {
	if err := app.StartApp(); err != nil {
		os.Exit(1)
	}
}
