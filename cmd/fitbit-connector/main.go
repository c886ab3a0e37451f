package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/common-nighthawk/go-figure"

	"github.com/yukke-bit/fitbit-data-connector/internal/app"
)

const appName = "fitbit-connector"

func main() {
	args := os.Args[1:]

	// healthcheckとhelpではバナーを出さない
	if cmd := app.ParseCommand(args); cmd != app.CommandHealthcheck && cmd != app.CommandHelp {
		fmt.Fprintln(os.Stderr, figure.NewFigure(appName, "cybermedium", true).String())
	}

	if err := app.Run(os.Stdout, args); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
