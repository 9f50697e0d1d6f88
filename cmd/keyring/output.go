package main

import (
	"io"

	"github.com/fatih/color"
)

func success(format string, args ...any) {
	color.Green(format, args...)
}

func printError(w io.Writer, err error) {
	color.New(color.FgRed).Fprintf(w, "error: %v\n", err)
}
