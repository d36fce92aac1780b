// Package main provides the entry point for the onedesk CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/onedesk/cmd/onedesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
