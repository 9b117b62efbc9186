package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "briefer"}

	root.AddCommand(serveCMD(), migrateCMD(), researchCMD(), watchCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
