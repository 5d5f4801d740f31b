// cmd/codectl/main.go
package main

import (
	"os"

	"github.com/balaji-balu/codeboard/cmd/codectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
