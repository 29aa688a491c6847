// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	_ "github.com/tliron/commonlog/simple"

	"printflog/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exit *cli.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintf(os.Stderr, "%s: %s\n", color.RedString("error"), err)
		os.Exit(1)
	}
}
