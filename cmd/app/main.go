package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mkrupp/apptemplate/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}

		os.Exit(cli.ExitFailure)
	}
}
