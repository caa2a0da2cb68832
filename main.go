package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/embedr/embedr/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
