package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newCLI(&cliEnv{}).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newCLI(env *cliEnv) *cli.App {
	return &cli.App{
		Name:  "rlis",
		Usage: "reconcile reported series against the replay archive",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the configuration file", EnvVars: []string{"RLIS_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Usage: "override the configured log level"},
		},
		After: env.close,
		Commands: []*cli.Command{
			enqueueCommand(env),
			reportCommand(env),
			reconcileCommand(env),
			publishCommand(env),
			queueCommand(env),
			exportCommand(env),
			playersCommand(env),
		},
	}
}
