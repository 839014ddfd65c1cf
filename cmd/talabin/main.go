package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "talabin",
		Usage: "gold trading backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.yaml",
				EnvVars: []string{"TALABIN_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  "development",
				Usage: "human readable logs",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "listen port"},
					&cli.BoolFlag{Name: "migrate", Value: true, Usage: "migrate the schema before serving"},
					&cli.StringFlag{Name: "seed-plans", Usage: "installment plan file to seed on start"},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the database schema",
				Action: migrate,
			},
			{
				Name:  "publish-price",
				Usage: "set the active gold price",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "buy", Required: true, Usage: "price per gram the platform buys at"},
					&cli.StringFlag{Name: "sell", Required: true, Usage: "price per gram the platform sells at"},
					&cli.StringFlag{Name: "source", Value: "manual"},
				},
				Action: publishPrice,
			},
			{
				Name:  "seed-plans",
				Usage: "upsert installment plans from a YAML file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Value: "config/installment_plans.yaml"},
				},
				Action: seedPlans,
			},
			{
				Name:  "create-user",
				Usage: "register a user and open their wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "phone", Required: true},
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
					&cli.BoolFlag{Name: "staff"},
				},
				Action: createUser,
			},
			{
				Name:  "issue-token",
				Usage: "print a signed access token for a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "phone", Required: true},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: issueToken,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
