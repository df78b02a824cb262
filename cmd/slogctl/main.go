package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nodelog/slogd/data"
	natsc "github.com/nodelog/slogd/nats"
	"github.com/urfave/cli/v2"
)

var version = "Development"

var scopes = map[string]int{
	"global": data.ScopeGlobal,
	"module": data.ScopeModule,
	"event":  data.ScopeEvent,
}

func connect(c *cli.Context) (*nats.Conn, error) {
	nc, err := nats.Connect(c.String("natsServer"),
		nats.Name("slogctl"),
		nats.Token(c.String("token")),
		nats.Timeout(c.Duration("timeout")),
	)
	if err != nil {
		return nil, fmt.Errorf("Error connecting to %v: %w", c.String("natsServer"), err)
	}
	return nc, nil
}

func get(c *cli.Context) error {
	nc, err := connect(c)
	if err != nil {
		return err
	}
	defer nc.Close()

	reply, err := natsc.GetLevels(nc, int32(c.Int("instance")), int32(c.Int("dev")),
		c.Bool("table"), c.Duration("timeout"))
	if err != nil {
		return err
	}

	fmt.Println(reply)
	return nil
}

func set(c *cli.Context) error {
	scope, ok := scopes[strings.ToLower(c.String("scope"))]
	if !ok {
		return fmt.Errorf("unknown scope %q, options: global, module, event", c.String("scope"))
	}

	if c.NArg() != 1 {
		return fmt.Errorf("expected one value, for example INFO, TS:DEBUG or ENABLE")
	}

	nc, err := connect(c)
	if err != nil {
		return err
	}
	defer nc.Close()

	reply, err := natsc.SetLevel(nc, int32(c.Int("instance")), int32(c.Int("dev")),
		scope, c.Args().First(), c.Duration("timeout"))
	if err != nil {
		return err
	}

	fmt.Println(reply)
	if reply != data.ReplySuccess {
		return cli.Exit("", 1)
	}
	return nil
}

func main() {
	devFlag := &cli.IntFlag{
		Name:  "dev",
		Value: int(data.AllDevices),
		Usage: "device the request is for, -1 for all",
	}

	app := &cli.App{
		Name:    "slogctl",
		Usage:   "query and change log levels on a node",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "natsServer",
				Value:   "nats://127.0.0.1:4222",
				Usage:   "NATS server of the level daemon",
				EnvVars: []string{"SLOGD_NATS_SERVER"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "auth token",
				EnvVars: []string{"SLOGD_AUTH_TOKEN"},
			},
			&cli.IntFlag{
				Name:  "instance",
				Value: int(data.AllDevices),
				Usage: "daemon instance to ask, -1 for the master",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Second,
				Usage: "request timeout",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "print the current levels",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "table",
						Usage: "compact one line output",
					},
					devFlag,
				},
				Action: get,
			},
			{
				Name:      "set",
				Usage:     "change a level",
				ArgsUsage: "VALUE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "scope",
						Value: "global",
						Usage: "global, module or event",
					},
					devFlag,
				},
				Action: set,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
