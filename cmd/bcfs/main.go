// Command bcfs formats, inspects and repairs volume images.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-bcache/mkfs"
	"github.com/mit-pdos/go-bcache/util"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "bcfs",
		Usage: "Manage block cache volume images",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:    "debug",
				Usage:   "debug print level",
				EnvVars: []string{"BCFS_DEBUG"},
			},
		},
		Before: func(c *cli.Context) error {
			util.Debug = c.Uint64("debug")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "mkfs",
				Usage:     "Create and format an image",
				ArgsUsage: "IMAGE",
				Action:    mkfsImage,
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "blocks", Value: 4096, Usage: "image size in blocks"},
					&cli.Uint64Flag{Name: "log-blocks", Value: mkfs.DefaultLogBlocks, Usage: "log capacity"},
					&cli.BoolFlag{Name: "no-bitmap", Usage: "omit the allocation bitmap"},
				},
			},
			{
				Name:      "inspect",
				Usage:     "Print the super block and the log header",
				ArgsUsage: "IMAGE",
				Action:    inspectImage,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "csv", Usage: "print log entries as CSV"},
				},
			},
			{
				Name:      "recover",
				Usage:     "Replay an interrupted commit",
				ArgsUsage: "IMAGE",
				Action:    recoverImage,
			},
			{
				Name:      "write",
				Usage:     "Write a string into a data block in one operation",
				ArgsUsage: "IMAGE DATA",
				Action:    writeImage,
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "block", Required: true},
					&cli.Uint64Flag{Name: "offset"},
				},
			},
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
