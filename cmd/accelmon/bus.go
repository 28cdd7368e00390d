package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/accelmon/adapter"
	"github.com/mklimuk/accelmon/cmd/accelmon/console"
	busi2c "github.com/mklimuk/accelmon/i2c"
)

var busCmd = cli.Command{
	Name: "bus",
	Subcommands: cli.Commands{
		&busLsCmd,
	},
}

var busLsCmd = cli.Command{
	Name:  "ls",
	Usage: "list i2c bus controllers",
	Action: func(c *cli.Context) error {
		controllers, err := busi2c.Controllers()
		if err != nil {
			return console.Exit(1, "bus enumeration error: %s", console.Red(err))
		}
		if len(controllers) == 0 {
			console.Warnf("no i2c bus controller found")
			return nil
		}
		for _, name := range controllers {
			console.Printf("%s %s\n", console.PictoPin, name)
		}
		return nil
	},
}

var adapterCmd = cli.Command{
	Name: "adapter",
	Subcommands: cli.Commands{
		&adapterDetectCmd,
	},
}

var adapterDetectCmd = cli.Command{
	Name:  "detect",
	Usage: "detect supported usb bus adapters",
	Action: func(c *cli.Context) error {
		predefined := map[string][]uint16{
			"MCP2221": {adapter.VendorID, adapter.ProductID},
		}

		devices := hid.Enumerate(0, 0)

		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "VENDOR\tPRODUCT\tDEVICE\n")
		for _, dev := range devices {
			for descName, codes := range predefined {
				if codes[0] == dev.VendorID && codes[1] == dev.ProductID {
					_, _ = fmt.Fprintf(w, "%#x\t%#x\t%s\n", dev.VendorID, dev.ProductID, descName)
				}
			}
		}
		_ = w.Flush()
		return nil
	},
}
