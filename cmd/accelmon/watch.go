package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/accelmon"
	"github.com/mklimuk/accelmon/accel"
	"github.com/mklimuk/accelmon/adapter"
	"github.com/mklimuk/accelmon/cmd/accelmon/console"
	busi2c "github.com/mklimuk/accelmon/i2c"
	"github.com/mklimuk/accelmon/poll"
)

var watchFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "yaml configuration file",
	},
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Usage:   "bus transport (i2c, mcp2221, gobot)",
	},
	&cli.StringFlag{
		Name:  "bus",
		Usage: "i2c controller id; the first discovered one when empty",
	},
	&cli.StringFlag{
		Name:    "sensor",
		Aliases: []string{"s"},
		Value:   "bma250",
		Usage:   "sensor to sample (bma250, mock)",
	},
	&cli.IntFlag{
		Name:    "interval",
		Aliases: []string{"i"},
		Usage:   "sample period in milliseconds",
	},
	&cli.BoolFlag{
		Name:  "pick",
		Usage: "prompt for the bus controller instead of using the first one",
	},
}

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "poll the accelerometer and print each reading",
	Flags: watchFlags,
	Action: func(c *cli.Context) error {
		cfg, err := watchConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}

		dev, release, err := openDevice(c, cfg)
		if err != nil {
			return reportAcquisition(err)
		}

		p := poll.New(dev, poll.WithRelease(release))
		if err = p.Configure(context.Background()); err != nil {
			p.Stop()
			return console.Exit(1, "sensor configuration error: %s", console.Red(err))
		}
		out, err := p.Start(cfg.interval())
		if err != nil {
			p.Stop()
			return console.Exit(1, "could not start polling: %s", console.Red(err))
		}
		console.Infof("polling every %s, ctrl-c to stop", console.White(cfg.interval()))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				console.Printf("%s stopping\n", console.PictoStop)
				p.Stop()
				return nil
			case res, ok := <-out:
				if !ok {
					return nil
				}
				if res.Err != nil {
					console.Errorf("tick failed: %s", console.Red(res.Err))
					continue
				}
				console.Printf("%s %s %s\n", console.PictoRuler, res.At.Format("15:04:05.000"), console.White(res.Reading))
			}
		}
	},
}

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Usage:   "configure the accelerometer and take a single sample",
	Flags:   watchFlags,
	Action: func(c *cli.Context) error {
		cfg, err := watchConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		dev, release, err := openDevice(c, cfg)
		if err != nil {
			return reportAcquisition(err)
		}
		ctx := context.Background()
		if release != nil {
			defer func() { _ = release(ctx) }()
		}
		if err = dev.Configure(ctx); err != nil {
			return console.Exit(1, "sensor configuration error: %s", console.Red(err))
		}
		reading, err := dev.Sample(ctx)
		if err != nil {
			return console.Exit(1, "sample error: %s", console.Red(err))
		}
		console.Printf("%s %s\n", console.PictoRuler, console.White(reading))
		return nil
	},
}

func watchConfig(c *cli.Context) (Config, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("adapter") {
		cfg.Adapter = c.String("adapter")
	}
	if c.IsSet("bus") {
		cfg.Bus = c.String("bus")
	}
	if c.IsSet("interval") {
		cfg.IntervalMs = c.Int("interval")
	}
	return cfg, nil
}

// openDevice builds the sensor and the release hook for the selected
// transport. Discovery and acquisition failures are terminal: the poller is
// never started on them.
func openDevice(c *cli.Context, cfg Config) (poll.Device, func(context.Context) error, error) {
	if c.String("sensor") == "mock" {
		var ticks int
		return accel.NewMockAccelerometer(func(ctx context.Context) (accel.Acceleration, error) {
			ticks++
			angle := float64(ticks) / 10
			return accel.Acceleration{
				X: int(math.Round(8 * math.Sin(angle))),
				Y: int(math.Round(8 * math.Cos(angle))),
				Z: 16,
			}, nil
		}), nil, nil
	}

	transport, err := openTransport(c, cfg)
	if err != nil {
		return nil, nil, err
	}
	opts := []accel.BMA250Opt{}
	if cfg.Range != 0 {
		opts = append(opts, accel.WithRange(cfg.Range))
	}
	if cfg.Bandwidth != 0 {
		opts = append(opts, accel.WithBandwidth(cfg.Bandwidth))
	}
	return accel.NewBMA250(transport, opts...), transport.Release, nil
}

func openTransport(c *cli.Context, cfg Config) (accelmon.RegisterIO, error) {
	switch cfg.Adapter {
	case "mcp2221":
		return adapter.NewMCP2221(accel.Addr)
	case "gobot":
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		return adapter.NewGobotBus(npi, accel.Addr, cfg.GobotBus)
	default:
		controller := cfg.Bus
		if controller == "" {
			var err error
			controller, err = discoverController(c.Bool("pick"))
			if err != nil {
				return nil, err
			}
		}
		handle, err := busi2c.Acquire(controller, accel.Addr)
		var acqErr *busi2c.AcquisitionError
		if errors.As(err, &acqErr) {
			// the device may just be slow to come out of reset; offer to
			// keep the handle without the acquisition probe
			answer, perr := console.YesOrNo(fmt.Sprintf("device did not acknowledge at %#x on %s, acquire anyway?", acqErr.Addr, acqErr.Controller))
			if perr != nil || answer != console.Yes {
				return nil, err
			}
			return busi2c.Acquire(controller, accel.Addr, busi2c.WithoutProbe())
		}
		if err != nil {
			return nil, err
		}
		console.Infof("acquired %s at address %s", console.White(handle.Controller()), console.White(fmt.Sprintf("%#x", handle.Addr())))
		return handle, nil
	}
}

func discoverController(pick bool) (string, error) {
	if !pick {
		return busi2c.Discover()
	}
	refs, err := busi2c.Controllers()
	if err != nil {
		return "", err
	}
	for i, ref := range refs {
		console.Printf("%s %s\n", console.White(strconv.Itoa(i)), ref)
	}
	answer, err := console.Prompt("bus controller index: ")
	if err != nil {
		return "", err
	}
	idx, err := strconv.Atoi(answer)
	if err != nil || idx < 0 || idx >= len(refs) {
		return "", fmt.Errorf("invalid controller index %q", answer)
	}
	return refs[idx], nil
}

func reportAcquisition(err error) error {
	var discErr *busi2c.DiscoveryError
	if errors.As(err, &discErr) {
		return console.Exit(1, "%s", console.Red(discErr))
	}
	var acqErr *busi2c.AcquisitionError
	if errors.As(err, &acqErr) {
		return console.Exit(1, "address %s on controller %s unavailable: %s",
			console.Yellow(fmt.Sprintf("%#x", acqErr.Addr)), console.Yellow(acqErr.Controller), console.Red(acqErr.Err))
	}
	return console.Exit(1, "bus acquisition error: %s", console.Red(err))
}
