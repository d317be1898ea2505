package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/sugawarayuuta/sonnet"
	"github.com/urfave/cli"

	vmem "github.com/sushydev/vmem_go"
)

const VERSION = `0.1.0`

const (
	DEFAULT_AREA_NAME = `ring`
	DEFAULT_DATA_SIZE = 4096
	DEFAULT_ENTRIES   = 64
)

var blue = color.New(color.FgBlue).SprintFunc()
var green = color.New(color.FgGreen).SprintFunc()
var yellow = color.New(color.FgYellow).SprintFunc()
var red = color.New(color.FgRed).SprintFunc()

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}

type ringInfo struct {
	Name     string   `json:"name"`
	Head     uint32   `json:"head"`
	Tail     uint32   `json:"tail"`
	Count    int      `json:"count"`
	DataSize uint32   `json:"data_size"`
	Entries  uint32   `json:"entries"`
	Offsets  []uint32 `json:"offsets"`
	Sizes    []uint32 `json:"sizes"`
}

func newApp() *cli.App {
	var registry *vmem.Registry

	app := cli.NewApp()
	app.Name = `vmemring`
	app.Usage = `Inspect and append to virtual memory areas and record rings`
	app.Version = VERSION
	app.EnableBashCompletion = false

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   `log-level, L`,
			Usage:  `Level of log output verbosity`,
			Value:  `info`,
			EnvVar: `LOGLEVEL`,
		},
		cli.StringFlag{
			Name:   `config, c`,
			Usage:  `JSON file declaring the areas`,
			EnvVar: `VMEM_CONFIG`,
		},
		cli.StringFlag{
			Name:  `path, p`,
			Usage: `Backing file of an ad hoc ring when no config is given`,
		},
		cli.StringFlag{
			Name:  `name, n`,
			Usage: `Name of the ad hoc ring`,
			Value: DEFAULT_AREA_NAME,
		},
		cli.StringFlag{
			Name:  `store`,
			Usage: `Backing store of the ad hoc ring (file, sqlite)`,
			Value: vmem.StoreFile,
		},
		cli.UintFlag{
			Name:  `size, s`,
			Usage: `Data region size of the ad hoc ring`,
			Value: DEFAULT_DATA_SIZE,
		},
		cli.UintFlag{
			Name:  `entries, e`,
			Usage: `Slot count of the ad hoc ring`,
			Value: DEFAULT_ENTRIES,
		},
		cli.BoolFlag{
			Name:  `no-color`,
			Usage: `Disable colored output`,
		},
	}

	app.Before = func(c *cli.Context) error {
		errWriter := c.App.ErrWriter
		if errWriter == nil {
			errWriter = os.Stderr
		}
		parseLogLevel(c.String(`log-level`), errWriter)
		if c.Bool(`no-color`) {
			color.NoColor = true
		}

		var cfg *vmem.Config
		switch {
		case c.String(`config`) != ``:
			loaded, err := vmem.LoadConfig(c.String(`config`))
			if err != nil {
				return err
			}
			cfg = loaded
		case c.String(`path`) != ``:
			cfg = &vmem.Config{Areas: []vmem.AreaConfig{{
				Name:    c.String(`name`),
				Type:    vmem.AreaTypeRing,
				Store:   c.String(`store`),
				Path:    c.String(`path`),
				Size:    uint32(c.Uint(`size`)),
				Entries: uint32(c.Uint(`entries`)),
			}}}
		default:
			cfg = &vmem.Config{}
		}

		built, err := cfg.Build(log.StandardLogger())
		if err != nil {
			return err
		}
		registry = built
		return nil
	}

	findArea := func(c *cli.Context) (*vmem.VMem, error) {
		if c.NArg() < 1 {
			return nil, cli.NewExitError(`missing <area>`, 2)
		}
		return registry.Find(c.Args().First())
	}

	findRing := func(c *cli.Context) (*vmem.VMem, vmem.RecordDriver, error) {
		area, err := findArea(c)
		if err != nil {
			return nil, nil, err
		}
		records, ok := area.Driver.(vmem.RecordDriver)
		if !ok {
			return nil, nil, fmt.Errorf("area %q is not a record area", area.Name)
		}
		return area, records, nil
	}

	app.Commands = []cli.Command{
		{
			Name:  `list`,
			Usage: `List the configured areas`,
			Action: func(c *cli.Context) error {
				for _, area := range registry.List() {
					kind := vmem.AreaTypeImage
					if area.IsRecordArea() {
						kind = vmem.AreaTypeRing
					}
					fmt.Fprintf(c.App.Writer, "%s\t%s\t%d\n", blue(area.Name), kind, area.Size)
				}
				return nil
			},
		},
		{
			Name:      `info`,
			Usage:     `Show head, tail and record sizes of a ring`,
			ArgsUsage: `<area>`,
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  `json, j`,
					Usage: `Print as JSON`,
				},
			},
			Action: func(c *cli.Context) error {
				area, _, err := findRing(c)
				if err != nil {
					return err
				}
				ring, ok := area.Driver.(*vmem.Ring)
				if !ok {
					return fmt.Errorf("area %q is not a ring", area.Name)
				}

				count, err := ring.Count()
				if err != nil {
					return err
				}
				state := ring.State()
				dataSize, entries := ring.Capacity()
				info := ringInfo{
					Name:     area.Name,
					Head:     state.Head,
					Tail:     state.Tail,
					Count:    count,
					DataSize: dataSize,
					Entries:  entries,
					Offsets:  state.Offsets,
				}
				for i := 0; i < info.Count; i++ {
					size, err := ring.ElementSize(i)
					if err != nil {
						return err
					}
					info.Sizes = append(info.Sizes, size)
				}

				if c.Bool(`json`) {
					out, err := sonnet.Marshal(info)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, string(out))
					return nil
				}

				fmt.Fprintf(c.App.Writer, "%s: %s/%d records, %d bytes data, head %d, tail %d\n",
					blue(info.Name), green(info.Count), info.Entries-1, info.DataSize, info.Head, info.Tail)
				for i, size := range info.Sizes {
					fmt.Fprintf(c.App.Writer, "  [%d] %d bytes\n", i, size)
				}
				return nil
			},
		},
		{
			Name:      `write`,
			Usage:     `Append each argument as one record, or write bytes into an image area`,
			ArgsUsage: `<area> <data...>`,
			Flags: []cli.Flag{
				cli.Int64Flag{
					Name:  `addr, a`,
					Usage: `Start address for image areas`,
				},
				cli.BoolFlag{
					Name:  `hex, x`,
					Usage: `Arguments are hex encoded`,
				},
			},
			Action: func(c *cli.Context) error {
				area, err := findArea(c)
				if err != nil {
					return err
				}

				addr := c.Int64(`addr`)
				for _, arg := range c.Args().Tail() {
					data, err := decodeArg(arg, c.Bool(`hex`))
					if err != nil {
						return err
					}
					n, err := area.Write(addr, data)
					if err != nil {
						return err
					}
					if !area.IsRecordArea() {
						addr += int64(n)
					}
				}

				fmt.Fprintf(c.App.Writer, "%s %d records to %s\n", green(`wrote`), len(c.Args().Tail()), area.Name)
				return nil
			},
		},
		{
			Name:      `read`,
			Usage:     `Read a record by index (negative counts from the newest) or bytes from an image area`,
			ArgsUsage: `<area> <index|addr>`,
			// Negative indices must not be taken for flags.
			SkipArgReorder: true,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  `length, l`,
					Usage: `Bytes to read from an image area`,
					Value: 16,
				},
				cli.BoolFlag{
					Name:  `hex, x`,
					Usage: `Print hex encoded`,
				},
			},
			Action: func(c *cli.Context) error {
				area, err := findArea(c)
				if err != nil {
					return err
				}
				addr, err := strconv.ParseInt(c.Args().Get(1), 10, 64)
				if err != nil {
					return cli.NewExitError(fmt.Sprintf("bad index %q", c.Args().Get(1)), 2)
				}

				var data []byte
				if records, ok := area.Driver.(vmem.RecordDriver); ok {
					data, err = records.ReadRecord(int(addr))
				} else {
					data = make([]byte, c.Int(`length`))
					_, err = area.Read(addr, data)
				}
				if err != nil {
					return err
				}

				printRecord(c, data)
				return nil
			},
		},
		{
			Name:      `dump`,
			Usage:     `Print every retained record, oldest first`,
			ArgsUsage: `<area>`,
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  `hex, x`,
					Usage: `Print hex encoded`,
				},
			},
			Action: func(c *cli.Context) error {
				_, records, err := findRing(c)
				if err != nil {
					return err
				}
				count, err := records.Count()
				if err != nil {
					return err
				}
				for i := 0; i < count; i++ {
					data, err := records.ReadRecord(i)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s ", yellow(fmt.Sprintf("[%d]", i)))
					printRecord(c, data)
				}
				return nil
			},
		},
		{
			Name:      `queue`,
			Usage:     `Stage records and push them as one batch`,
			ArgsUsage: `<area> <data...>`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  `max, m`,
					Usage: `Maximum number of staged records`,
					Value: vmem.DefaultQueueSize,
				},
				cli.BoolTFlag{
					Name:  `autosend`,
					Usage: `Push the batch whenever the queue fills up`,
				},
				cli.BoolFlag{
					Name:  `hex, x`,
					Usage: `Arguments are hex encoded`,
				},
			},
			Action: func(c *cli.Context) error {
				_, records, err := findRing(c)
				if err != nil {
					return err
				}

				wq := vmem.NewWriteQueue(records, c.Int(`max`))
				wq.SetAutosend(c.BoolT(`autosend`))
				for _, arg := range c.Args().Tail() {
					data, err := decodeArg(arg, c.Bool(`hex`))
					if err != nil {
						return err
					}
					if err := wq.Add(data); err != nil {
						return err
					}
				}

				_, err = wq.Flush()
				fmt.Fprintf(c.App.Writer, "%s %d records\n", green(`pushed`), len(c.Args().Tail())-wq.Len())
				return err
			},
		},
	}

	return app
}

func decodeArg(arg string, isHex bool) ([]byte, error) {
	if !isHex {
		return []byte(arg), nil
	}
	data, err := hex.DecodeString(arg)
	if err != nil {
		return nil, cli.NewExitError(fmt.Sprintf("bad hex %q: %v", arg, err), 2)
	}
	return data, nil
}

func printRecord(c *cli.Context, data []byte) {
	if c.Bool(`hex`) {
		fmt.Fprintln(c.App.Writer, hex.EncodeToString(data))
		return
	}
	fmt.Fprintln(c.App.Writer, string(data))
}
