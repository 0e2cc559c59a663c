package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-itemsense/internal/log"
	"github.com/teslashibe/go-itemsense/pkg/actuation"
)

func newActuateCmd(a *app) *cobra.Command {
	var (
		mapPath string
		port    string
		baud    int
	)

	cmd := &cobra.Command{
		Use:   "actuate",
		Short: "Show live predictions and light the pin mapped to each confirmed item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &a.cfg
			if mapPath != "" {
				cfg.Pins.File = mapPath
			}
			if port != "" {
				cfg.Serial.Port = port
			}
			if baud > 0 {
				cfg.Serial.Baud = baud
			}
			if err := cfg.ValidateActuation(); err != nil {
				return fmt.Errorf("config: %w", err)
			}

			art, labels, err := a.resolveModel()
			if err != nil {
				return err
			}

			pins, err := actuation.LoadPinMap(cfg.Pins.File)
			if err != nil {
				return err
			}
			if err := pins.Validate(cfg.Pins.Min, cfg.Pins.Max); err != nil {
				return fmt.Errorf("%s: %w", cfg.Pins.File, err)
			}

			if len(pins) == 0 {
				log.Warn("pin map is empty, no commands will be sent", "file", cfg.Pins.File)
			}

			// Everything that can be checked offline is checked before the
			// board is reset by opening its port.
			clf, err := a.loadClassifier(art, labels)
			if err != nil {
				return err
			}
			defer clf.Close()

			ctx := cmd.Context()
			link, err := a.openActuator(ctx, cfg.Serial)
			if err != nil {
				return err
			}
			return a.runPipeline(ctx, art, labels, clf, link, pins)
		},
	}

	f := cmd.Flags()
	f.StringVar(&mapPath, "map", "", "JSON file mapping labels to pins")
	f.StringVar(&port, "port", "", "serial device (overrides ITEMSENSE_SERIAL_PORT)")
	f.IntVar(&baud, "baud", 0, "serial baud rate (default 9600)")
	return cmd
}
