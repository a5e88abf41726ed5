package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/lrhodin/imcore/pkg/imcore"
)

var flagsCommand = &cli.Command{
	Name:      "flags",
	Usage:     "Print the effective feature flags for a config file",
	ArgsUsage: "[path to flags yaml]",
	Action:    printFlags,
}

func printFlags(ctx *cli.Context) error {
	flags := imcore.NewFlags(imcore.DefaultFeatureFlags())

	if path := ctx.Args().First(); path != "" {
		if err := flags.LoadFile(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	out, err := yaml.Marshal(flags.Current())
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
