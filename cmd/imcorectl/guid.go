package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lrhodin/imcore/pkg/imdaemon"
)

var guidCommand = &cli.Command{
	Name:  "guid",
	Usage: "Compose and parse canonical chat GUIDs",
	Subcommands: []*cli.Command{
		{
			Name:      "make",
			Usage:     "Compose a chat GUID from service, style and identifier",
			ArgsUsage: "<service> <identifier>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "group",
					Usage: "Compose a group chat GUID",
				},
			},
			Action: makeGUID,
		},
		{
			Name:      "parse",
			Usage:     "Split a chat GUID into its parts",
			ArgsUsage: "<chat guid>",
			Action:    parseGUID,
		},
	},
}

func makeGUID(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("usage: guid make <service> <identifier>")
	}
	service := ctx.Args().Get(0)
	if _, ok := imdaemon.ParseServiceStyle(service); !ok {
		return fmt.Errorf("unknown service %q", service)
	}
	style := imdaemon.ChatStyleInstantMessage
	if ctx.Bool("group") {
		style = imdaemon.ChatStyleGroup
	}
	fmt.Println(imdaemon.CreateChatGUID(service, style, ctx.Args().Get(1)))
	return nil
}

func parseGUID(ctx *cli.Context) error {
	guid := ctx.Args().First()
	if guid == "" {
		return fmt.Errorf("usage: guid parse <chat guid>")
	}
	service, style, identifier, err := imdaemon.ParseChatGUID(guid)
	if err != nil {
		return err
	}
	kind := "dm"
	if style == imdaemon.ChatStyleGroup {
		kind = "group"
	}
	fmt.Printf("service:    %s\n", service)
	fmt.Printf("style:      %s\n", kind)
	fmt.Printf("identifier: %s\n", identifier)
	return nil
}
