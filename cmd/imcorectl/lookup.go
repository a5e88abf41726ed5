package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/lrhodin/imcore/pkg/chatdb"
)

var lookupCommand = &cli.Command{
	Name:  "lookup",
	Usage: "Resolve message identifiers against a chat.db file",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Usage:    "Path to the chat.db message store",
			Required: true,
		},
	},
	Subcommands: []*cli.Command{
		{
			Name:      "message",
			Usage:     "Find the chat identifier for a message GUID",
			ArgsUsage: "<message guid>",
			Action:    lookupMessage,
		},
		{
			Name:      "rowid",
			Usage:     "Find the chat GUID for a numeric message row ID",
			ArgsUsage: "<row id>",
			Action:    lookupRowID,
		},
	},
}

func openStore(ctx *cli.Context) (*chatdb.Store, error) {
	store, err := chatdb.New(ctx.String("db"), getLogger(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}
	return store, nil
}

func lookupMessage(ctx *cli.Context) error {
	guid := ctx.Args().First()
	if guid == "" {
		return fmt.Errorf("usage: lookup message <message guid>")
	}
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	identifier, err := store.ChatIdentifierForMessageGUID(ctx.Context, guid)
	if err != nil {
		return err
	} else if identifier == "" {
		return fmt.Errorf("no chat found for message %s", guid)
	}
	fmt.Println(identifier)
	return nil
}

func lookupRowID(ctx *cli.Context) error {
	rowID, err := strconv.ParseInt(ctx.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("usage: lookup rowid <row id>: %w", err)
	}
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	chatGUID, err := store.ChatGUIDForMessageRowID(ctx.Context, rowID)
	if err != nil {
		return err
	} else if chatGUID == "" {
		return fmt.Errorf("no chat found for message row %d", rowID)
	}
	fmt.Println(chatGUID)
	return nil
}
