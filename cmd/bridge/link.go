package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
	"github.com/kvantora/comment-bridge/internal/conf"
)

func linkCommand() *cli.Command {
	return &cli.Command{
		Name:  "link",
		Usage: "Print the comment deep link for a channel post",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "channel",
				Usage:    "Channel chat id, e.g. -1001234567890",
				Required: true,
			},
			&cli.IntFlag{
				Name:     "post",
				Usage:    "Post message id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "bot",
				Usage: "Bot username, defaults to the configured one",
			},
		},
		Action: func(c *cli.Context) error {
			username := c.String("bot")
			if username == "" {
				cfg, err := conf.Load(c.String("config"))
				if err != nil {
					return err
				}
				username = cfg.Bot.Username
			}
			username = strings.TrimPrefix(username, "@")
			if username == "" {
				return errors.New("bot username is not configured, pass --bot")
			}

			ref := domain.PostRef{ChannelID: c.Int64("channel"), PostID: c.Int("post")}
			fmt.Fprintln(c.App.Writer, ref.DeepLink(username))
			return nil
		},
	}
}
