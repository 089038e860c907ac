package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/kainosnoema/remq/pkg/message"
	"github.com/kainosnoema/remq/pkg/remq"
	"github.com/spf13/cobra"
)

func newPublishCommand(conn *connection) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Append a message to a channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			channel, _ := cmd.Flags().GetString("channel")
			data, _ := cmd.Flags().GetString("data")
			body := []byte(data)
			if data == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				body = b
			}
			return conn.withClient(func(c *remq.Client) error {
				id, err := c.Publish(cmd.Context(), channel, body)
				if err != nil {
					return err
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"id": id, "channel": channel})
			})
		},
	}
	cmd.Flags().String("channel", "", "channel name")
	cmd.Flags().String("data", "", "message body; - reads stdin")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func newSubscribeCommand(conn *connection) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Stream messages matching a pattern as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pattern, _ := cmd.Flags().GetString("pattern")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			pageLimit, _ := cmd.Flags().GetInt("page-limit")
			poll, _ := cmd.Flags().GetDuration("poll")

			opts := remq.SubscribeOptions{Filter: filter, PageLimit: pageLimit, PollInterval: poll}
			if cmd.Flags().Changed("from") {
				from, _ := cmd.Flags().GetUint64("from")
				opts.From = remq.FromID(from)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			return conn.withClient(func(c *remq.Client) error {
				var (
					mu      sync.Mutex
					seen    int
					failure error
				)
				enc := json.NewEncoder(cmd.OutOrStdout())
				c.Observe(remq.ObserverFuncs{
					OnMessage: func(_ string, m message.Message) {
						mu.Lock()
						defer mu.Unlock()
						if limit > 0 && seen >= limit {
							return
						}
						_ = enc.Encode(decodedMessage(m))
						seen++
						if limit > 0 && seen >= limit {
							cancel()
						}
					},
					OnError: func(p string, err error) {
						mu.Lock()
						failure = fmt.Errorf("subscription %s: %w", p, err)
						mu.Unlock()
						cancel()
					},
				})
				if err := c.Subscribe(ctx, pattern, opts); err != nil {
					return err
				}
				<-ctx.Done()
				mu.Lock()
				defer mu.Unlock()
				return failure
			})
		},
	}
	cmd.Flags().String("pattern", "", "channel glob, e.g. orders.*")
	cmd.Flags().Uint64("from", 0, "replay messages after this id (0 replays everything); omit for live only")
	cmd.Flags().String("filter", "", "CEL expression over channel, id, size, text and json")
	cmd.Flags().Int("limit", 0, "exit after this many messages; 0 runs until interrupted")
	cmd.Flags().Int("page-limit", 0, "catch-up page size")
	cmd.Flags().Duration("poll", 0, "catch-up poll interval")
	_ = cmd.MarkFlagRequired("pattern")
	return cmd
}

func newConsumeCommand(conn *connection) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Read stored messages matching a pattern",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pattern, _ := cmd.Flags().GetString("pattern")
			after, _ := cmd.Flags().GetUint64("after")
			limit, _ := cmd.Flags().GetInt("limit")
			return conn.withClient(func(c *remq.Client) error {
				msgs, err := c.Consume(cmd.Context(), pattern, remq.ConsumeOptions{After: after, Limit: limit})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, m := range msgs {
					if err := enc.Encode(decodedMessage(m)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().String("pattern", "", "channel glob")
	cmd.Flags().Uint64("after", 0, "return messages after this id")
	cmd.Flags().Int("limit", 0, "maximum messages; 0 uses the default")
	_ = cmd.MarkFlagRequired("pattern")
	return cmd
}

func newPurgeCommand(conn *connection) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove stored messages matching a pattern",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pattern, _ := cmd.Flags().GetString("pattern")
			byBefore := cmd.Flags().Changed("before")
			byKeep := cmd.Flags().Changed("keep")
			if byBefore == byKeep {
				return fmt.Errorf("exactly one of --before or --keep is required")
			}
			var policy message.PrunePolicy
			if byBefore {
				before, _ := cmd.Flags().GetUint64("before")
				policy = message.PruneBefore(before)
			} else {
				keep, _ := cmd.Flags().GetInt("keep")
				policy = message.PruneKeep(keep)
			}
			return conn.withClient(func(c *remq.Client) error {
				n, err := c.Purge(cmd.Context(), pattern, policy)
				if err != nil {
					return err
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"removed": n})
			})
		},
	}
	cmd.Flags().String("pattern", "", "channel glob")
	cmd.Flags().Uint64("before", 0, "remove messages with id below this")
	cmd.Flags().Int("keep", 0, "keep only this many newest matching messages")
	_ = cmd.MarkFlagRequired("pattern")
	return cmd
}
