package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/motti-landau/kvstore"
	"github.com/motti-landau/kvstore/internal/live"
)

func describe(r kvstore.Record) string {
	if len(r.Tags) == 0 {
		return fmt.Sprintf("'%s'", r.Value)
	}
	return fmt.Sprintf("'%s' (tags: %s)", r.Value, strings.Join(r.Tags, ", "))
}

func minutes(n int, field string) (time.Duration, error) {
	if n < 0 {
		return 0, &kvstore.ValidationError{Field: field, Reason: "must be positive"}
	}
	return kvstore.Minutes(uint64(n), field)
}

// put stores value and prints what changed. tags nil keeps the current tags.
func put(cmd *cobra.Command, a *app, key, value string, tags []string, ttl time.Duration) error {
	res, err := a.store.Put(cmd.Context(), key, value, kvstore.PutOptions{Tags: tags, TTL: ttl})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res.Created() {
		fmt.Fprintf(out, "Added '%s'. %s\n", key, describe(res.Record))
	} else {
		fmt.Fprintf(out, "Updated '%s'. Previous: %s; Now: %s\n", key, describe(*res.Previous), describe(res.Record))
	}
	return nil
}

func addCommand(g *globals) *cobra.Command {
	var (
		tags []string
		ttl  int
	)
	cmd := &cobra.Command{
		Use:     "a KEY VALUE",
		Aliases: []string{"add"},
		Short:   "Add or update a key",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("tags") {
				tags = nil
			}
			d, err := minutes(ttl, "ttl")
			if err != nil {
				return err
			}
			return g.run(cmd, func(a *app) error {
				return put(cmd, a, args[0], args[1], tags, d)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "tags to set (replaces existing tags)")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "expire after this many minutes")
	return cmd
}

func getCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "g KEY",
		Aliases: []string{"get"},
		Short:   "Print the value stored at KEY",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(a *app) error {
				r, err := a.store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, r.Value)
				if len(r.Tags) > 0 {
					fmt.Fprintf(out, "tags: %s\n", strings.Join(r.Tags, ", "))
				}
				return nil
			})
		},
	}
}

func removeCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "r KEY",
		Aliases: []string{"remove", "delete", "rm"},
		Short:   "Remove KEY",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(a *app) error {
				r, err := a.store.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed '%s'. Stored value was %s.\n", r.Key, describe(r))
				return nil
			})
		},
	}
}

func listCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "l",
		Aliases: []string{"list"},
		Short:   "List all records in key order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(a *app) error {
				out := cmd.OutOrStdout()
				records := a.store.List(cmd.Context())
				if len(records) == 0 {
					fmt.Fprintln(out, "No entries stored.")
					return nil
				}
				for _, r := range records {
					fmt.Fprintln(out, r.Summary())
				}
				return nil
			})
		},
	}
}

type searchFlags struct {
	limit int
	tags  bool
	keys  bool
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.limit, "limit", "l", 10, "maximum number of matches")
	cmd.Flags().BoolVar(&f.tags, "tags", false, "search tags only")
	cmd.Flags().BoolVar(&f.keys, "keys", false, "search keys only")
	cmd.MarkFlagsMutuallyExclusive("tags", "keys")
}

// resultLimit prefers the flag, then search.limit from the config.
func (f *searchFlags) resultLimit(cmd *cobra.Command, a *app) int {
	if !cmd.Flags().Changed("limit") && a.cfg.Search.Limit > 0 {
		return a.cfg.Search.Limit
	}
	return f.limit
}

func (f *searchFlags) target() kvstore.Target {
	switch {
	case f.tags:
		return kvstore.TargetTags
	case f.keys:
		return kvstore.TargetKeys
	default:
		return kvstore.TargetBoth
	}
}

func searchCommand(g *globals) *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:     "s PATTERN",
		Aliases: []string{"search"},
		Short:   "Fuzzy search keys and tags",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(a *app) error {
				out := cmd.OutOrStdout()
				matches := a.store.Search(args[0], f.target(), f.resultLimit(cmd, a))
				if len(matches) == 0 {
					fmt.Fprintln(out, "No matches found.")
					return nil
				}
				for _, m := range matches {
					fmt.Fprintln(out, m.Record.Summary())
				}
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func liveCommand(g *globals) *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:     "f",
		Aliases: []string{"live", "interactive"},
		Short:   "Interactive fuzzy search",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(a *app) error {
				return live.Run(cmd.Context(), a.store, f.target(), f.resultLimit(cmd, a), g.stdin, cmd.OutOrStdout())
			})
		},
	}
	f.register(cmd)
	return cmd
}

func recentCommand(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recently accessed keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(a *app) error {
				out := cmd.OutOrStdout()
				if a.cfg.History.Limit == 0 {
					fmt.Fprintln(out, "Recent history is disabled (history.limit = 0).")
					return nil
				}
				entries := a.store.Recent(limit)
				if len(entries) == 0 {
					fmt.Fprintln(out, "No recent keys recorded.")
					return nil
				}
				for i, e := range entries {
					fmt.Fprintf(out, "%2d. %s\n", i+1, e.Key)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "maximum number of keys")
	return cmd
}

func tagCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage tags",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add KEY TAG",
			Short: "Add TAG to KEY",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, func(a *app) error {
					_, added, err := a.store.AddTag(cmd.Context(), args[0], args[1])
					if err != nil {
						return err
					}
					if !added {
						fmt.Fprintf(cmd.OutOrStdout(), "tag '%s' already exists on '%s'\n", args[1], args[0])
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "added tag '%s' to '%s'\n", args[1], args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "remove KEY TAG",
			Aliases: []string{"rm"},
			Short:   "Remove TAG from KEY",
			Args:    cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, func(a *app) error {
					if _, err := a.store.RemoveTag(cmd.Context(), args[0], args[1]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed tag '%s' from '%s'\n", args[1], args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rename FROM TO",
			Short: "Rename a tag on every record",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, func(a *app) error {
					n, err := a.store.RenameTag(cmd.Context(), args[0], args[1])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "renamed tag '%s' to '%s' on %d record(s)\n", args[0], args[1], n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete TAG",
			Short: "Delete a tag from every record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, func(a *app) error {
					n, err := a.store.DeleteTag(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted tag '%s' from %d record(s)\n", args[0], n)
					return nil
				})
			},
		},
	)
	return cmd
}

func ttlCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ttl KEY MINUTES",
		Short: "Extend the expiry of KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil || n == 0 {
				return &kvstore.ValidationError{Field: "minutes", Reason: "must be a positive integer"}
			}
			d, err := kvstore.Minutes(n, "minutes")
			if err != nil {
				return err
			}
			return g.run(cmd, func(a *app) error {
				r, err := a.store.ExtendTTL(cmd.Context(), args[0], d)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "extended ttl for '%s' by %d minute(s); expires %s\n",
					args[0], n, r.ExpiresAt.Local().Format(time.RFC3339))
				return nil
			})
		},
	}
}
