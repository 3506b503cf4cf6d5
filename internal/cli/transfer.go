package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/motti-landau/kvstore"
	"github.com/motti-landau/kvstore/exchange"
	"github.com/motti-landau/kvstore/internal/server"
)

func formatFor(name, path string) (exchange.Format, error) {
	if name == "" {
		return exchange.FormatFromPath(path), nil
	}
	return exchange.ParseFormat(name)
}

func exportCommand(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "e PATH",
		Aliases: []string{"export"},
		Short:   "Export all records to a file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatFor(format, args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(a *app) error {
				doc := a.store.Export()
				if err := exchange.WriteFile(args[0], doc, f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", len(doc), args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json, yaml, cbor, msgpack or protobuf (default from extension)")
	return cmd
}

func importCommand(g *globals) *cobra.Command {
	var (
		format  string
		replace bool
	)
	cmd := &cobra.Command{
		Use:     "i PATH",
		Aliases: []string{"import"},
		Short:   "Import records from a file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatFor(format, args[0])
			if err != nil {
				return err
			}
			doc, err := exchange.ReadFile(args[0], f)
			if err != nil {
				return err
			}
			return g.run(cmd, func(a *app) error {
				res, err := a.store.Import(cmd.Context(), doc, kvstore.ImportOptions{Replace: replace})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported entries from %s (created %d, updated %d, removed %d)\n",
					args[0], res.Created, res.Updated, res.Removed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json, yaml, cbor, msgpack or protobuf (default from extension)")
	cmd.Flags().BoolVar(&replace, "replace", false, "remove keys that are not in the file")
	return cmd
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func htmlCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "html PATH",
		Short: "Write a static HTML view of the namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(a *app) error {
				page, err := server.NewView().Render(a.store.Snapshot(), server.PageOptions{
					Namespace:  a.cfg.Namespace,
					DataSource: a.source,
				})
				if err != nil {
					return err
				}
				if err := writeFile(args[0], page); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated HTML view at %s (namespace: %s, data source: %s)\n",
					args[0], a.cfg.Namespace, a.source)
				return nil
			})
		},
	}
}

func markdownPath(path string, anyFile bool, field string) error {
	if anyFile || strings.EqualFold(filepath.Ext(path), ".md") {
		return nil
	}
	return &kvstore.ValidationError{Field: field, Reason: fmt.Sprintf("must end with '.md' (or pass --any-file): %s", path)}
}

func putFileCommand(g *globals) *cobra.Command {
	var (
		tags    []string
		anyFile bool
	)
	cmd := &cobra.Command{
		Use:   "put-file KEY PATH",
		Short: "Store the contents of a Markdown file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := markdownPath(args[1], anyFile, "source file"); err != nil {
				return err
			}
			content, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading source file: %w", err)
			}
			if !cmd.Flags().Changed("tags") {
				tags = nil
			}
			return g.run(cmd, func(a *app) error {
				return put(cmd, a, args[0], string(content), tags, 0)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "tags to set")
	cmd.Flags().BoolVar(&anyFile, "any-file", false, "allow files without a .md extension")
	return cmd
}

func getFileCommand(g *globals) *cobra.Command {
	var anyFile bool
	cmd := &cobra.Command{
		Use:   "get-file KEY PATH",
		Short: "Write the value of KEY to a Markdown file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := markdownPath(args[1], anyFile, "destination file"); err != nil {
				return err
			}
			return g.run(cmd, func(a *app) error {
				r, err := a.store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := writeFile(args[1], []byte(r.Value)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote '%s' to %s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&anyFile, "any-file", false, "allow files without a .md extension")
	return cmd
}
