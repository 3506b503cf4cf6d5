// Package cli wires configuration, storage and the store into the kvstore command.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/motti-landau/kvstore/internal/config"
)

type globals struct {
	configFile string
	namespace  string
	dataFile   string

	stdin io.Reader
}

// Execute runs the command line against the process streams.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globals{stdin: stdin}
	root := &cobra.Command{
		Use:           "kvstore",
		Short:         "Personal key-value notes with tags, expiry and fuzzy search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&g.namespace, "namespace", "n", "", "namespace to operate on (env KVSTORE_NAMESPACE)")
	pf.StringVar(&g.dataFile, "data-file", "", "override the data file path (env KVSTORE_DATA_FILE)")
	pf.StringVar(&g.configFile, "config", "", "settings file (default ./kvstore.toml or ./config/kvstore.toml)")

	root.AddCommand(
		addCommand(g),
		getCommand(g),
		removeCommand(g),
		listCommand(g),
		searchCommand(g),
		liveCommand(g),
		recentCommand(g),
		tagCommand(g),
		ttlCommand(g),
		exportCommand(g),
		importCommand(g),
		htmlCommand(g),
		putFileCommand(g),
		getFileCommand(g),
		serveCommand(g),
	)
	return root
}

// run opens the namespace, calls fn and closes everything again.
func (g *globals) run(cmd *cobra.Command, fn func(a *app) error) (err error) {
	cfg, err := config.Load(config.Options{
		ConfigFile: g.configFile,
		Namespace:  g.namespace,
		DataFile:   g.dataFile,
	})
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.shutdown(); err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
