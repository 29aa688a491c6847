package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"printflog/internal/config"
)

var log = commonlog.GetLogger("printflog.cli")

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
	Verbose    int
	NoColor    bool

	// Config is loaded before any subcommand runs
	Config *config.Config
}

// NewRootCommand creates the printflog command tree
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: config.Default()}

	cmd := &cobra.Command{
		Use:   "printflog",
		Short: "printflog - log printf calls to a file",
		Long: `printflog instruments programs written in textual IR so that every
printf call is also written to log.txt through fprintf.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")
	cmd.PersistentFlags().CountVarP(&opts.Verbose, "verbose", "v", "increase log verbosity (repeatable)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable coloured output")

	cmd.AddCommand(NewInstrumentCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

func (o *RootOptions) setup() error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	o.Config = cfg

	commonlog.Configure(cfg.Log.Verbosity+o.Verbose, cfg.LogPath())

	switch {
	case o.NoColor || cfg.Color == config.ColorNever:
		color.NoColor = true
	case cfg.Color == config.ColorAlways:
		color.NoColor = false
	}
	log.Debugf("configuration loaded from %q", o.ConfigPath)
	return nil
}
