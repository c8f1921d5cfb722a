// Command tdsctl drives a Tektronix TDS540 behind a Prologix GPIB adapter,
// locally or as an HTTP server
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"
	yml "gopkg.in/yaml.v2"

	"github.com/budker-phys/gpiblab/client"
	"github.com/budker-phys/gpiblab/log"
	"github.com/budker-phys/gpiblab/server"
	"github.com/budker-phys/gpiblab/tektronix"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "tdsctl.yml"

	logLevel string
	cfg      Config
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal("%v", err)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tdsctl",
		Short: "tdsctl talks to a TDS540 oscilloscope over GPIB",
		Long: `tdsctl talks to a Tektronix TDS540 oscilloscope through a Prologix GPIB
adapter, either directly or by exposing it over HTTP so that clients in any
language can configure it and read waveforms.

Configuration is read from tdsctl.yml, if present, and then from TDSCTL_
environment variables; TDSCTL_INSTRUMENT__ADDR=/dev/ttyUSB0 sets
Instrument.Addr.  Set Mock to true to run against the built-in simulator.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			_, cfg, err = LoadConfig(ConfigFileName)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			return log.Init(os.Stderr, cfg.LogLevel)
		},
	}
	root.PersistentFlags().StringVar(&ConfigFileName, "config", ConfigFileName, "path to the YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "one of error, warning, info, debug; overrides LogLevel")
	root.AddCommand(
		newServeCommand(),
		newSyncCommand(),
		newVerifyCommand(),
		newCurveCommand(),
		newRawCommand(),
		newRemoteCommand(),
		newMkconfCommand(),
		newConfCommand(),
		newVersionCommand(),
	)
	return root
}

// withScope opens the configured scope for the duration of fcn
func withScope(fcn func(*tektronix.TDS540) error) error {
	scope, dev, err := cfg.Open()
	if err != nil {
		return err
	}
	defer dev.Close()
	return fcn(scope)
}

func printYAML(v interface{}) error {
	return yml.NewEncoder(os.Stdout).Encode(v)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the scope over HTTP on Addr",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScope(func(scope *tektronix.TDS540) error {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
				defer stop()
				mux := server.BuildMux(server.Node{
					Endpoint: cfg.Endpoint,
					HTTPer:   tektronix.NewHTTPWrapper(scope),
				})
				return server.ListenAndServe(ctx, cfg.Addr, mux)
			})
		},
	}
}

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Read the scope's configuration and print it as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScope(func(scope *tektronix.TDS540) error {
				return printYAML(scope.Settings())
			})
		},
	}
}

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every cached setting against the scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScope(func(scope *tektronix.TDS540) error {
				ok, err := scope.VerifyAllFields()
				if err != nil {
					return err
				}
				if ok {
					fmt.Println("all settings agree")
				} else {
					fmt.Println("some settings were changed on the scope, now:")
				}
				return printYAML(scope.Settings())
			})
		},
	}
}

func newCurveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "curve [source...]",
		Short: "Acquire a waveform and write it to stdout as CSV",
		Long: `curve reads the given sources, or the configured data sources if none are
given, scales them to volts and writes one column per source after a time
column.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScope(func(scope *tektronix.TDS540) error {
				// debug output on stderr would tear through the spinner
				if log.CurrentLevel() >= log.DebugLevel {
					wav, err := scope.AcquireWaveform(args...)
					if err != nil {
						return err
					}
					return wav.EncodeCSV(os.Stdout)
				}
				spinner, err := yacspin.New(yacspin.Config{
					Frequency:     100 * time.Millisecond,
					CharSet:       yacspin.CharSets[11],
					Suffix:        " reading waveform",
					StopCharacter: "✓",
					Writer:        os.Stderr,
				})
				if err != nil {
					return err
				}
				spinner.Start()
				wav, err := scope.AcquireWaveform(args...)
				if err != nil {
					spinner.StopFail()
					return err
				}
				spinner.Stop()
				return wav.EncodeCSV(os.Stdout)
			})
		},
	}
}

func newRawCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "raw <command>",
		Short: "Send a command to the scope, printing the reply to queries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScope(func(scope *tektronix.TDS540) error {
				resp, err := scope.Raw(args[0])
				if err != nil {
					return err
				}
				if resp != "" {
					fmt.Println(resp)
				}
				return nil
			})
		},
	}
}

func newRemoteCommand() *cobra.Command {
	var url string
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a scope served by tdsctl serve",
	}
	remote.PersistentFlags().StringVar(&url, "url", "http://localhost:8000/scope", "URL the scope is mounted at")
	remote.AddCommand(&cobra.Command{
		Use:   "settings",
		Short: "Print the server's cached configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client.New(url).Settings()
			if err != nil {
				return err
			}
			return printYAML(s)
		},
	}, &cobra.Command{
		Use:   "curve [source...]",
		Short: "Write a waveform from the server to stdout as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.New(url).WaveformCSV(os.Stdout, args...)
		},
	})
	return remote
}

func newMkconfCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mkconf",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(ConfigFileName)
			if err != nil {
				return err
			}
			defer f.Close()
			return yml.NewEncoder(f).Encode(cfg)
		},
	}
}

func newConfCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conf",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printYAML(cfg)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tdsctl version %v\n", Version)
		},
	}
}
