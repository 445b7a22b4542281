// Package cli wires the verstamp commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/Oudwins/verstamp/internals/buildinfo"
	"github.com/Oudwins/verstamp/internals/conf"
	"github.com/Oudwins/verstamp/internals/env"
	"github.com/Oudwins/verstamp/internals/logger"
	"github.com/Oudwins/verstamp/internals/repo"
	"github.com/Oudwins/verstamp/internals/resolver"
	"github.com/Oudwins/verstamp/internals/sink"
)

var ErrUsage = errors.New("usage:\n  verstamp get [DIR]\n  verstamp set [DIR] [VERSION]\n  verstamp version")

// Deps are the seams the commands use. Zero values mean the real thing.
type Deps struct {
	Now    func() time.Time
	Runner sink.Runner
}

type options struct {
	vcs     string
	envFile string
	verbose bool
	timeout time.Duration
}

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w\n%s", ErrUsage, fmt.Sprintf(format, args...))
}

func NewRootCmd(deps Deps) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "verstamp",
		Short:         "Compute a major.minor.build.revision version and stamp it into a Meson project",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageError("missing command")
		},
	}
	root.PersistentFlags().StringVar(&opts.vcs, "vcs", "", "source control backend: auto, gogit, git or none")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "read variables from a dotenv file; the process environment wins")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log resolution steps to stderr")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError("%v", err)
	})

	root.AddCommand(newGetCmd(opts, deps), newSetCmd(opts, deps), newVersionCmd())
	return root
}

func newGetCmd(opts *options, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "get [DIR]",
		Short: "Print the current version",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := argOr(args, 0, ".")
			res, err := opts.resolver(cmd, deps, dir)
			if err != nil {
				return err
			}
			v, err := res.Resolve(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.String())
			return nil
		},
	}
}

func newSetCmd(opts *options, deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [DIR] [VERSION]",
		Short: "Write the current or given version into the Meson project",
		Args:  maxArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := argOr(args, 0, ".")
			res, err := opts.resolver(cmd, deps, dir)
			if err != nil {
				return err
			}
			return res.Publish(cmd.Context(), dir, argOr(args, 1, ""))
		},
	}
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "stop the rewrite after this long (default from verstamp.json, 2m)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the verstamp build version",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Version())
			return nil
		},
	}
}

// resolver assembles a Resolver from flags, environment and the project
// config file. Flags win over the environment, which wins over the file.
func (o *options) resolver(cmd *cobra.Command, deps Deps, dir string) (*resolver.Resolver, error) {
	log := logger.New(cmd.ErrOrStderr(), o.verbose)

	vars, err := env.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	cfg, err := conf.Load(dir)
	if err != nil {
		return nil, err
	}

	kind := cfg.VCS
	if vars.VCS != "" {
		kind = repo.Kind(vars.VCS)
	}
	if cmd.Flags().Changed("vcs") {
		kind = repo.Kind(o.vcs)
		if !slices.Contains(repo.Kinds(), kind) {
			return nil, usageError("unknown --vcs %q", o.vcs)
		}
	}

	timeout := cfg.Timeout
	if f := cmd.Flags().Lookup("timeout"); f != nil && f.Changed {
		timeout = o.timeout
	}

	runner := deps.Runner
	if runner == nil {
		execRunner := sink.NewExecRunner(sink.CommandFromEnv(vars.Rewrite), timeout)
		execRunner.Stdout = cmd.OutOrStdout()
		execRunner.Stderr = cmd.ErrOrStderr()
		runner = execRunner
	}

	log.Debug("configured", slog.String("dir", dir), slog.String("vcs", string(kind)), slog.Duration("rewrite_timeout", timeout))
	return &resolver.Resolver{
		Reader:      repo.Probe(kind, log),
		Overrides:   resolver.Overrides{Major: vars.Major, Minor: vars.Minor},
		Now:         deps.Now,
		Runner:      runner,
		RewriteRoot: vars.RewriteRoot,
		Logger:      log,
	}, nil
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			return usageError("%s takes at most %d argument(s), got %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

func argOr(args []string, i int, fallback string) string {
	if i < len(args) && args[i] != "" {
		return args[i]
	}
	return fallback
}

// Run executes the command line in args against the real process.
func Run(ctx context.Context, args []string) error {
	root := NewRootCmd(Deps{})
	root.SetArgs(args)
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	return root.ExecuteContext(ctx)
}

// ExitCode maps an error returned by Run to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *sink.ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code
	}
	if errors.Is(err, ErrUsage) {
		return 2
	}
	return 1
}

// PrintError writes err for a human on w.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "verstamp: %v\n", err)
}
