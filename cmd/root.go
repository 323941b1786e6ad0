package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nicklasfrahm/remtar/pkg/engine"
	"github.com/nicklasfrahm/remtar/pkg/ops"
	"github.com/nicklasfrahm/remtar/pkg/sshx"
)

var version = "dev"

var errUsage = errors.New("invalid arguments")

// installFunc performs the installation. It is swapped out in tests.
type installFunc func(ctx context.Context, host string, archivePath string, script string, options ...ops.Option) error

// flags holds the values of all command line flags.
type flags struct {
	configPath     string
	envFile        string
	sshConfigPath  string
	user           string
	port           int
	keyFile        string
	fingerprint    string
	knownHosts     string
	insecure       bool
	agent          bool
	remoteDir      string
	workDir        string
	scriptMode     string
	connectTimeout time.Duration
	execTimeout    time.Duration
	keepGoing      bool
	keepExtracted  bool
	verbose        bool
}

// overrides converts the flags into configuration values that take
// precedence over all other sources.
func (f *flags) overrides() (*engine.Config, error) {
	config := &engine.Config{
		SSH: sshx.Config{
			User:        f.user,
			Port:        f.port,
			KeyFile:     f.keyFile,
			Fingerprint: f.fingerprint,
			KnownHosts:  f.knownHosts,
			Insecure:    f.insecure,
			Agent:       f.agent,
		},
		RemoteDir:      f.remoteDir,
		WorkDir:        f.workDir,
		ConnectTimeout: f.connectTimeout,
		ExecTimeout:    f.execTimeout,
		KeepGoing:      f.keepGoing,
		KeepExtracted:  f.keepExtracted,
	}

	if f.scriptMode != "" {
		mode, err := engine.ParseMode(f.scriptMode)
		if err != nil {
			return nil, err
		}
		config.ScriptMode = mode
	}

	return config, nil
}

func newRootCmd(install installFunc) *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   ops.Program + " <host> <archive.tar.gz> <install-script>",
		Short: "Install a tarball on a remote host",
		Long: `Install a tarball on a remote host by running the
install script that it contains.

The archive is unpacked locally to obtain the script.
Then the archive and the script are copied to the
remote directory via SFTP, the script is made
executable and run. Its output is streamed back.
Finally the unpacked archive is removed again.

Credentials are read from the REMTAR_PASSWORD and
REMTAR_PASSPHRASE environment variables, a ".env"
file, or the "remtar.yml" config file. Host keys
are verified against ~/.ssh/known_hosts unless a
fingerprint is pinned or --insecure is given.

Boolean flags can only enable an option. An option
enabled in the config file cannot be disabled here.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 {
				err := fmt.Errorf("%w: expected 3, got %d", errUsage, len(args))
				return errors.Join(err, cmd.Usage())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if f.verbose {
				level = zerolog.DebugLevel
			}
			logger := log.Output(zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: time.RFC3339,
			}).Level(level)

			overrides, err := f.overrides()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := []ops.Option{
				ops.WithLogger(&logger),
				ops.WithOverrides(overrides),
			}

			if cmd.Flags().Changed("ssh-config") {
				opts = append(opts, ops.WithSSHConfigPath(f.sshConfigPath))
			}

			// Use manual override for config path if provided.
			if f.configPath != "" {
				opts = append(opts, ops.WithConfigPath(f.configPath))
			}
			if f.envFile != "" {
				opts = append(opts, ops.WithEnvFile(f.envFile))
			}

			return install(ctx, args[0], args[1], args[2], opts...)
		},
		Version:      version,
		SilenceUsage: true,
	}

	// The usage goes to stdout, errors to stderr.
	cmd.SetOut(os.Stdout)

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "path to the config file (default \""+ops.DefaultConfigPath+"\" if present)")
	fl.StringVar(&f.envFile, "env-file", "", "path to a dotenv file with credentials (default \""+ops.DefaultEnvFile+"\" if present)")
	fl.StringVar(&f.sshConfigPath, "ssh-config", sshx.DefaultSSHConfig, "OpenSSH client config used to resolve host aliases, empty to disable")
	fl.StringVarP(&f.user, "user", "u", "", "remote user (default \""+sshx.DefaultUser+"\")")
	fl.IntVarP(&f.port, "port", "p", 0, "remote SSH port (default 22)")
	fl.StringVarP(&f.keyFile, "key-file", "i", "", "private key used for authentication")
	fl.StringVar(&f.fingerprint, "fingerprint", "", "expected SHA256 fingerprint of the host key")
	fl.StringVar(&f.knownHosts, "known-hosts", "", "known hosts file (default \""+sshx.DefaultKnownHosts+"\")")
	fl.BoolVar(&f.insecure, "insecure", false, "skip host key verification")
	fl.BoolVar(&f.agent, "agent", false, "authenticate with the SSH agent at $SSH_AUTH_SOCK")
	fl.StringVar(&f.remoteDir, "remote-dir", "", "remote directory for the archive and the script (default \""+engine.DefaultRemoteDir+"\")")
	fl.StringVar(&f.workDir, "work-dir", "", "local directory to unpack the archive in (default \".\")")
	fl.StringVar(&f.scriptMode, "script-mode", "", "octal mode applied to the remote script (default \""+engine.DefaultScriptMode.String()+"\")")
	fl.DurationVar(&f.connectTimeout, "connect-timeout", 0, "timeout for establishing the connection (default 5s)")
	fl.DurationVar(&f.execTimeout, "timeout", 0, "timeout for running the script, zero means none")
	fl.BoolVar(&f.keepGoing, "keep-going", false, "run all stages even if one fails")
	fl.BoolVar(&f.keepExtracted, "keep-extracted", false, "do not remove the unpacked archive")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

var rootCmd = newRootCmd(ops.Install)

// Execute starts the invocation of the command line interface.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
