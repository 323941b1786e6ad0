package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/nicklasfrahm/remtar/pkg/archive"
	"github.com/nicklasfrahm/remtar/pkg/sshx"
)

// Engine is a type that encapsulates the installation logic.
type Engine struct {
	Logger *zerolog.Logger

	dialer Dialer
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer

	Spec *Config
}

// New creates a new Engine.
func New(options ...Option) (*Engine, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Logger: opts.Logger,
		dialer: opts.Dialer,
		fs:     opts.Fs,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
	}, nil
}

// SetSpec configures the run. Note that the config will
// only be applied if the verification succeeds.
func (e *Engine) SetSpec(config *Config) error {
	if err := config.Verify(); err != nil {
		return err
	}

	e.Spec = config

	return nil
}

// Plan contains the local and remote paths of a run.
type Plan struct {
	Archive       string
	Folder        string
	Script        string
	RemoteArchive string
	RemoteScript  string
}

// NewPlan derives all paths for installing the script of
// the archive into the remote directory.
func (e *Engine) NewPlan(archivePath string, script string) (*Plan, error) {
	if e.Spec == nil {
		return nil, errors.New("no configuration set")
	}

	folder, err := archive.FolderName(archivePath)
	if err != nil {
		return nil, err
	}

	script = filepath.Clean(script)
	if script == "." || filepath.IsAbs(script) || script == ".." || strings.HasPrefix(script, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("script must be a path inside the archive folder: %q", script)
	}

	return &Plan{
		Archive:       archivePath,
		Folder:        filepath.Join(e.Spec.WorkDir, folder),
		Script:        filepath.Join(e.Spec.WorkDir, folder, script),
		RemoteArchive: path.Join(e.Spec.RemoteDir, filepath.Base(archivePath)),
		RemoteScript:  path.Join(e.Spec.RemoteDir, filepath.Base(script)),
	}, nil
}

// run holds the state of a single invocation of Engine.Run.
type run struct {
	*Engine

	ctx     context.Context
	logger  zerolog.Logger
	plan    *Plan
	report  *Report
	session Session

	// extracted is set once the archive wrote into the work directory.
	extracted bool
}

// Run unpacks the archive, copies the archive and the script to
// the host, runs the script and removes the unpacked archive.
// The session is released exactly once, if it was established.
// The returned report is never nil if the plan is valid.
func (e *Engine) Run(ctx context.Context, archivePath string, script string) (*Report, error) {
	plan, err := e.NewPlan(archivePath, script)
	if err != nil {
		return nil, err
	}

	r := &run{
		Engine: e,
		ctx:    ctx,
		logger: e.Logger.With().Str("host", e.Spec.SSH.Host).Logger(),
		plan:   plan,
		report: &Report{},
	}
	defer r.disconnect()

	r.stage(StageExtract, r.extract)
	r.stage(StageConnect, r.connect)
	r.stage(StageTransfer, r.transfer)
	r.stage(StagePermission, r.permit)
	r.stage(StageExecute, r.execute)

	// A folder that the archive never wrote to may belong to the user.
	if e.Spec.KeepExtracted || !r.extracted {
		r.report.add(StageResult{Stage: StageCleanup, Skipped: true})
	} else {
		r.always(StageCleanup, r.cleanup)
	}

	return r.report, r.report.Err()
}

// stage runs fn unless an earlier stage failed and the
// engine is not configured to keep going.
func (r *run) stage(stage Stage, fn func() error) {
	if r.report.Failed() && !r.Spec.KeepGoing {
		r.logger.Debug().Str("stage", string(stage)).Msg("Skipping stage")
		r.report.add(StageResult{Stage: stage, Skipped: true})
		return
	}

	r.always(stage, fn)
}

// always runs fn regardless of the outcome of earlier stages.
func (r *run) always(stage Stage, fn func() error) {
	start := time.Now()
	err := fn()

	if err != nil {
		r.logger.Error().Err(err).Str("stage", string(stage)).Msg("Stage failed")
	}

	r.report.add(StageResult{
		Stage:    stage,
		Err:      err,
		Duration: time.Since(start),
	})
}

func (r *run) extract() error {
	r.logger.Info().Str("archive", r.plan.Archive).Msg("Extracting archive")

	files, err := archive.Extract(r.fs, r.plan.Archive, r.Spec.WorkDir)
	r.extracted = len(files) > 0
	if err != nil {
		return err
	}

	r.logger.Debug().Int("entries", len(files)).Msg("Archive extracted")

	return nil
}

func (r *run) connect() error {
	r.logger.Info().Msg("Connecting to host")

	session, err := r.dialer(r.Spec, &r.logger)
	if err != nil {
		return err
	}
	r.session = session

	return nil
}

func (r *run) transfer() error {
	if r.session == nil {
		return ErrNotConnected
	}

	// A failed upload does not prevent the next one.
	return errors.Join(
		r.upload(r.plan.Archive, r.plan.RemoteArchive),
		r.upload(r.plan.Script, r.plan.RemoteScript),
	)
}

func (r *run) upload(localPath string, remotePath string) error {
	file, err := r.fs.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := r.session.Upload(remotePath, file, os.FileMode(r.Spec.UploadMode)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", localPath, err)
	}

	r.logger.Info().Str("file", localPath).Str("remote", remotePath).Msg("File transferred")

	return nil
}

func (r *run) permit() error {
	if r.session == nil {
		return ErrNotConnected
	}

	r.logger.Info().Str("script", r.plan.RemoteScript).Str("mode", r.Spec.ScriptMode.String()).Msg("Setting permissions")

	return r.session.Chmod(r.plan.RemoteScript, os.FileMode(r.Spec.ScriptMode))
}

func (r *run) execute() error {
	if r.session == nil {
		return ErrNotConnected
	}

	ctx := r.ctx
	if r.Spec.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Spec.ExecTimeout)
		defer cancel()
	}

	r.logger.Info().Str("script", r.plan.RemoteScript).Msg("Running installation script")

	return r.session.Do(ctx, sshx.Cmd{
		Path:   r.plan.RemoteScript,
		Stdout: r.stdout,
		Stderr: r.stderr,
	})
}

func (r *run) cleanup() error {
	r.logger.Info().Str("folder", r.plan.Folder).Msg("Cleaning up extracted files")

	return r.fs.RemoveAll(r.plan.Folder)
}

func (r *run) disconnect() {
	if r.session == nil {
		return
	}

	if err := r.session.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to close session")
	}
	r.session = nil
}
