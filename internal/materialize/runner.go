package materialize

import (
	"archive/tar"
	"bytes"
	"context"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
)

// ExecResult is the captured outcome of one command run in the tool
// container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

type execOptions struct {
	WorkDir string
	Timeout time.Duration
}

type ExecOpt func(*execOptions)

func WithWorkDir(dir string) ExecOpt {
	return func(o *execOptions) { o.WorkDir = dir }
}

func WithTimeout(d time.Duration) ExecOpt {
	return func(o *execOptions) { o.Timeout = d }
}

// Runner executes commands in, and copies files into, the transformation
// tool container.
type Runner interface {
	Sh(ctx context.Context, containerName, script string, opts ...ExecOpt) (*ExecResult, error)
	CopyTo(ctx context.Context, containerName, dstPath string, content []byte, filename string) error
}

type dockerRunner struct {
	cli *client.Client
}

func NewDockerRunner(cli *client.Client) Runner {
	return &dockerRunner{cli: cli}
}

func (d *dockerRunner) Sh(ctx context.Context, containerName, script string, opts ...ExecOpt) (*ExecResult, error) {
	o := &execOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	created, err := d.cli.ContainerExecCreate(ctx, containerName, container.ExecOptions{
		Cmd:          []string{"sh", "-lc", script},
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   o.WorkDir,
	})
	if err != nil {
		return nil, errors.Wrap(err, "exec create")
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "exec attach")
	}
	defer attach.Close()

	var outBuf, errBuf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&outBuf, &errBuf, attach.Reader)
		done <- copyErr
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, errors.Wrap(err, "exec stream")
		}
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, errors.Wrap(err, "exec inspect")
	}
	return &ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
	}, nil
}

func (d *dockerRunner) CopyTo(ctx context.Context, containerName, dstPath string, content []byte, filename string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: filename,
		Mode: 0644,
		Size: int64(len(content)),
	}); err != nil {
		return errors.Wrap(err, "tar write header")
	}
	if _, err := tw.Write(content); err != nil {
		return errors.Wrap(err, "tar write content")
	}
	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "tar close")
	}

	err := d.cli.CopyToContainer(ctx, containerName, dstPath, &buf, container.CopyToContainerOptions{})
	return errors.Wrap(err, "copy to container")
}
