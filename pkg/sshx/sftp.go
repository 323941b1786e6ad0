package sshx

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var errNoChannel = errors.New("sftp channel not open")

// Upload writes the content of the reader to the remote path,
// replacing any existing file, and applies the requested mode.
func (client *Client) Upload(remotePath string, r io.Reader, mode os.FileMode) error {
	if client.sftp == nil || client.closed {
		return errNoChannel
	}

	dst, err := client.sftp.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}

	written, err := io.Copy(dst, r)
	if err != nil {
		dst.Close()
		return fmt.Errorf("failed to write remote file %s: %w", remotePath, err)
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close remote file %s: %w", remotePath, err)
	}

	if err := client.sftp.Chmod(remotePath, mode); err != nil {
		return fmt.Errorf("failed to set mode of %s: %w", remotePath, err)
	}

	client.Logger.Debug().Str("path", remotePath).Int64("bytes", written).Msg("File transferred")

	return nil
}

// Chmod changes the permission bits of a remote file.
func (client *Client) Chmod(remotePath string, mode os.FileMode) error {
	if client.sftp == nil || client.closed {
		return errNoChannel
	}

	return client.sftp.Chmod(remotePath, mode)
}

// Stat returns information about a remote file.
func (client *Client) Stat(remotePath string) (os.FileInfo, error) {
	if client.sftp == nil || client.closed {
		return nil, errNoChannel
	}

	return client.sftp.Stat(remotePath)
}
