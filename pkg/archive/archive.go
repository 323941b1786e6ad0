// Package archive unpacks and packs gzip-compressed tarballs.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	// Suffix is the only archive extension that is understood.
	Suffix = ".tar.gz"
)

var (
	// ErrUnsupportedArchive is returned if an archive path does
	// not end in Suffix.
	ErrUnsupportedArchive = errors.New("archive must end in " + Suffix)
	// ErrUnsafePath is returned if an archive entry would be
	// written outside of the destination directory.
	ErrUnsafePath = errors.New("archive entry escapes destination")
)

// FolderName returns the name of the folder that the archive
// unpacks into, which is the base name of the archive without
// its suffix. For "dist/payload.tar.gz" this is "payload".
func FolderName(archivePath string) (string, error) {
	base := filepath.Base(archivePath)
	if !strings.HasSuffix(base, Suffix) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedArchive, archivePath)
	}

	name := strings.TrimSuffix(base, Suffix)
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedArchive, archivePath)
	}

	return name, nil
}

// Extract unpacks the archive at archivePath into destDir and
// returns the paths of all directories and files it wrote.
// Existing files are overwritten. Links and special files are
// skipped.
func Extract(fs afero.Fs, archivePath string, destDir string) ([]string, error) {
	file, err := fs.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", archivePath, err)
	}
	defer gzipReader.Close()

	var written []string
	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, fmt.Errorf("failed to read %s: %w", archivePath, err)
		}

		target, err := securePath(destDir, header.Name)
		if err != nil {
			return written, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(target, 0755); err != nil {
				return written, fmt.Errorf("failed to create directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := writeFile(fs, target, tarReader, os.FileMode(header.Mode).Perm()); err != nil {
				return written, fmt.Errorf("failed to extract %s: %w", header.Name, err)
			}
		default:
			continue
		}

		written = append(written, target)
	}

	return written, nil
}

// Create packs the directory tree at srcDir into a new archive
// at archivePath. Entry names are relative to the parent of
// srcDir, so the archive unpacks into a folder named like srcDir.
func Create(fs afero.Fs, archivePath string, srcDir string) error {
	file, err := fs.Create(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzipWriter)

	root := filepath.Dir(filepath.Clean(srcDir))
	err = afero.Walk(fs, srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		name, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(name)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		src, err := fs.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(tarWriter, src)
		return err
	})
	if err != nil {
		return err
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}

	return gzipWriter.Close()
}

// securePath joins name onto destDir and makes sure that the
// result does not leave destDir.
func securePath(destDir string, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	target := filepath.Join(destDir, name)

	rel, err := filepath.Rel(filepath.Clean(destDir), target)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	return target, nil
}

func writeFile(fs afero.Fs, target string, r io.Reader, mode os.FileMode) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	if mode == 0 {
		mode = 0644
	}

	out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
