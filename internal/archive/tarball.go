package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// memberMode is the permission recorded for the archived binary.
const memberMode = 0o755

// archivePermissions applies to the finished tarball on disk.
const archivePermissions os.FileMode = 0o644

// deterministicTimestamp is the member modification time recorded in every
// archive. Pinning it (together with fixed ownership fields and the USTAR
// format) makes repeated builds over identical binaries byte-identical,
// which the re-run guarantees of the pipeline depend on.
var deterministicTimestamp = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// PackBinary archives the binary at src into a gzip-compressed tarball at
// dest containing a single member named memberName with mode 0755.
// The tarball is written to a temp file next to dest and renamed into place,
// then its SHA-256 digest is returned as lowercase hex.
func PackBinary(src, dest, memberName string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open binary: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("stat binary: %w", err)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", src)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".archive-*")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}

	tmpPath := tmp.Name()
	if err = writeTarGz(tmp, in, info.Size(), memberName); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)

		return "", err
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)

		return "", fmt.Errorf("sync archive: %w", err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return "", fmt.Errorf("close archive: %w", err)
	}

	if err = os.Chmod(tmpPath, archivePermissions); err != nil {
		_ = os.Remove(tmpPath)

		return "", fmt.Errorf("chmod archive: %w", err)
	}

	if err = os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)

		return "", fmt.Errorf("replace archive: %w", err)
	}

	return FileSHA256(dest)
}

// writeTarGz streams a single fixed-header tar member through gzip.
// The gzip stream carries no name and a zero mtime, so the output depends
// only on the member payload.
func writeTarGz(w io.Writer, payload io.Reader, size int64, memberName string) error {
	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	header := &tar.Header{
		Name:    memberName,
		Mode:    memberMode,
		Size:    size,
		ModTime: deterministicTimestamp,
		Format:  tar.FormatUSTAR,
	}

	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("write archive header: %w", err)
	}

	if _, err := io.Copy(tarWriter, payload); err != nil {
		return fmt.Errorf("write archive member: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("finish tar stream: %w", err)
	}

	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("finish gzip stream: %w", err)
	}

	return nil
}

// FileSHA256 returns the lowercase hex SHA-256 digest of a file's contents.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	digest := sha256.New()
	if _, err = io.Copy(digest, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}
