package contacts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const placeholderHeader = "email,name\n"

// Archive moves consumed recipient sources into archiveDir and leaves an
// empty placeholder behind, so the next run of the same campaign starts from
// a clean recipient set instead of re-sending to the same list.
func Archive(sources []string, archiveDir string, log *logrus.Logger) error {
	if len(sources) == 0 {
		return nil
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("creating archive directory %s: %w", archiveDir, err)
	}

	for _, src := range sources {
		dst := filepath.Join(archiveDir, filepath.Base(src))
		if err := moveFile(src, dst); err != nil {
			return fmt.Errorf("archiving %s: %w", filepath.Base(src), err)
		}
		if err := os.WriteFile(src, []byte(placeholderHeader), 0o644); err != nil {
			return fmt.Errorf("writing placeholder for %s: %w", filepath.Base(src), err)
		}
		log.WithFields(logrus.Fields{
			"source":  filepath.Base(src),
			"archive": archiveDir,
		}).Info("archived consumed recipient source")
	}
	return nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across filesystems; fall back to copy and remove.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
