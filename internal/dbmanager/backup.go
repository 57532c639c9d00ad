package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	_ "modernc.org/sqlite"
)

const backupTimeLayout = "20060102T150405"

// Backup writes a consistent copy of the database at dbPath into dir and
// returns the path of the copy. The source is read through its own read-only
// handle so the live connection is not disturbed. The copy is written next
// to its final name and moved into place atomically.
func Backup(ctx context.Context, dbPath, dir, version string, now time.Time) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dbPath, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	name := fmt.Sprintf("%s_%s_%s.db", base, now.UTC().Format(backupTimeLayout), sanitizeVersion(version))
	dest := filepath.Join(dir, name)
	tmp := dest + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("clearing %s: %w", tmp, err)
	}

	src, err := sql.Open("sqlite", "file:"+abs+"?mode=ro")
	if err != nil {
		return "", fmt.Errorf("opening %s read-only: %w", dbPath, err)
	}
	defer src.Close()

	if _, err := src.ExecContext(ctx, "VACUUM INTO "+quoteLiteral(tmp)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("backing up %s: %w", dbPath, err)
	}
	if err := atomic.ReplaceFile(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("placing backup %s: %w", dest, err)
	}
	return dest, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func sanitizeVersion(v string) string {
	if v == "" {
		return "unversioned"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, v)
}
