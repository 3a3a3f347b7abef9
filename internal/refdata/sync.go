package refdata

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/fetcher"
)

// Sync downloads a fresh division snapshot, validates it, and atomically
// replaces the file at dest. When the fetcher supports conditional downloads
// and a previous sync left an ETag sidecar, an unchanged snapshot is reloaded
// from disk without a transfer. The running process keeps its loaded table;
// the new snapshot takes effect on next start.
func Sync(ctx context.Context, f fetcher.Fetcher, sourceURL, dest string) (*Table, error) {
	etagPath := dest + ".etag"

	var (
		body    io.ReadCloser
		newETag string
		err     error
	)
	if cf, ok := f.(fetcher.ConditionalFetcher); ok {
		// The sidecar only counts when the snapshot it describes is still there.
		prev := ""
		if _, statErr := os.Stat(dest); statErr == nil {
			prev = readETagSidecar(etagPath)
		}
		var changed bool
		body, newETag, changed, err = cf.DownloadIfChanged(ctx, sourceURL, prev)
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: download snapshot %s", sourceURL)
		}
		if !changed {
			zap.L().Info("refdata: snapshot unchanged", zap.String("source", sourceURL))
			return LoadFile(dest)
		}
	} else {
		body, err = f.Download(ctx, sourceURL)
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: download snapshot %s", sourceURL)
		}
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: read snapshot body")
	}

	// Validate before touching the destination.
	table, err := parse(data)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".snapshot-*.yaml")
	if err != nil {
		return nil, eris.Wrap(err, "refdata: create temp snapshot")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, eris.Wrap(err, "refdata: write temp snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, eris.Wrap(err, "refdata: close temp snapshot")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return nil, eris.Wrap(err, "refdata: replace snapshot")
	}

	if newETag != "" {
		if err := os.WriteFile(etagPath, []byte(newETag), 0o644); err != nil {
			zap.L().Warn("refdata: etag sidecar write failed", zap.Error(err))
		}
	}

	zap.L().Info("refdata: snapshot synced",
		zap.String("version", table.Version()),
		zap.Int("divisions", table.Len()),
		zap.String("dest", dest),
	)
	return table, nil
}

func readETagSidecar(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
