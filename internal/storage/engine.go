package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StoredFile describes a recording file persisted by the engine.
type StoredFile struct {
	// RelativePath is the path under the engine base, the form persisted in
	// recording metadata so the base directory can move.
	RelativePath string
	// SizeBytes is the encrypted on-disk size, the unit the quota tracks.
	SizeBytes int64
	KeyID     string
	Format    string
	StoredAt  time.Time
}

// Engine persists encrypted recordings under a date-partitioned directory
// tree: {base}/{YYYY}/{MM}/{DD}/call_{id}_{unixts}.{format}. Every store is
// all-or-nothing: the quota reservation, encryption, and file write either
// all succeed or leave no trace.
type Engine struct {
	base   string
	enc    *Encryptor
	usage  *Tracker
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates the storage engine, ensuring the base directory exists.
func NewEngine(base string, enc *Encryptor, usage *Tracker, logger *slog.Logger) (*Engine, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolving storage base: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage base: %w", err)
	}
	return &Engine{
		base:   abs,
		enc:    enc,
		usage:  usage,
		logger: logger.With("subsystem", "storage-engine"),
		now:    time.Now,
	}, nil
}

// Base returns the absolute storage base directory.
func (e *Engine) Base() string {
	return e.base
}

// Store encrypts and writes a finalized recording. The quota check and the
// usage counter update are one atomic reservation, so concurrent stores
// cannot jointly overshoot the quota. On any failure after the reservation
// the counters are rolled back and the partial file removed.
func (e *Engine) Store(callID string, data []byte, format string) (*StoredFile, error) {
	now := e.now()
	rel := filepath.Join(
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()),
		fmt.Sprintf("call_%s_%d.%s", callID, now.Unix(), format),
	)

	size := EncryptedSize(len(data))
	if err := e.usage.Reserve(size); err != nil {
		return nil, err
	}

	encrypted, err := e.enc.Encrypt(data)
	if err != nil {
		e.usage.Release(size)
		return nil, fmt.Errorf("encrypting recording: %w", err)
	}

	abs := filepath.Join(e.base, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		e.usage.Release(size)
		return nil, fmt.Errorf("creating date directory: %w", err)
	}

	if err := writeFileSync(abs, encrypted); err != nil {
		os.Remove(abs) //nolint:errcheck
		e.usage.Release(size)
		return nil, fmt.Errorf("writing recording file: %w", err)
	}

	e.usage.Commit(size)
	e.logger.Info("recording stored",
		"call_id", callID,
		"path", rel,
		"bytes", size,
		"key_id", e.enc.KeyID(),
	)

	return &StoredFile{
		RelativePath: rel,
		SizeBytes:    size,
		KeyID:        e.enc.KeyID(),
		Format:       format,
		StoredAt:     now,
	}, nil
}

// Load reads and decrypts a stored recording by its relative path.
func (e *Engine) Load(relPath string) ([]byte, error) {
	abs, err := e.resolve(relPath)
	if err != nil {
		return nil, err
	}
	encrypted, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading recording file: %w", err)
	}
	data, err := e.enc.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", relPath, err)
	}
	return data, nil
}

// Delete removes a stored recording, updates the usage counters, and prunes
// any date directories left empty.
func (e *Engine) Delete(relPath string) error {
	abs, err := e.resolve(relPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("locating recording file: %w", err)
	}

	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("deleting recording file: %w", err)
	}
	e.usage.RecordDelete(info.Size())
	e.pruneEmptyDirs(filepath.Dir(abs))

	e.logger.Info("recording deleted", "path", relPath, "bytes", info.Size())
	return nil
}

// resolve joins a relative path onto the base, rejecting traversal outside it.
func (e *Engine) resolve(relPath string) (string, error) {
	abs := filepath.Join(e.base, relPath)
	if abs != e.base && !strings.HasPrefix(abs, e.base+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage base", relPath)
	}
	return abs, nil
}

// pruneEmptyDirs removes empty date directories, walking upward until a
// non-empty directory or the base is reached.
func (e *Engine) pruneEmptyDirs(dir string) {
	for dir != e.base && strings.HasPrefix(dir, e.base) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// writeFileSync writes data and fsyncs before close, so a crash cannot leave
// a counted but incomplete file.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}
