package persist

import (
	"fmt"
	"os"
	"path/filepath"
)

// tmpPattern is the temp-file name pattern used for atomic replacement.
const tmpPattern = ".persist-*.tmp"

// FilePerm is the permission mode for persisted companion files.
const FilePerm = 0o600

// WriteFileAtomic fully replaces path with data. The bytes are written to
// a temp file in the same directory and renamed over the target, so a
// reader never observes a partially written file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	if writeErr != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("write temp file: %w", writeErr)
	}

	chmodErr := tmp.Chmod(FilePerm)
	if chmodErr != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("chmod temp file: %w", chmodErr)
	}

	closeErr := tmp.Close()
	if closeErr != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("close temp file: %w", closeErr)
	}

	renameErr := os.Rename(tmpPath, path)
	if renameErr != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("rename temp file: %w", renameErr)
	}

	return nil
}

// SaveState marshals state with the codec, packs it with the container,
// and atomically replaces path.
func SaveState(path string, codec Codec, container Container, state any) error {
	data, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	packed, packErr := container.Pack(data)
	if packErr != nil {
		return fmt.Errorf("pack state: %w", packErr)
	}

	writeErr := WriteFileAtomic(path, packed)
	if writeErr != nil {
		return fmt.Errorf("write state file: %w", writeErr)
	}

	return nil
}

// ReadState reads path, unpacks it with the container, and returns the raw
// encoded bytes for the caller to validate and decode.
func ReadState(path string, container Container) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	raw, unpackErr := container.Unpack(data)
	if unpackErr != nil {
		return nil, fmt.Errorf("unpack state: %w", unpackErr)
	}

	return raw, nil
}
