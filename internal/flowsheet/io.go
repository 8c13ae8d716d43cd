package flowsheet

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Load reads a flowsheet document from path. Compressed documents are
// detected by the gzip magic bytes, so callers never need to know how a
// document was saved.
func Load(path string) (*Flowsheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if bytes.HasPrefix(data, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
	}

	var fs Flowsheet
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	fs.reindex()
	if err := fs.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	fs.Path = path
	return &fs, nil
}

// Save writes the flowsheet to path, gzip-wrapped when compressed is true.
// An existing file at path is overwritten.
func Save(fs *Flowsheet, path string, compressed bool) error {
	data, err := yaml.Marshal(fs)
	if err != nil {
		return err
	}

	if compressed {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		data = buf.Bytes()
	}

	return os.WriteFile(path, data, 0644)
}
