package store

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	indexSuffix   = ".index"
	sidecarSuffix = ".meta.json"

	artifactVersion uint8 = 1
)

var artifactMagic = [4]byte{'O', 'D', 'V', 'X'}

// artifactHeader prefixes the binary index artifact.
type artifactHeader struct {
	Magic   [4]byte
	Version uint8
	Kind    uint8
	Dim     uint32
	Count   uint32
}

func kindByte(b Backend) uint8 {
	if b == BackendHNSW {
		return 1
	}
	return 0
}

func kindFromByte(k uint8) (Backend, error) {
	switch k {
	case 0:
		return BackendFlat, nil
	case 1:
		return BackendHNSW, nil
	default:
		return "", fmt.Errorf("unknown backend kind %d", k)
	}
}

// sidecar is the JSON companion of the binary artifact.
type sidecar struct {
	Texts []string `json:"texts"`
	Metas []Meta   `json:"metas"`
	Dim   int      `json:"dim"`
}

// writeAtomic writes through a temp file in the target directory and renames
// it over path, so readers never observe a partial file.
func writeAtomic(path string, fill func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = fill(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func writeIndexArtifact(path string, b vectorBackend, dim int) error {
	return writeAtomic(path, func(w io.Writer) error {
		hdr := artifactHeader{
			Magic:   artifactMagic,
			Version: artifactVersion,
			Kind:    kindByte(b.kind()),
			Dim:     uint32(dim),
			Count:   uint32(b.len()),
		}
		if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		return b.encode(w)
	})
}

func readIndexArtifact(path string) (vectorBackend, artifactHeader, error) {
	var hdr artifactHeader

	f, err := os.Open(path)
	if err != nil {
		return nil, hdr, err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, hdr, fmt.Errorf("read header: %w", err)
	}
	if hdr.Magic != artifactMagic {
		return nil, hdr, fmt.Errorf("not an index artifact")
	}
	if hdr.Version != artifactVersion {
		return nil, hdr, fmt.Errorf("unsupported artifact version %d", hdr.Version)
	}
	kind, err := kindFromByte(hdr.Kind)
	if err != nil {
		return nil, hdr, err
	}
	if hdr.Dim == 0 {
		return nil, hdr, fmt.Errorf("artifact has zero dimension")
	}

	if kind == BackendFlat {
		st, err := f.Stat()
		if err != nil {
			return nil, hdr, err
		}
		want := int64(binary.Size(hdr)) + int64(hdr.Count)*int64(hdr.Dim)*4
		if st.Size() != want {
			return nil, hdr, fmt.Errorf("artifact is %d bytes, expected %d for %d vectors of dim %d",
				st.Size(), want, hdr.Count, hdr.Dim)
		}
	}

	b := newBackend(kind, int(hdr.Dim))
	if err := b.decode(r, int(hdr.Count)); err != nil {
		return nil, hdr, err
	}
	return b, hdr, nil
}

func writeSidecar(path string, sc sidecar) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func readSidecar(path string) (sidecar, error) {
	var sc sidecar
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, err
	}
	if err := json.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("decode sidecar: %w", err)
	}
	return sc, nil
}
