package wind

import (
	"archive/tar"
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ManifestName is the archive member describing the dataset layout.
const ManifestName = "manifest.json"

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Manifest lists the forecast times of a dataset archive and, for each, the
// gribp member holding every pressure level.
type Manifest struct {
	ValidityHours float64            `json:"validity_hours"`
	Snapshots     []ManifestSnapshot `json:"snapshots"`
}

// ManifestSnapshot maps pressure levels (hPa, as decimal strings) to archive
// member names for one forecast time.
type ManifestSnapshot struct {
	ValidTime time.Time         `json:"valid_time"`
	Files     map[string]string `json:"files"`
}

// LevelFileName returns the conventional gribp name for one level of base.
func LevelFileName(base string, hPa float64) string {
	return fmt.Sprintf("%s_l%s.gribp", base, strconv.FormatFloat(hPa, 'f', -1, 64))
}

// LoadArchive parses a dataset archive: a tar stream, optionally zstd
// compressed, containing a manifest and the gribp files it references.
func LoadArchive(r io.Reader) (*Field, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br

	if head, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	members, err := readTar(src)
	if err != nil {
		return nil, err
	}

	raw, ok := members[ManifestName]
	if !ok {
		return nil, fmt.Errorf("archive has no %s", ManifestName)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestName, err)
	}
	if m.ValidityHours <= 0 {
		return nil, fmt.Errorf("%s: validity_hours must be positive", ManifestName)
	}

	snapshots := make([]*Snapshot, 0, len(m.Snapshots))
	for _, ms := range m.Snapshots {
		snap, err := loadSnapshot(ms, members)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	validity := time.Duration(m.ValidityHours * float64(time.Hour))
	return NewField(validity, snapshots...)
}

func loadSnapshot(ms ManifestSnapshot, members map[string][]byte) (*Snapshot, error) {
	stamp := ms.ValidTime.UTC().Format(time.RFC3339)
	grids := make([]*Grid, 0, len(ms.Files))

	for level, name := range ms.Files {
		hPa, err := strconv.ParseFloat(level, 64)
		if err != nil || hPa <= 0 {
			return nil, fmt.Errorf("snapshot %s: invalid level %q", stamp, level)
		}
		data, ok := members[name]
		if !ok {
			return nil, fmt.Errorf("snapshot %s: member %q missing from archive", stamp, name)
		}
		records, err := ReadRecords(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %s: %w", stamp, name, err)
		}
		g, err := NewGrid(hPa, records)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", stamp, err)
		}
		grids = append(grids, g)
	}

	return NewSnapshot(ms.ValidTime, grids)
}

func readTar(r io.Reader) (map[string][]byte, error) {
	tr := tar.NewReader(r)
	members := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return members, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading archive member %s: %w", hdr.Name, err)
		}
		members[hdr.Name] = data
	}
}

// WriteArchive writes m and files (member name to contents) as a
// zstd-compressed tar stream that LoadArchive accepts.
func WriteArchive(w io.Writer, m Manifest, files map[string][]byte) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("opening zstd writer: %w", err)
	}

	if err := writeTar(zw, m, files); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing zstd stream: %w", err)
	}
	return nil
}

func writeTar(w io.Writer, m Manifest, files map[string][]byte) error {
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	add := func(name string, data []byte) error {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing header for %s: %w", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return nil
	}

	if err := add(ManifestName, manifest); err != nil {
		return err
	}
	for _, name := range names {
		if err := add(name, files[name]); err != nil {
			return err
		}
	}
	return tw.Close()
}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}
