package source

import (
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"hermannm.dev/wrap"

	"tabload/internal/config"
)

// fetchTimeout bounds downloading an http(s) source.
const fetchTimeout = 2 * time.Minute

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte("PK\x03\x04")
)

// openInput opens the raw bytes of src, undoes compression and decodes the
// text to UTF-8. name is the logical file name used for format detection
// (the zip member name for archives).
func openInput(ctx context.Context, src config.Source) (rc io.ReadCloser, name string, err error) {
	name = src.Path

	var raw io.ReadCloser
	switch {
	case src.Path == "-":
		raw = io.NopCloser(os.Stdin)
	case isURL(src.Path):
		raw, err = NewFetcher(nil, fetchTimeout).Open(ctx, src.Path)
	default:
		raw, err = os.Open(src.Path)
	}
	if err != nil {
		return nil, "", wrap.Errorf(err, "failed to open %q", src.Path)
	}

	r, name, err := decompress(raw, name, strings.ToLower(src.Compression), src.ZipEntry)
	if err != nil {
		_ = raw.Close()
		return nil, "", err
	}

	dec, err := decoder(src.Encoding)
	if err != nil {
		_ = r.Close()
		return nil, "", err
	}
	return readCloser{Reader: transform.NewReader(r, dec.NewDecoder()), Closer: r}, name, nil
}

func isURL(p string) bool {
	lp := strings.ToLower(p)
	return strings.HasPrefix(lp, "http://") || strings.HasPrefix(lp, "https://")
}

type readCloser struct {
	io.Reader
	io.Closer
}

// multiCloser closes the decompressor and then the underlying stream.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func decompress(raw io.ReadCloser, name, compression, zipEntry string) (io.ReadCloser, string, error) {
	br := bufio.NewReader(raw)

	if compression == "" || compression == "auto" {
		head, _ := br.Peek(4)
		switch {
		case bytes.HasPrefix(head, gzipMagic):
			compression = "gzip"
		case bytes.HasPrefix(head, zipMagic):
			compression = "zip"
		default:
			compression = "none"
		}
	}

	switch compression {
	case "none":
		return readCloser{Reader: br, Closer: raw}, name, nil

	case "gzip":
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", wrap.Error(err, "failed to open gzip stream")
		}
		if zr.Name != "" {
			name = zr.Name
		} else {
			name = strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".gzip")
		}
		return readCloser{Reader: zr, Closer: multiCloser{zr, raw}}, name, nil

	case "zip":
		// zip needs random access; archives are read into memory.
		b, err := io.ReadAll(br)
		if err != nil {
			return nil, "", wrap.Error(err, "failed to read zip archive")
		}
		zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
		if err != nil {
			return nil, "", wrap.Error(err, "failed to open zip archive")
		}
		f, err := zipMember(zr, zipEntry)
		if err != nil {
			return nil, "", err
		}
		member, err := f.Open()
		if err != nil {
			return nil, "", wrap.Errorf(err, "failed to open zip entry %q", f.Name)
		}
		return readCloser{Reader: member, Closer: multiCloser{member, raw}}, f.Name, nil

	default:
		return nil, "", fmt.Errorf("unsupported compression %q", compression)
	}
}

// zipMember returns the named entry, or the first regular file when entry is
// empty. Names are matched exactly, then by base name.
func zipMember(zr *zip.Reader, entry string) (*zip.File, error) {
	var first *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if first == nil {
			first = f
		}
		if entry != "" && (f.Name == entry || path.Base(f.Name) == entry) {
			return f, nil
		}
	}
	if entry != "" {
		return nil, fmt.Errorf("zip entry %q not found", entry)
	}
	if first == nil {
		return nil, fmt.Errorf("zip archive has no files")
	}
	return first, nil
}

// decoder maps an encoding name to an x/text decoder. UTF-8 input has a
// leading byte order mark stripped; UTF-16 honours one when present.
func decoder(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "utf-16", "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}
