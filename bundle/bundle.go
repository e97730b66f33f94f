// Package bundle reads and writes guest application bundles: a CBOR
// manifest followed by the (optionally zstd-compressed) wasm module,
// integrity-checked with a blake3 digest. Guests ship as bundles because
// they are built independently of the kernel.
package bundle

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

const (
	magic         = "MNL1"
	FormatVersion = 1

	// maxSectionSize bounds the manifest and module sections so a corrupt
	// length prefix cannot force a huge allocation.
	maxSectionSize = 64 << 20
)

var (
	ErrBadMagic       = errors.New("not a munal bundle")
	ErrBadVersion     = errors.New("unsupported bundle format version")
	ErrDigestMismatch = errors.New("module digest mismatch")
	ErrTooLarge       = errors.New("bundle section too large")
)

// Window is the guest's initial window rectangle.
type Window struct {
	X int32 `cbor:"1,keyasint"`
	Y int32 `cbor:"2,keyasint"`
	W int32 `cbor:"3,keyasint"`
	H int32 `cbor:"4,keyasint"`
}

// Manifest describes one guest application. Field keys are integers so
// the encoding stays stable as fields are added.
type Manifest struct {
	FormatVersion int      `cbor:"1,keyasint"`
	Name          string   `cbor:"2,keyasint"`
	Window        Window   `cbor:"3,keyasint"`
	ModuleDigest  [32]byte `cbor:"4,keyasint"`
	Compressed    bool     `cbor:"5,keyasint"`
}

// Bundle is a decoded application: manifest plus decompressed, verified
// module bytes.
type Bundle struct {
	Manifest Manifest
	Module   []byte
}

func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding bundle %s", path)
	}

	return b, nil
}

func Decode(r io.Reader) (*Bundle, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "reading magic")
	}
	if string(hdr[:]) != magic {
		return nil, ErrBadMagic
	}

	rawManifest, err := readSection(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}

	var m Manifest
	if err := cbor.Unmarshal(rawManifest, &m); err != nil {
		return nil, errors.Wrap(err, "decoding manifest")
	}
	if m.FormatVersion != FormatVersion {
		return nil, errors.Wrapf(ErrBadVersion, "version=%d", m.FormatVersion)
	}

	module, err := readSection(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading module")
	}

	if m.Compressed {
		zr, err := zstd.NewReader(bytes.NewReader(module))
		if err != nil {
			return nil, errors.Wrap(err, "opening module decompressor")
		}
		defer zr.Close()

		// the section bound applies to the decompressed bytes too, or a
		// small bundle could expand without limit
		module, err = io.ReadAll(io.LimitReader(zr, maxSectionSize+1))
		if err != nil {
			return nil, errors.Wrap(err, "decompressing module")
		}
		if len(module) > maxSectionSize {
			return nil, errors.Wrapf(ErrTooLarge, "decompressed module exceeds %d bytes", maxSectionSize)
		}
	}

	if blake3.Sum256(module) != m.ModuleDigest {
		return nil, errors.Wrapf(ErrDigestMismatch, "bundle=%s", m.Name)
	}

	return &Bundle{Manifest: m, Module: module}, nil
}

// Encode writes a bundle for the given module bytes.
func Encode(w io.Writer, name string, win Window, module []byte, compress bool) error {
	m := Manifest{
		FormatVersion: FormatVersion,
		Name:          name,
		Window:        win,
		ModuleDigest:  blake3.Sum256(module),
		Compressed:    compress,
	}

	rawManifest, err := cbor.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encoding manifest")
	}

	payload := module
	if compress {
		var buf bytes.Buffer
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return errors.Wrap(err, "opening module compressor")
		}
		if _, err := zw.Write(module); err != nil {
			zw.Close()
			return errors.Wrap(err, "compressing module")
		}
		if err := zw.Close(); err != nil {
			return errors.Wrap(err, "compressing module")
		}
		payload = buf.Bytes()
	}

	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	if err := writeSection(w, rawManifest); err != nil {
		return err
	}
	return writeSection(w, payload)
}

func readSection(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	size := binary.LittleEndian.Uint32(lenBuf[:])
	if size > maxSectionSize {
		return nil, errors.Wrapf(ErrTooLarge, "size=%d", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

func writeSection(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}
