// Package container stores programs as CBOR images. An image is a header
// followed by one independently encoded record per class. Records of
// classes that were not replaced are written back exactly as they were
// read.
package container

import (
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/program"
)

const (
	Format  = "dexpatch-image"
	Version = 1
)

var log = commonlog.GetLogger("dexpatch.container")

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("container: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

type image struct {
	Format  string            `cbor:"format"`
	Version int               `cbor:"version"`
	Package string            `cbor:"package,omitempty"`
	Classes []cbor.RawMessage `cbor:"classes"`
}

// Archive is a decoded image. It remembers the encoded form of every class
// it loaded so that Encode can reuse it.
type Archive struct {
	Package string

	program *program.Program
	raw     map[*program.ClassUnit]cbor.RawMessage
}

// New wraps p in an archive with no recorded encodings.
func New(pkg string, p *program.Program) *Archive {
	return &Archive{
		Package: pkg,
		program: p,
		raw:     make(map[*program.ClassUnit]cbor.RawMessage),
	}
}

func (a *Archive) Program() *program.Program { return a.program }

// Decode parses an image.
func Decode(data []byte) (*Archive, error) {
	var img image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("container: unmarshal image: %w", err)
	}
	if img.Format != Format {
		return nil, errz.New(errz.Invalid, img.Format, "not a %s", Format)
	}
	if img.Version != Version {
		return nil, errz.New(errz.Invalid, Format, "unsupported version %d", img.Version)
	}

	classes := make([]*program.ClassUnit, 0, len(img.Classes))
	raw := make(map[*program.ClassUnit]cbor.RawMessage, len(img.Classes))
	for i, rec := range img.Classes {
		var def program.ClassDef
		if err := cbor.Unmarshal(rec, &def); err != nil {
			return nil, fmt.Errorf("container: unmarshal class %d: %w", i, err)
		}
		c, err := program.NewClass(def)
		if err != nil {
			return nil, fmt.Errorf("container: class %d: %w", i, err)
		}
		classes = append(classes, c)
		raw[c] = rec
	}

	p, err := program.New(classes...)
	if err != nil {
		return nil, err
	}
	log.Debugf("decoded %d classes", p.Len())
	return &Archive{Package: img.Package, program: p, raw: raw}, nil
}

// Encode writes p as an image. Classes of p that came from this archive
// unchanged reuse their original encoding.
func (a *Archive) Encode(p *program.Program) ([]byte, error) {
	img := image{
		Format:  Format,
		Version: Version,
		Package: a.Package,
		Classes: make([]cbor.RawMessage, 0, p.Len()),
	}
	reused := 0
	for _, c := range p.Classes() {
		if rec, ok := a.raw[c]; ok {
			img.Classes = append(img.Classes, rec)
			reused++
			continue
		}
		rec, err := encMode.Marshal(c.Def())
		if err != nil {
			return nil, fmt.Errorf("container: marshal %s: %w", c.Name(), err)
		}
		img.Classes = append(img.Classes, rec)
	}
	log.Debugf("encoded %d classes, %d unchanged", len(img.Classes), reused)
	return encMode.Marshal(img)
}

// Read decodes an image from r.
func Read(r io.Reader) (*Archive, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("container: read image: %w", err)
	}
	return Decode(data)
}

// Write encodes p into w.
func (a *Archive) Write(w io.Writer, p *program.Program) error {
	data, err := a.Encode(p)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func ReadFile(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	return Decode(data)
}

func (a *Archive) WriteFile(path string, p *program.Program) error {
	data, err := a.Encode(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
