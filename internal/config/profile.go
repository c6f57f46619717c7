package config

import (
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"hermannm.dev/wrap"
)

const (
	DefaultSampleSize = 2000
	DefaultChunkSize  = 10000
)

// Profile holds the tuning knobs shared by every job run on a host.
type Profile struct {
	// SampleSize is how many leading rows type inference scans. 0 scans all.
	SampleSize int `hcl:"sample_size,optional"`
	// ChunkSize is the number of rows written per savepoint.
	ChunkSize int `hcl:"chunk_size,optional"`
	// NullValues are source strings read as NULL in addition to "".
	NullValues []string `hcl:"null_values,optional"`
}

func DefaultProfile() *Profile {
	return &Profile{
		SampleSize: DefaultSampleSize,
		ChunkSize:  DefaultChunkSize,
		NullValues: []string{},
	}
}

// LoadProfile reads an HCL profile. Attributes absent from the file keep
// their defaults. An empty path returns the defaults.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to read profile %q", path)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() {
		return nil, wrap.Errorf(diags, "failed to parse profile %q", path)
	}

	p := DefaultProfile()
	if diags := gohcl.DecodeBody(file.Body, nil, p); diags.HasErrors() {
		return nil, wrap.Errorf(diags, "failed to decode profile %q", path)
	}
	if p.SampleSize < 0 {
		p.SampleSize = 0
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = DefaultChunkSize
	}
	return p, nil
}

// Encode renders p as HCL.
func (p *Profile) Encode() []byte {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	root.SetAttributeValue("sample_size", cty.NumberIntVal(int64(p.SampleSize)))
	root.SetAttributeValue("chunk_size", cty.NumberIntVal(int64(p.ChunkSize)))

	nulls := make([]cty.Value, len(p.NullValues))
	for i, s := range p.NullValues {
		nulls[i] = cty.StringVal(s)
	}
	if len(nulls) == 0 {
		root.SetAttributeValue("null_values", cty.ListValEmpty(cty.String))
	} else {
		root.SetAttributeValue("null_values", cty.ListVal(nulls))
	}

	return f.Bytes()
}

// ExportProfile writes p to path in HCL format.
func ExportProfile(path string, p *Profile) error {
	if err := os.WriteFile(path, p.Encode(), 0o644); err != nil {
		return wrap.Errorf(err, "failed to write profile %q", path)
	}
	return nil
}

// Apply overlays positive job overrides onto the profile values.
func (p *Profile) Apply(l LoadOptions) (sampleSize, chunkSize int) {
	sampleSize, chunkSize = p.SampleSize, p.ChunkSize
	if l.SampleSize > 0 {
		sampleSize = l.SampleSize
	}
	if l.ChunkSize > 0 {
		chunkSize = l.ChunkSize
	}
	return sampleSize, chunkSize
}
