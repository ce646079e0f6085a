package pdfqr

import (
	"bytes"
	"errors"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Filters whose output is an encoded image rather than raster samples
const (
	filterDCT      = "DCTDecode"
	filterCCITTFax = "CCITTFaxDecode"
	filterJPX      = "JPXDecode"
	filterJBIG2    = "JBIG2Decode"
)

var (
	errNoPages   = errors.New("pdf has no pages")
	errNotStream = errors.New("not a stream")
)

var imageCodecs = map[string]bool{filterDCT: true, filterCCITTFax: true, filterJPX: true, filterJBIG2: true}

var configOnce sync.Once

// document gives typed access to the objects of a parsed pdf
type document struct {
	ctx *model.Context
}

func openDocument(data []byte) (*document, error) {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	if ctx.PageCount < 1 {
		return nil, errNoPages
	}
	return &document{ctx: ctx}, nil
}

// firstPageResources returns the resources of page 1, inherited entries included
func (d *document) firstPageResources() (types.Dict, error) {
	page, _, _, err := d.ctx.PageDict(1, true)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, errNoPages
	}
	return d.dict(page["Resources"]), nil
}

func (d *document) resolve(o types.Object) types.Object {
	if o == nil {
		return nil
	}
	v, err := d.ctx.Dereference(o)
	if err != nil {
		return nil
	}
	return v
}

func (d *document) dict(o types.Object) types.Dict {
	if o == nil {
		return nil
	}
	v, err := d.ctx.DereferenceDict(o)
	if err != nil {
		return nil
	}
	return v
}

func (d *document) stream(o types.Object) (*types.StreamDict, error) {
	if o == nil {
		return nil, errNotStream
	}
	sd, _, err := d.ctx.DereferenceStreamDict(o)
	if err != nil {
		return nil, err
	}
	if sd == nil {
		return nil, errNotStream
	}
	return sd, nil
}

func (d *document) name(o types.Object) string {
	if n, ok := d.resolve(o).(types.Name); ok {
		return string(n)
	}
	return ""
}

func (d *document) integer(o types.Object) (int, bool) {
	switch v := d.resolve(o).(type) {
	case types.Integer:
		return int(v), true
	case types.Float:
		return int(v), true
	}
	return 0, false
}

func (d *document) boolean(o types.Object) bool {
	b, _ := d.resolve(o).(types.Boolean)
	return bool(b)
}

// bytes returns the content of a string object or of a stream with general purpose filters only
func (d *document) bytes(o types.Object) ([]byte, bool) {
	switch v := d.resolve(o).(type) {
	case types.StringLiteral:
		b, err := types.Unescape(string(v))
		return b, err == nil
	case types.HexLiteral:
		b, err := v.Bytes()
		return b, err == nil
	case types.StreamDict:
		data, codec, err := decodeStream(&v)
		return data, err == nil && codec == nil
	}
	return nil, false
}

// decodeStream applies the general purpose filters of sd. The image codec filter that follows
// them, if any, is returned undecoded along with its parameters.
func decodeStream(sd *types.StreamDict) ([]byte, *types.PDFFilter, error) {
	fpl := sd.FilterPipeline
	i := 0
	for i < len(fpl) && !imageCodecs[fpl[i].Name] {
		i++
	}
	data := sd.Raw
	if i > 0 {
		general := *sd
		general.FilterPipeline = fpl[:i]
		general.Content = nil
		if err := general.Decode(); err != nil {
			return nil, nil, err
		}
		data = general.Content
	}
	if i < len(fpl) {
		return data, &fpl[i], nil
	}
	return data, nil, nil
}
