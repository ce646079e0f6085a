// Package pdfqr recovers credential qr payloads embedded in the first page of a pdf
package pdfqr

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/log"
)

const maxFormDepth = 8

type pageImage struct {
	img     image.Image
	bilevel bool
}

// Extractor finds supported qr payloads in pdf documents
type Extractor struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// New returns an Extractor
func New() *Extractor {
	return &Extractor{hints: map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}}
}

// Extract returns the distinct supported payloads found on the first page.
// domain.ErrNoQRFound is returned when the pdf is readable but carries none.
func (e *Extractor) Extract(ctx context.Context, data []byte) (out []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, domain.NewDocumentError("read pdf", fmt.Errorf("malformed pdf: %v", p))
		}
	}()

	doc, err := openDocument(data)
	if err != nil {
		return nil, domain.NewDocumentError("read pdf", err)
	}
	resources, err := doc.firstPageResources()
	if err != nil {
		return nil, domain.NewDocumentError("read pdf", err)
	}

	images := e.collect(ctx, doc, resources, 0, map[int]bool{})
	seen := map[string]bool{}
	for _, pi := range images {
		texts := e.scan(pi.img)
		if len(texts) == 0 && pi.bilevel {
			texts = e.scan(invertGray(pi.img))
		}
		for _, text := range texts {
			if seen[text] {
				continue
			}
			seen[text] = true
			kind, ok := ClassifyPayload(text)
			if !ok {
				log.Debug(ctx, "ignoring unsupported qr code", "len", len(text))
				continue
			}
			log.Debug(ctx, "qr payload found", "kind", kind)
			out = append(out, text)
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrNoQRFound
	}
	return out, nil
}

// collect decodes the image XObjects of resources, descending into form XObjects
func (e *Extractor) collect(ctx context.Context, doc *document, resources types.Dict, depth int, visited map[int]bool) []pageImage {
	if resources == nil || depth > maxFormDepth {
		return nil
	}
	xobjects := doc.dict(resources["XObject"])
	if xobjects == nil {
		return nil
	}
	names := make([]string, 0, len(xobjects))
	for name := range xobjects {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []pageImage
	for _, name := range names {
		obj := xobjects[name]
		if ref, isRef := obj.(types.IndirectRef); isRef {
			if visited[int(ref.ObjectNumber)] {
				continue
			}
			visited[int(ref.ObjectNumber)] = true
		}
		sd, err := doc.stream(obj)
		if err != nil {
			continue
		}
		switch doc.name(sd.Dict["Subtype"]) {
		case "Image":
			img, bilevel, err := decodeImage(doc, sd, resources)
			if err != nil {
				log.Debug(ctx, "skipping image", "name", name, "err", err)
				continue
			}
			out = append(out, pageImage{img: img, bilevel: bilevel})
		case "Form":
			out = append(out, e.collect(ctx, doc, doc.dict(sd.Dict["Resources"]), depth+1, visited)...)
		}
	}
	return out
}

// scan returns the text of every qr code found in img
func (e *Extractor) scan(img image.Image) []string {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil
	}
	var texts []string
	results, err := multiqr.NewQRCodeMultiReader().DecodeMultiple(bmp, e.hints)
	if err == nil {
		for _, res := range results {
			texts = append(texts, res.GetText())
		}
	}
	if len(texts) > 0 {
		return texts
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, e.hints)
	if err != nil {
		return nil
	}
	return []string{res.GetText()}
}
