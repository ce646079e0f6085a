package pdfqr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // decoders for already encoded images
	"image/jpeg"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/ccitt"
)

var errUnsupportedImage = errors.New("unsupported image")

const (
	maxSide   = 1 << 15
	maxPixels = 64 << 20
)

type colorSpace struct {
	family string
	comps  int
	base   *colorSpace
	lookup []byte
}

var (
	gray = colorSpace{family: "DeviceGray", comps: 1}
	rgb  = colorSpace{family: "DeviceRGB", comps: 3}
	cmyk = colorSpace{family: "DeviceCMYK", comps: 4}
)

func deviceSpace(n string) (colorSpace, bool) {
	switch n {
	case "DeviceGray", "CalGray", "G":
		return gray, true
	case "DeviceRGB", "CalRGB", "RGB":
		return rgb, true
	case "DeviceCMYK", "CMYK":
		return cmyk, true
	}
	return colorSpace{}, false
}

// resolveColorSpace follows named color spaces through the resources of the page
func resolveColorSpace(doc *document, obj types.Object, resources types.Dict, depth int) (colorSpace, error) {
	if depth > 4 {
		return colorSpace{}, fmt.Errorf("%w: color space nesting", errUnsupportedImage)
	}
	switch v := doc.resolve(obj).(type) {
	case types.Name:
		if cs, ok := deviceSpace(string(v)); ok {
			return cs, nil
		}
		if named := doc.dict(resources["ColorSpace"]); named != nil {
			if def, ok := named[string(v)]; ok {
				return resolveColorSpace(doc, def, resources, depth+1)
			}
		}
		return colorSpace{}, fmt.Errorf("%w: color space %s", errUnsupportedImage, v)
	case types.Array:
		if len(v) == 0 {
			break
		}
		family := doc.name(v[0])
		if cs, ok := deviceSpace(family); ok {
			return cs, nil
		}
		switch family {
		case "ICCBased":
			if len(v) < 2 {
				break
			}
			profile, err := doc.stream(v[1])
			if err != nil {
				break
			}
			switch n, _ := doc.integer(profile.Dict["N"]); n {
			case 1:
				return gray, nil
			case 3:
				return rgb, nil
			case 4:
				return cmyk, nil
			}
		case "Indexed", "I":
			if len(v) < 4 {
				break
			}
			base, err := resolveColorSpace(doc, v[1], resources, depth+1)
			if err != nil {
				return colorSpace{}, err
			}
			lookup, ok := doc.bytes(v[3])
			if !ok {
				return colorSpace{}, fmt.Errorf("%w: indexed lookup", errUnsupportedImage)
			}
			return colorSpace{family: "Indexed", comps: 1, base: &base, lookup: lookup}, nil
		}
		return colorSpace{}, fmt.Errorf("%w: color space %s", errUnsupportedImage, family)
	}
	return colorSpace{}, fmt.Errorf("%w: color space", errUnsupportedImage)
}

// decodeImage turns an image XObject into an image. The flag is set for fax encoded bilevel images,
// their polarity depends on the producer.
func decodeImage(doc *document, sd *types.StreamDict, resources types.Dict) (image.Image, bool, error) {
	data, codec, err := decodeStream(sd)
	if err != nil {
		return nil, false, err
	}
	if codec == nil {
		img, err := rasterImage(doc, sd, resources, data)
		return img, false, err
	}
	switch codec.Name {
	case filterDCT:
		img, err := jpeg.Decode(bytes.NewReader(data))
		return img, false, err
	case filterCCITTFax:
		img, err := ccittImage(doc, sd, codec.DecodeParms, data)
		return img, true, err
	default:
		// JPX and JBIG2 have no decoder here, registered formats are still attempted
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s", errUnsupportedImage, codec.Name)
		}
		return img, false, nil
	}
}

// checkSize bounds each side before the area is computed
func checkSize(w, h int) error {
	if w <= 0 || h <= 0 || w > maxSide || h > maxSide || w*h > maxPixels {
		return fmt.Errorf("%w: bad dimensions %dx%d", errUnsupportedImage, w, h)
	}
	return nil
}

func dimensions(doc *document, d types.Dict) (int, int, error) {
	w, ok1 := doc.integer(d["Width"])
	h, ok2 := doc.integer(d["Height"])
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("%w: missing dimensions", errUnsupportedImage)
	}
	if err := checkSize(w, h); err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func ccittImage(doc *document, sd *types.StreamDict, params types.Dict, data []byte) (image.Image, error) {
	w, h, err := dimensions(doc, sd.Dict)
	if err != nil {
		return nil, err
	}
	if cols, ok := doc.integer(params["Columns"]); ok && cols > 0 {
		w = cols
	}
	if rows, ok := doc.integer(params["Rows"]); ok && rows > 0 {
		h = rows
	}
	if err := checkSize(w, h); err != nil {
		return nil, err
	}
	k, _ := doc.integer(params["K"])
	var sf ccitt.SubFormat
	switch {
	case k < 0:
		sf = ccitt.Group4
	case k == 0:
		sf = ccitt.Group3
	default:
		return nil, fmt.Errorf("%w: mixed group 3 encoding", errUnsupportedImage)
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	opts := &ccitt.Options{Align: doc.boolean(params["EncodedByteAlign"]), Invert: doc.boolean(params["BlackIs1"])}
	if err := ccitt.DecodeIntoGray(dst, bytes.NewReader(data), ccitt.MSB, sf, opts); err != nil {
		return nil, err
	}
	return dst, nil
}

func rasterImage(doc *document, sd *types.StreamDict, resources types.Dict, data []byte) (image.Image, error) {
	w, h, err := dimensions(doc, sd.Dict)
	if err != nil {
		return nil, err
	}
	mask := doc.boolean(sd.Dict["ImageMask"])
	bpc, _ := doc.integer(sd.Dict["BitsPerComponent"])
	cs := gray
	if mask {
		bpc = 1
	} else {
		if cs, err = resolveColorSpace(doc, sd.Dict["ColorSpace"], resources, 0); err != nil {
			return nil, err
		}
	}
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("%w: %d bits per component", errUnsupportedImage, bpc)
	}

	invert := false
	if dec, ok := doc.resolve(sd.Dict["Decode"]).(types.Array); ok && len(dec) >= 2 && cs.comps == 1 && cs.base == nil {
		lo, _ := doc.integer(dec[0])
		hi, _ := doc.integer(dec[1])
		invert = lo > hi
	}

	stride := (w*cs.comps*bpc + 7) / 8
	if len(data)/stride < h {
		return nil, fmt.Errorf("%w: short raster", errUnsupportedImage)
	}
	maxVal := 1<<bpc - 1
	scale := func(v int) uint8 {
		return uint8(v * 255 / maxVal)
	}

	if cs.family == gray.family {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			row := data[y*stride:]
			for x := 0; x < w; x++ {
				v := scale(sample(row, x, bpc))
				if invert {
					v = 255 - v
				}
				img.Pix[y*img.Stride+x] = v
			}
		}
		return img, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := data[y*stride:]
		for x := 0; x < w; x++ {
			i := x * cs.comps
			var c color.Color
			switch {
			case cs.base != nil:
				c = paletteColor(cs, sample(row, i, bpc))
			case cs.comps == 3:
				c = color.RGBA{R: scale(sample(row, i, bpc)), G: scale(sample(row, i+1, bpc)), B: scale(sample(row, i+2, bpc)), A: 0xff}
			default:
				c = color.CMYK{C: scale(sample(row, i, bpc)), M: scale(sample(row, i+1, bpc)), Y: scale(sample(row, i+2, bpc)), K: scale(sample(row, i+3, bpc))}
			}
			img.Set(x, y, c)
		}
	}
	return img, nil
}

// sample returns component i of a row packed with bpc bits per component
func sample(row []byte, i, bpc int) int {
	switch bpc {
	case 8:
		return int(row[i])
	case 16:
		return int(row[2*i])<<8 | int(row[2*i+1])
	}
	bit := i * bpc
	b := row[bit/8]
	shift := 8 - bpc - bit%8
	return int(b>>shift) & (1<<bpc - 1)
}

func paletteColor(cs colorSpace, idx int) color.Color {
	n := cs.base.comps
	off := idx * n
	if off+n > len(cs.lookup) {
		return color.Black
	}
	v := cs.lookup[off : off+n]
	switch n {
	case 1:
		return color.Gray{Y: v[0]}
	case 3:
		return color.RGBA{R: v[0], G: v[1], B: v[2], A: 0xff}
	default:
		return color.CMYK{C: v[0], M: v[1], Y: v[2], K: v[3]}
	}
}

func invertGray(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(src.At(x, y)).(color.Gray)
			dst.SetGray(x, y, color.Gray{Y: 255 - g.Y})
		}
	}
	return dst
}
