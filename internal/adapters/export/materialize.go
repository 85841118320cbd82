package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"

	"skylink/internal/blob"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

// Format is an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPNG  Format = "png"
)

const contentTypePNG = "image/png"

// supports reports whether kind can be exported as format.
func supports(kind domain.ViewerKind, format Format) bool {
	switch format {
	case FormatJSON, FormatCSV:
		return true
	case FormatPNG:
		return kind == domain.ViewerImage
	default:
		return false
	}
}

type rendered struct {
	payload     []byte
	contentType string
}

func materialize(format Format, kind domain.ViewerKind, layer LayerCapture) (rendered, error) {
	switch format {
	case FormatJSON:
		b, err := encodeJSON(kind, layer)
		return rendered{payload: b, contentType: blob.ContentTypeJSON}, err
	case FormatCSV:
		b, err := encodeCSV(layer)
		return rendered{payload: b, contentType: blob.ContentTypeCSV}, err
	case FormatPNG:
		b, err := encodePNG(layer)
		return rendered{payload: b, contentType: contentTypePNG}, err
	default:
		return rendered{}, errors.Newf("unsupported export format %s", format)
	}
}

// jsonLayer mirrors RenderData with NaN encoded as null.
type jsonLayer struct {
	Kind     domain.ViewerKind     `json:"kind"`
	Dataset  domain.DatasetID      `json:"dataset"`
	Subset   domain.SubsetID       `json:"subset,omitempty"`
	Style    *domain.Style         `json:"style,omitempty"`
	Shape    []int                 `json:"shape,omitempty"`
	Order    []string              `json:"order"`
	Columns  map[string][]*float64 `json:"columns"`
	Mask     domain.Mask           `json:"mask,omitempty"`
	Selected int                   `json:"selected"`
	Rows     []int                 `json:"rows,omitempty"`
}

func encodeJSON(kind domain.ViewerKind, layer LayerCapture) ([]byte, error) {
	r := layer.Render
	out := jsonLayer{
		Kind:     kind,
		Dataset:  layer.Dataset,
		Subset:   layer.Subset,
		Shape:    r.Shape,
		Order:    r.Order,
		Columns:  make(map[string][]*float64, len(r.Columns)),
		Mask:     r.Mask,
		Selected: r.Selected,
		Rows:     r.Rows,
	}
	if layer.Subset != "" {
		style := layer.Style
		out.Style = &style
	}
	for name, values := range r.Columns {
		col := make([]*float64, len(values))
		for i := range values {
			if !math.IsNaN(values[i]) && !math.IsInf(values[i], 0) {
				col[i] = &values[i]
			}
		}
		out.Columns[name] = col
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s as json", layer.Name())
	}
	return b, nil
}

// encodeCSV writes one column per render column in render order. Shorter
// columns (e.g. a cube profile) leave trailing cells empty, as do NaNs.
func encodeCSV(layer LayerCapture) ([]byte, error) {
	r := layer.Render
	rows := 0
	for _, name := range r.Order {
		if n := len(r.Columns[name]); n > rows {
			rows = n
		}
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(r.Order); err != nil {
		return nil, errors.Wrap(err, "write csv header")
	}
	record := make([]string, len(r.Order))
	for i := 0; i < rows; i++ {
		for j, name := range r.Order {
			record[j] = ""
			col := r.Columns[name]
			if i < len(col) && !math.IsNaN(col[i]) {
				record[j] = strconv.FormatFloat(col[i], 'g', -1, 64)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, errors.Wrap(err, "write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "flush csv")
	}
	return buf.Bytes(), nil
}

// encodePNG draws the value plane of an image layer in grayscale, scaled to
// its finite range. Subset layers render unselected pixels transparent.
func encodePNG(layer LayerCapture) ([]byte, error) {
	r := layer.Render
	if len(r.Shape) != 2 {
		return nil, errors.Newf("png export needs a 2-d layer, %s has shape %v", layer.Name(), r.Shape)
	}
	values, ok := r.Columns["value"]
	if !ok {
		return nil, errors.Newf("png export needs a value axis on %s", layer.Name())
	}
	height, width := r.Shape[0], r.Shape[1]
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	span := hi - lo
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, v := range values {
		x, y := i%width, height-1-i/width
		if math.IsNaN(v) || (r.Mask != nil && !r.Mask[i]) {
			img.SetNRGBA(x, y, color.NRGBA{})
			continue
		}
		level := uint8(255)
		if span > 0 {
			level = uint8(math.Round(255 * (v - lo) / span))
		}
		img.SetNRGBA(x, y, color.NRGBA{R: level, G: level, B: level, A: 255})
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, errors.Wrap(err, "encode png")
	}
	return buf.Bytes(), nil
}
