// Package pdftest builds small PDF files for tests
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
)

// Builder assembles indirect objects into a PDF file
type Builder struct {
	objects [][]byte
}

// New returns an empty builder
func New() *Builder {
	return &Builder{}
}

// Reserve allocates an object number to be filled later with Set or SetStream
func (b *Builder) Reserve() int {
	b.objects = append(b.objects, nil)
	return len(b.objects)
}

// Add appends an object given in PDF syntax and returns its number
func (b *Builder) Add(body string) int {
	n := b.Reserve()
	b.Set(n, body)
	return n
}

// Set fills object num
func (b *Builder) Set(num int, body string) {
	b.objects[num-1] = []byte(body)
}

// AddStream appends a stream object. dict holds the dictionary entries without the delimiters,
// Length is added.
func (b *Builder) AddStream(dict string, data []byte) int {
	n := b.Reserve()
	b.SetStream(n, dict, data)
	return n
}

// SetStream fills object num with a stream
func (b *Builder) SetStream(num int, dict string, data []byte) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<< %s /Length %d >>\nstream\n", dict, len(data))
	buf.Write(data)
	buf.WriteString("\nendstream")
	b.objects[num-1] = buf.Bytes()
}

// Bytes renders the file with a cross reference table and a trailer pointing at root
func (b *Builder) Bytes(root int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(b.objects))
	for i, obj := range b.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(obj)
		buf.WriteString("\nendobj\n")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(b.objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objects)+1, root, xref)
	return buf.Bytes()
}

// SinglePage builds a document whose only page has the given resources dictionary
func SinglePage(b *Builder, resources string) []byte {
	pages := b.Reserve()
	page := b.Add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources %s >>", pages, resources))
	b.Set(pages, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", page))
	catalog := b.Add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pages))
	return b.Bytes(catalog)
}

// Flate compresses data with zlib
func Flate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}
