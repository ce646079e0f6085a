package api

import (
	"io"
	"net/http"

	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/pdfqr"
)

// ExtractQR reads the pdf of the multipart field "file" and returns its qr payloads
func (s *Server) ExtractQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxPDFSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		log.Debug(ctx, "extract qr. Missing file", "err", err)
		writeError(w, http.StatusBadRequest, "multipart field file is required")
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read file")
		return
	}

	payloads, err := s.services.Extractor.Extract(ctx, data)
	if err != nil {
		log.Info(ctx, "extract qr", "err", err, "size", len(data))
		writeError(w, errorStatus(err), err.Error())
		return
	}
	resp := ExtractQRResponse{Payloads: make([]QRPayload, 0, len(payloads))}
	for _, p := range payloads {
		kind, _ := pdfqr.ClassifyPayload(p)
		resp.Payloads = append(resp.Payloads, QRPayload{Payload: p, Kind: kind.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}
