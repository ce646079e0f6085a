package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/pagination"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/sqltools"
)

// IssueCredential renders, wraps and enqueues a credential
func (s *Server) IssueCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req IssueCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug(ctx, "issue credential. Invalid body", "err", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ShortID == "" {
		writeError(w, http.StatusBadRequest, "shortId is required")
		return
	}
	if len(req.Document) == 0 {
		writeError(w, http.StatusBadRequest, "document is required")
		return
	}
	var version domain.SchemaVersion
	if req.SchemaVersion != "" {
		v, err := domain.ParseSchemaVersion(req.SchemaVersion)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		version = v
	}

	res, err := s.services.Issuer.Issue(ctx, domain.IssueRequest{
		ShortID:       req.ShortID,
		Receiver:      req.Receiver,
		SchemaVersion: version,
		Document:      req.Document,
	})
	if err != nil {
		log.Error(ctx, "issue credential", "err", err, "shortId", req.ShortID)
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, IssueCredentialResponse{
		ID:        res.CredentialID.String(),
		SubjectID: res.SubjectID,
		SenderRef: res.SenderRef,
		BlobKey:   res.BlobKey,
		QRCode:    res.QRCode,
		Link:      res.Link,
	})
}

// GetCredential returns the status, verification status and history of a credential
func (s *Server) GetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := credentialID(w, r)
	if !ok {
		return
	}
	cred, err := s.services.Credentials.GetByID(ctx, id)
	if err != nil {
		if errorStatus(err) != http.StatusNotFound {
			log.Error(ctx, "get credential", "err", err, "id", id)
		}
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, credentialResponse(cred))
}

// ListCredentials returns a page of credentials.
// Query parameters: status, verification, page, max_results and sort, a comma separated list of
// createdAt, shortId, status or verification, each optionally prefixed with - for descending order.
func (s *Server) ListCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := credentialFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	creds, total, err := s.services.Credentials.List(ctx, filter)
	if err != nil {
		log.Error(ctx, "list credentials", "err", err)
		writeError(w, errorStatus(err), err.Error())
		return
	}
	resp := CredentialsPaginated{
		Items: make([]CredentialResponse, 0, len(creds)),
		Meta: PaginatedMetadata{
			Total:      total,
			Page:       filter.Pagination.GetPage(),
			MaxResults: filter.Pagination.GetLimit(),
		},
	}
	for _, c := range creds {
		resp.Items = append(resp.Items, credentialResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

var credentialSortFields = map[string]sqltools.SQLFieldName{
	"createdAt":    ports.CredentialsCreatedAt,
	"shortId":      ports.CredentialsShortID,
	"status":       ports.CredentialsStatus,
	"verification": ports.CredentialsVerification,
}

func credentialFilter(q url.Values) (*ports.CredentialFilter, error) {
	filter := &ports.CredentialFilter{}
	if v := q.Get("status"); v != "" {
		status := domain.CredentialStatus(v)
		if !status.Valid() {
			return nil, fmt.Errorf("unknown status %q", v)
		}
		filter.Status = &status
	}
	if v := q.Get("verification"); v != "" {
		status := domain.VerificationStatus(v)
		if !status.Valid() {
			return nil, fmt.Errorf("unknown verification status %q", v)
		}
		filter.Verification = &status
	}

	page, err := uintParam(q, "page")
	if err != nil {
		return nil, err
	}
	maxResults, err := uintParam(q, "max_results")
	if err != nil {
		return nil, err
	}
	pages, err := pagination.NewFilter(maxResults, page)
	if err != nil {
		return nil, err
	}
	filter.Pagination = *pages

	if v := q.Get("sort"); v != "" {
		for _, field := range strings.Split(v, ",") {
			field = strings.TrimSpace(field)
			desc := strings.HasPrefix(field, "-")
			column, ok := credentialSortFields[strings.TrimPrefix(field, "-")]
			if !ok {
				return nil, fmt.Errorf("cannot sort by %q", field)
			}
			if err := filter.OrderBy.Add(column, desc); err != nil {
				return nil, err
			}
		}
	}
	return filter, nil
}

func uintParam(q url.Values, name string) (*uint, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%s must be a positive number", name)
	}
	u := uint(n)
	return &u, nil
}

// VerifyCredential runs a verification attempt right away
func (s *Server) VerifyCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := credentialID(w, r)
	if !ok {
		return
	}
	status, err := s.services.Reconciler.CheckNow(ctx, id)
	if err != nil {
		log.Error(ctx, "verify credential", "err", err, "id", id)
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Status: string(status)})
}

// ReverifyCredential restarts the scheduled verification of a credential
func (s *Server) ReverifyCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := credentialID(w, r)
	if !ok {
		return
	}
	if err := s.services.Reconciler.Reverify(ctx, id); err != nil {
		log.Error(ctx, "reverify credential", "err", err, "id", id)
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, VerifyResponse{Status: string(domain.VerificationPending)})
}

// GetQrFromStore serves the encrypted document a qr code points to
func (s *Server) GetQrFromStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := credentialID(w, r)
	if !ok {
		return
	}
	doc, err := s.services.QrStore.Find(ctx, id)
	if err != nil {
		if errorStatus(err) != http.StatusNotFound {
			log.Error(ctx, "qr store. Finding qr", "err", err, "id", id)
		}
		writeError(w, errorStatus(err), "error looking for qr body")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func credentialID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
