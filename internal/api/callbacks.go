package api

import (
	"encoding/json"
	"net/http"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/nodeclient"
)

// SubscriptionChallenge answers the intent verification of a subscription hub
func SubscriptionChallenge(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("hub.challenge")
	if challenge == "" {
		writeError(w, http.StatusBadRequest, "hub.challenge is required")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// MessageCallback records a status change of a message sent to a counterpart node
func (s *Server) MessageCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req MessageCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SenderRef == "" {
		writeError(w, http.StatusBadRequest, "sender_ref is required")
		return
	}
	status := domain.NodeMessageStatus(req.Status)
	switch status {
	case domain.NodeMessageAccepted, domain.NodeMessageRejected:
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	if err := s.services.Ingestor.HandleMessageUpdate(ctx, req.SenderRef, status, req.Note); err != nil {
		log.Warn(ctx, "message callback", "err", err, "senderRef", req.SenderRef)
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DocumentCallback ingests a document published by a counterpart node.
// Documents that cannot be downloaded answer 503 so the node delivers the notification again.
func (s *Server) DocumentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DocumentCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !nodeclient.ValidContentHash(req.Obj) {
		writeError(w, http.StatusBadRequest, "obj is not a content hash")
		return
	}

	res, err := s.services.Ingestor.Ingest(ctx, domain.IncomingPointer{
		SenderRef:   req.SenderRef,
		Sender:      req.Sender,
		Subject:     req.Subject,
		ContentHash: req.Obj,
	})
	if err != nil {
		log.Error(ctx, "document callback", "err", err, "contentHash", req.Obj)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp := DocumentCallbackResponse{Status: string(res.Status), Reason: res.Reason}
	if res.Document != nil {
		id := res.Document.ID.String()
		resp.DocumentID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}
