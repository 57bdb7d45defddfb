package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/log"
)

// IssueConsentRequest is the body of POST /issue-consent. The subject issues a
// credential directly against an already approved consent context.
type IssueConsentRequest struct {
	SubjectID      string   `json:"subjectId"`
	RequesterID    string   `json:"requesterId"`
	RecordPointers []string `json:"recordPointers"`
	Scope          string   `json:"scope"`
	TTLHours       int      `json:"ttlHours"`
}

// IssueConsentResponse carries the minted credential
type IssueConsentResponse struct {
	Credential *domain.Credential `json:"credential"`
}

// IssueConsent mints a credential authorized by the subject's own key custody
func (s *Server) IssueConsent(w http.ResponseWriter, r *http.Request) {
	var req IssueConsentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" || req.RequesterID == "" {
		render(w, r, http.StatusBadRequest, errorBody{Error: "subjectId and requesterId are required"})
		return
	}

	identity, err := s.identity.EnsureIdentity(r.Context(), req.SubjectID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	cred, err := s.issuer.Mint(r.Context(), ports.IssueRequest{
		SubjectDID:     identity.DID,
		AudienceID:     req.RequesterID,
		RecordPointers: req.RecordPointers,
		Scope:          req.Scope,
		TTL:            time.Duration(req.TTLHours) * time.Hour,
		Authorization:  ports.Authorization{Kind: ports.AuthSubject, SubjectKey: req.SubjectID},
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, http.StatusCreated, IssueConsentResponse{Credential: cred})
}

// GetRecordRequest is the body of POST /get-record
type GetRecordRequest struct {
	Credential string `json:"credential"`
	AudienceID string `json:"audienceId"`
}

// RecordEntry is one resolved record pointer
type RecordEntry struct {
	Pointer string `json:"pointer"`
	Data    string `json:"data,omitempty"`
	Missing bool   `json:"missing,omitempty"`
}

// GetRecordResponse lists the records the credential authorizes
type GetRecordResponse struct {
	Records []RecordEntry `json:"records"`
}

// GetRecord verifies the presented credential and resolves its record pointers
// against the content store. Content is immutable and content-addressed, so
// fetches go through the cache.
func (s *Server) GetRecord(w http.ResponseWriter, r *http.Request) {
	var req GetRecordRequest
	if !decode(w, r, &req) {
		return
	}

	pointers, err := s.verifier.Verify(r.Context(), req.Credential, req.AudienceID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	records := make([]RecordEntry, 0, len(pointers))
	for _, pointer := range pointers {
		data, err := s.fetchContent(r, pointer)
		if err != nil {
			// a dangling pointer is reported per entry, not a request failure
			log.Warn(r.Context(), "record pointer did not resolve", "pointer", pointer)
			records = append(records, RecordEntry{Pointer: pointer, Missing: true})
			continue
		}
		records = append(records, RecordEntry{Pointer: pointer, Data: base64.StdEncoding.EncodeToString(data)})
	}
	render(w, r, http.StatusOK, GetRecordResponse{Records: records})
}

func (s *Server) fetchContent(r *http.Request, pointer string) ([]byte, error) {
	key := "record:" + pointer
	var cached []byte
	if s.cache.Get(r.Context(), key, &cached) {
		return cached, nil
	}

	data, err := s.records.Get(r.Context(), pointer)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(r.Context(), key, data, time.Hour); err != nil {
		log.Debug(r.Context(), "content cache write failed", "pointer", pointer)
	}
	return data, nil
}
