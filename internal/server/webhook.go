package server

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/teemow/calsync/internal/records"
	"github.com/teemow/calsync/internal/store"
)

// maxTriggerBody bounds trigger webhook bodies.
const maxTriggerBody = 1 << 20

type triggerResponse struct {
	Accepted bool   `json:"accepted"`
	Outcome  string `json:"outcome,omitempty"`
	EventID  string `json:"eventId,omitempty"`
}

// TriggerHandler serves POST /triggers. The body is a store.Change as
// delivered by an external document store. Deliveries are queued on the
// trigger runtime and acknowledged with 202; with ?wait=true the change is
// handled before answering. Sync failures never fail the delivery.
//
// Records unknown to the local store are synced from the delivered snapshot.
// Their calendar event id cannot be written back here, so a waiting create
// answers with it and the sender stores it on its copy.
//
// When secret is set, deliveries must carry it as a bearer token.
func TriggerHandler(sc *ServerContext, secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && !validTriggerSecret(r.Header.Get("Authorization"), secret) {
			writeJSON(w, http.StatusUnauthorized, callableErrorResponse{
				Error: callableError{Status: "UNAUTHENTICATED", Message: "invalid trigger secret"},
			})
			return
		}

		rt := sc.Runtime()
		if rt == nil {
			http.Error(w, "trigger runtime not configured", http.StatusServiceUnavailable)
			return
		}

		var change store.Change
		body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBody))
		if err != nil || json.Unmarshal(body, &change) != nil {
			http.Error(w, "invalid change payload", http.StatusBadRequest)
			return
		}
		if msg := validateChange(change); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		change.External = true

		if r.URL.Query().Get("wait") == "true" {
			outcome, _ := rt.Invoke(r.Context(), change)
			resp := triggerResponse{Accepted: true, Outcome: string(outcome)}
			if change.Phase == store.PhaseCreate {
				resp.EventID = change.After.EventID()
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}

		rt.Publish(r.Context(), change)
		writeJSON(w, http.StatusAccepted, triggerResponse{Accepted: true})
	})
}

func validTriggerSecret(header, secret string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func validateChange(c store.Change) string {
	if _, err := records.KindForCollection(c.Collection); err != nil {
		return "unknown collection"
	}
	if c.RecordID == "" || c.UserID == "" {
		return "userId and recordId are required"
	}
	switch c.Phase {
	case store.PhaseCreate:
		if c.After == nil {
			return "create requires after"
		}
	case store.PhaseUpdate:
		if c.Before == nil || c.After == nil {
			return "update requires before and after"
		}
	case store.PhaseDelete:
		if c.Before == nil {
			return "delete requires before"
		}
	default:
		return "unknown phase"
	}
	for _, rec := range []*records.Record{c.Before, c.After} {
		if rec == nil {
			continue
		}
		if rec.UserID != "" && rec.UserID != c.UserID {
			return "snapshot userId does not match change"
		}
		if rec.ID != "" && rec.ID != c.RecordID {
			return "snapshot id does not match change"
		}
	}
	return ""
}
