package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lookup-tracker/internal/adapter"
	"github.com/lookup-tracker/internal/storage"

	"github.com/gorilla/mux"
)

// personSearchType is the provider's discriminator for person lookups; it is
// injected when the caller does not set one, matching the original chat
// command behavior.
const personSearchType = "22"

// requiredPersonKeys are the parameters the provider requires for a person
// lookup. Validated here so a malformed request never costs a provider call.
var requiredPersonKeys = []string{"firstname", "lastname", "dob", "address", "city", "state", "zip"}

// SubmitLookupRequest is the body of POST /api/lookups.
type SubmitLookupRequest struct {
	Requester string            `json:"requester"`
	Params    map[string]string `json:"params"`
}

// SubmitLookupResponse is the body returned for a submission.
type SubmitLookupResponse struct {
	SearchID *string `json:"search_id"`
	Message  string  `json:"message,omitempty"`
}

// handleSubmitLookup handles POST /api/lookups
func (s *Server) handleSubmitLookup(w http.ResponseWriter, r *http.Request) {
	var req SubmitLookupRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body", nil)
		return
	}

	if strings.TrimSpace(req.Requester) == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "requester is required", nil)
		return
	}
	if len(req.Params) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "params are required", nil)
		return
	}

	params := make(map[string]string, len(req.Params)+1)
	for k, v := range req.Params {
		params[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if params["search_type"] == "" {
		params["search_type"] = personSearchType
	}

	if params["search_type"] == personSearchType {
		if missing := missingPersonKeys(params); len(missing) > 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput,
				fmt.Sprintf("missing required keys: %s", strings.Join(missing, ", ")), nil)
			return
		}
	}

	searchID, err := s.tracker.Submit(r.Context(), params, req.Requester)
	if err != nil {
		if searchID != "" {
			// Submitted but not tracked; hand the id back for manual recovery.
			respondJSON(w, http.StatusOK, SubmitLookupResponse{
				SearchID: &searchID,
				Message:  "submitted but not tracked; check the result manually",
			})
			return
		}
		respondError(w, http.StatusBadGateway, ErrCodeProviderError, err.Error(), nil)
		return
	}

	if searchID == "" {
		respondJSON(w, http.StatusOK, SubmitLookupResponse{
			Message: "no search_id found; check the result manually once available",
		})
		return
	}

	respondJSON(w, http.StatusAccepted, SubmitLookupResponse{SearchID: &searchID})
}

func missingPersonKeys(params map[string]string) []string {
	var missing []string
	for _, key := range requiredPersonKeys {
		if params[key] == "" {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// handleGetLookup handles GET /api/lookups/{id}
func (s *Server) handleGetLookup(w http.ResponseWriter, r *http.Request) {
	searchID := mux.Vars(r)["id"]
	if searchID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "search id is required", nil)
		return
	}

	job, err := s.jobs.GetByID(r.Context(), searchID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// handleGetResult handles GET /api/lookups/{id}/result - the manual,
// on-demand poll bypassing the scheduler.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	searchID := mux.Vars(r)["id"]
	if searchID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "search id is required", nil)
		return
	}

	payload, err := s.tracker.CheckResult(r.Context(), searchID)
	if err != nil {
		respondError(w, http.StatusBadGateway, ErrCodeProviderError, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// BalanceResponse is the body of GET /api/balance.
type BalanceResponse struct {
	Status    string   `json:"status"`
	Balance   *float64 `json:"balance,omitempty"`
	Formatted string   `json:"formatted"`
	Message   string   `json:"message,omitempty"`
}

// handleGetBalance handles GET /api/balance
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	res, err := s.balance.CheckBalance(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, ErrCodeProviderError, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, BalanceResponse{
		Status:    res.Status,
		Balance:   res.Balance,
		Formatted: adapter.FormatBalance(res.Balance),
		Message:   res.Message,
	})
}

// PurgeResponse is the body of POST /api/admin/purge.
type PurgeResponse struct {
	Purged int64 `json:"purged"`
}

// handlePurge handles POST /api/admin/purge?days=N
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "days must be a non-negative integer", nil)
			return
		}
		days = parsed
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	purged, err := s.jobs.PurgeOlderThan(r.Context(), cutoff)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, PurgeResponse{Purged: purged})
}
