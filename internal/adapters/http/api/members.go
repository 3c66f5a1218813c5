package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/clubwatch/internal/domain/model"
)

// SnapshotProvider exposes the committed state.
type SnapshotProvider interface {
	Snapshot() *model.State
}

// Member is the read shape of one tracked club member.
type Member struct {
	ID                string         `json:"id"`
	DisplayName       string         `json:"display_name"`
	Role              string         `json:"role"`
	Trophies          map[string]int `json:"trophies"`
	Ranked            *int           `json:"ranked,omitempty"`
	LastThreshold     int            `json:"last_threshold"`
	PendingRebaseline bool           `json:"pending_rebaseline,omitempty"`
}

// MembersHandler serves the roster and per-member watermarks.
type MembersHandler struct {
	deps SnapshotProvider
}

// NewMembersHandler creates a new members handler.
func NewMembersHandler(deps SnapshotProvider) *MembersHandler {
	return &MembersHandler{deps: deps}
}

// HandleListMembers handles GET /members?limit=N requests. Members are
// ordered by ID; limit is optional.
func (h *MembersHandler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit := -1
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		limit = n
	}

	st := h.deps.Snapshot()
	ids := model.SortedIDs(st.Roster)
	if limit >= 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, memberView(st, id))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetMember handles GET /members/{tag} requests. The tag may be sent
// with or without its leading '#', which has to be escaped as %23.
func (h *MembersHandler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/members/")
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	id := model.NormalizeTag(raw)

	st := h.deps.Snapshot()
	if _, ok := st.Roster[id]; !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%w: %s", ErrMemberNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, memberView(st, id))
}

func memberView(st *model.State, id string) Member {
	ref := st.Roster[id]
	m := Member{
		ID:                id,
		DisplayName:       ref.DisplayName,
		Role:              ref.Role,
		Trophies:          st.Trophies[id],
		LastThreshold:     st.LastThreshold[id],
		PendingRebaseline: st.Rebaseline[id],
	}
	if m.Trophies == nil {
		m.Trophies = map[string]int{}
	}
	if v, ok := st.Ranked[id]; ok {
		m.Ranked = &v
	}
	return m
}
