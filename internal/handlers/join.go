package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/materialize"
	"github.com/docc-labs/docc-api/internal/repository"
)

type JoinHandler struct {
	store  repository.Store
	client *materialize.Client
	logger zerolog.Logger
}

func NewJoinHandler(store repository.Store, client *materialize.Client, logger zerolog.Logger) *JoinHandler {
	return &JoinHandler{store: store, client: client, logger: logger}
}

type joinRequest struct {
	ConnectionID int64 `json:"connection_id"`
	materialize.JoinSpec
}

// Create materializes a two-table join as a new table or view on the target
// connection's database.
func (h *JoinHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request payload"))
		return
	}
	if req.ConnectionID == 0 {
		writeError(w, apperr.New(apperr.Validation, "connection_id is required"))
		return
	}
	if err := req.JoinSpec.Validate(); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.store.Connections().Get(r.Context(), req.ConnectionID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.client.Materialize(r.Context(), conn, &req.JoinSpec)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info().
		Str("new_table", req.NewTable).
		Int64("connection_id", conn.ID).
		Bool("success", result.Success).
		Msg("join materialized")
	writeJSON(w, http.StatusOK, result)
}
