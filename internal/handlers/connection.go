package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/introspect"
	"github.com/docc-labs/docc-api/internal/models"
	"github.com/docc-labs/docc-api/internal/repository"
)

type ConnectionHandler struct {
	store     repository.Store
	inspector *introspect.Inspector
	logger    zerolog.Logger
}

func NewConnectionHandler(store repository.Store, inspector *introspect.Inspector, logger zerolog.Logger) *ConnectionHandler {
	return &ConnectionHandler{store: store, inspector: inspector, logger: logger}
}

type connectionRequest struct {
	Name     string            `json:"name"`
	Source   models.SourceKind `json:"source"`
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	User     string            `json:"user"`
	Password string            `json:"password"`
	Database string            `json:"database"`
}

func (req *connectionRequest) validate() error {
	if req.Name == "" {
		return apperr.New(apperr.Validation, "name is required")
	}
	if !req.Source.Valid() {
		return apperr.New(apperr.Validation, "source must be \"mysql\" or \"postgres\", got %q", string(req.Source))
	}
	if req.Host == "" || req.Port == 0 {
		return apperr.New(apperr.Validation, "host and port are required")
	}
	if req.User == "" || req.Database == "" {
		return apperr.New(apperr.Validation, "user and database are required")
	}
	return nil
}

// Create probes the source before persisting anything. An unreachable
// database rejects the registration instead of storing a dead connection.
func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request payload"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	conn := models.Connection{
		Name:          req.Name,
		Source:        req.Source,
		Host:          req.Host,
		Port:          req.Port,
		User:          req.User,
		Password:      req.Password,
		Database:      req.Database,
		Status:        "valid",
		LastConnected: &now,
	}

	if err := h.inspector.Probe(r.Context(), conn); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.store.Connections().Create(r.Context(), conn)
	if err != nil {
		writeError(w, err)
		return
	}

	created.Password = ""
	writeJSON(w, http.StatusCreated, created)
}

func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.store.Connections().List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	for i := range conns {
		conns[i].Password = ""
	}
	writeJSON(w, http.StatusOK, conns)
}

func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := h.store.Connections().Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	conn.Password = ""
	writeJSON(w, http.StatusOK, conn)
}

func (h *ConnectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	existing, err := h.store.Connections().Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request payload"))
		return
	}
	if req.Password == "" {
		// Keep the stored secret when the client did not send a new one.
		req.Password = existing.Password
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	existing.Name = req.Name
	existing.Source = req.Source
	existing.Host = req.Host
	existing.Port = req.Port
	existing.User = req.User
	existing.Password = req.Password
	existing.Database = req.Database
	existing.Status = "valid"
	existing.LastConnected = &now

	if err := h.inspector.Probe(r.Context(), existing); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.store.Connections().Update(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	updated.Password = ""
	writeJSON(w, http.StatusOK, updated)
}

func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.Connections().Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info().Int64("connection_id", id).Msg("connection deleted")
	w.WriteHeader(http.StatusNoContent)
}
