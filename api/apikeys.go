package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/db"
	log "github.com/sirupsen/logrus"
)

// generateAPIKey generates a random 32-byte hex string
func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// validateMasterKey checks the Authorization header against the master key. An unset master
// key disables key management entirely.
func (s *Server) validateMasterKey(r *http.Request) bool {
	key := apiKeyFromRequest(r)
	if s.MasterKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.MasterKey)) == 1
}

// CreateAPIKey creates a new API key
func (s *Server) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	if !s.validateMasterKey(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	key, err := generateAPIKey()
	if err != nil {
		http.Error(w, "Failed to generate API key", http.StatusInternalServerError)
		return
	}

	apiKey, err := s.Repo.CreateAPIKey(r.Context(), key, req.Description)
	if err != nil {
		logStorageError(err)
		http.Error(w, "Failed to create API key", http.StatusInternalServerError)
		return
	}
	log.WithFields(log.Fields{"key_id": apiKey.ID, "description": apiKey.Description}).Info("API key created")

	writeJSON(w, http.StatusCreated, apiKey)
}

// DeleteAPIKey deletes an API key
func (s *Server) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if !s.validateMasterKey(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := s.Repo.DeleteAPIKey(r.Context(), req.ID)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "API key not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logStorageError(err)
		http.Error(w, "Failed to delete API key", http.StatusInternalServerError)
		return
	}
	log.WithField("key_id", req.ID).Info("API key deleted")

	w.WriteHeader(http.StatusNoContent)
}

// ListAPIKeys lists all API keys (only accessible with master key)
func (s *Server) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	if !s.validateMasterKey(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	apiKeys, err := s.Repo.ListAPIKeys(r.Context())
	if err != nil {
		logStorageError(err)
		http.Error(w, "Failed to list API keys", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, apiKeys)
}
