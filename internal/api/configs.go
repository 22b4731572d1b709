// ABOUTME: Handlers for /api/v1/config: create, list, get, update, delete
// ABOUTME: Translates registry results into the response shapes clients expect

package api

import (
	"net/http"
	"strconv"

	"github.com/2389/vpn-gateway/internal/registry"
)

const configNotFound = "VPN configuration not found"

// ConfigRequest is the body of create and update requests.
type ConfigRequest struct {
	ConfigData registry.Data `json:"config_data"`
}

// ConfigResponse acknowledges a write.
type ConfigResponse struct {
	Message  string `json:"message"`
	ConfigID int64  `json:"config_id"`
}

func parseConfigRequest(w http.ResponseWriter, r *http.Request) (registry.Data, string) {
	var req ConfigRequest
	if err := decodeBody(w, r, &req); err != nil {
		return nil, err.Error()
	}
	if req.ConfigData == nil {
		return nil, "config_data must be a JSON object"
	}
	return req.ConfigData, ""
}

func parseConfigID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (a *API) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	data, msg := parseConfigRequest(w, r)
	if msg != "" {
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}

	id, err := a.registry.CreateConfig(r.Context(), data)
	if err != nil {
		a.writeError(w, r, "create config", err)
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{Message: "VPN configuration created", ConfigID: id})
}

func (a *API) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := a.registry.ListConfigs(r.Context())
	if err != nil {
		a.writeError(w, r, "list configs", err)
		return
	}
	// JSON object keys are strings; encoding/json formats the int64 keys in decimal.
	writeJSON(w, http.StatusOK, configs)
}

func (a *API) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseConfigID(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid config id")
		return
	}

	cfg, found, err := a.registry.GetConfig(r.Context(), id)
	if err != nil {
		a.writeError(w, r, "get config", err)
		return
	}
	if !found {
		writeDetail(w, http.StatusNotFound, configNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Data)
}

func (a *API) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseConfigID(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid config id")
		return
	}
	data, msg := parseConfigRequest(w, r)
	if msg != "" {
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := a.registry.UpdateConfig(r.Context(), id, data)
	if err != nil {
		a.writeError(w, r, "update config", err)
		return
	}
	if !updated {
		writeDetail(w, http.StatusNotFound, configNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{Message: "VPN configuration updated", ConfigID: id})
}

func (a *API) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseConfigID(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid config id")
		return
	}

	deleted, err := a.registry.DeleteConfig(r.Context(), id)
	if err != nil {
		a.writeError(w, r, "delete config", err)
		return
	}
	if !deleted {
		writeDetail(w, http.StatusNotFound, configNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{Message: "VPN configuration deleted", ConfigID: id})
}
