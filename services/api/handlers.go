package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	deployer "github.com/kattsoftware/phassets-amazon-s3-deployer"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/services/ledger"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path  string `json:"path"`
		Force bool   `json:"force"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	asset, err := a.resolveAsset(req.Path)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	if !req.Force {
		if url, ok := a.deployer.Lookup(r.Context(), asset); ok {
			deploysTotal.WithLabelValues("skipped").Inc()
			respondJSON(w, http.StatusOK, map[string]any{
				"url":              url,
				"already_deployed": true,
			})
			return
		}
	}

	url, err := a.deployer.Deploy(r.Context(), asset)
	if err != nil {
		deploysTotal.WithLabelValues("failed").Inc()
		a.logger.Printf("[ERROR] deploy %s: %v", req.Path, err)

		status := http.StatusBadGateway
		var cfgErr *deployer.ConfigError
		if errors.As(err, &cfgErr) {
			status = http.StatusInternalServerError
		}
		respondError(w, status, err)
		return
	}

	deploysTotal.WithLabelValues("deployed").Inc()
	respondJSON(w, http.StatusCreated, map[string]any{
		"url":              url,
		"already_deployed": false,
	})
}

func (a *API) handleLookup(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		respondError(w, http.StatusBadRequest, errors.New("missing path query parameter"))
		return
	}

	asset, err := a.resolveAsset(path)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	url, ok := a.deployer.Lookup(r.Context(), asset)
	if !ok {
		lookupsTotal.WithLabelValues("miss").Inc()
		respondError(w, http.StatusNotFound, errors.New("not deployed"))
		return
	}

	lookupsTotal.WithLabelValues("hit").Inc()
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (a *API) handleRecent(w http.ResponseWriter, r *http.Request) {
	if a.pool == nil {
		respondError(w, http.StatusFailedDependency, errors.New("ledger database not configured"))
		return
	}

	limit := defaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		if parsed > maxRecentLimit {
			parsed = maxRecentLimit
		}
		limit = parsed
	}

	deployments, err := ledger.Recent(r.Context(), a.pool, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"deployments": deployments})
}
