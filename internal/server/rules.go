package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brelow/eml-archiver/internal/archive"
	"github.com/brelow/eml-archiver/internal/store"
)

type ruleResponse struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Layout    string     `json:"layout"`
	Scope     string     `json:"scope"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func toRuleResponse(rule *store.Rule) ruleResponse {
	resp := ruleResponse{
		ID:     rule.ID,
		Name:   rule.Name,
		Layout: rule.Layout,
		Scope:  rule.Scope,
	}
	if rule.CreatedAt.Valid {
		t := rule.CreatedAt.Time
		resp.CreatedAt = &t
	}
	return resp
}

// ListRules returns all stored conversion rules.
func (s *Server) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListRules()
	if err != nil {
		s.log.Error("failed to list rules", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}

	resp := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, toRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": resp})
}

// CreateRule stores a new conversion rule.
func (s *Server) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Layout string `json:"layout"`
		Scope  string `json:"scope"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "rule name must not be empty")
		return
	}
	if _, err := archive.ParseLayoutPolicy(req.Layout); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := archive.ParseScopePolicy(req.Scope); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := &store.Rule{Name: req.Name, Layout: req.Layout, Scope: req.Scope}
	id, err := s.store.InsertRule(rule)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			writeError(w, http.StatusConflict, "a rule with this name already exists")
			return
		}
		s.log.Error("failed to insert rule", zap.String("name", req.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store rule")
		return
	}
	rule.ID = id

	writeJSON(w, http.StatusCreated, toRuleResponse(rule))
}
