package web

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"lorecore/internal/media"
	"lorecore/pkg/domain"
)

type projectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type elementRequest struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description *string `json:"description,omitempty"`
}

type relationshipRequest struct {
	FromID      string  `json:"from_id"`
	ToID        string  `json:"to_id"`
	Type        string  `json:"type"`
	Description *string `json:"description,omitempty"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	project, _, err := s.service.CreateProject(r.Context(), domain.Project{Name: req.Name, Description: req.Description})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.ListProjects())
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	project, ok := s.service.GetProject(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "project not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	project, _, err := s.service.UpdateProject(r.Context(), id, func(p *domain.Project) error {
		if req.Name != "" {
			p.Name = req.Name
		}
		if req.Description != nil {
			p.Description = req.Description
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.service.DeleteProject(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleActivateProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	project, err := s.service.SetActiveProject(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleCreateElement(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	var req elementRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	element, _, err := s.service.CreateElement(r.Context(), domain.Element{
		ProjectID:   projectID,
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, element)
}

func (s *Server) handleListElements(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	s.writeJSON(w, http.StatusOK, s.service.ListElements(projectID))
}

func (s *Server) handleGetElement(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	element, ok := s.service.GetElement(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "element not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, element)
}

func (s *Server) handleUpdateElement(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req elementRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	element, _, err := s.service.UpdateElement(r.Context(), id, func(e *domain.Element) error {
		if req.Name != "" {
			e.Name = req.Name
		}
		if req.Category != "" {
			e.Category = req.Category
		}
		if req.Description != nil {
			e.Description = req.Description
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, element)
}

func (s *Server) handleDeleteElement(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.service.DeleteElement(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleAddRelationship(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	var req relationshipRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	rel, _, err := s.service.AddRelationship(r.Context(), projectID, domain.RelationshipDraft{
		FromID:      req.FromID,
		ToID:        req.ToID,
		Type:        req.Type,
		Description: req.Description,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleRemoveRelationship(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.service.RemoveRelationship(r.Context(), vars["id"], vars["relID"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleElementRelationships(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rels := s.service.ElementRelationships(r.Context(), vars["id"], vars["elementID"])
	if rels == nil {
		rels = []domain.Relationship{}
	}
	s.writeJSON(w, http.StatusOK, rels)
}

func (s *Server) handleRelatedElements(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ids := s.service.RelatedElementIDs(r.Context(), vars["id"], vars["elementID"])
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleRelationshipsByType(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	relType := r.URL.Query().Get("type")
	if relType == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "type query parameter required"})
		return
	}
	rels := s.service.RelationshipsByType(r.Context(), projectID, relType)
	if rels == nil {
		rels = []domain.Relationship{}
	}
	s.writeJSON(w, http.StatusOK, rels)
}

type relatedResponse struct {
	Related bool `json:"related"`
}

func (s *Server) handleAreRelated(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	if a == "" || b == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "a and b query parameters required"})
		return
	}
	s.writeJSON(w, http.StatusOK, relatedResponse{Related: s.service.AreElementsRelated(r.Context(), projectID, a, b)})
}

func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	element, ok := s.service.GetElement(vars["elementID"])
	if !ok || element.ProjectID != vars["id"] {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "element not found"})
		return
	}
	key, err := media.ElementKey(vars["id"], vars["elementID"], vars["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.media.Put(r.Context(), key, r.Body, media.PutOptions{
		ContentType: r.Header.Get("Content-Type"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	infos, err := s.media.List(r.Context(), media.ElementPrefix(vars["id"], vars["elementID"]))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if infos == nil {
		infos = []media.Info{}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleDownloadMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key, err := media.ElementKey(vars["id"], vars["elementID"], vars["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, rc, err := s.media.Get(r.Context(), key)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "attachment not found"})
		return
	}
	defer func() { _ = rc.Close() }()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.ETag != "" {
		w.Header().Set("ETag", info.ETag)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error("stream attachment", "key", key, "error", err)
	}
}

type presignResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in_seconds"`
}

func (s *Server) handlePresignMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key, err := media.ElementKey(vars["id"], vars["elementID"], vars["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.media.Head(r.Context(), key); err != nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "attachment not found"})
		return
	}
	expiry := 15 * time.Minute
	if raw := r.URL.Query().Get("expiry"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid expiry duration"})
			return
		}
		expiry = d
	}
	url, err := s.media.PresignURL(r.Context(), key, media.SignedURLOptions{Method: http.MethodGet, Expiry: expiry})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, presignResponse{URL: url, ExpiresIn: int64(expiry / time.Second)})
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key, err := media.ElementKey(vars["id"], vars["elementID"], vars["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	removed, err := s.media.Delete(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !removed {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "attachment not found"})
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}
