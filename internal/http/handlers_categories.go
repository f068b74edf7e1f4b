package http

import (
	"net/http"
	"time"

	"fintrack/internal/core"
)

type categoryJSON struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toCategoryJSON(c *core.Category) categoryJSON {
	return categoryJSON{
		ID:        c.ID,
		Name:      c.Name,
		ParentID:  c.ParentID,
		CreatedAt: c.CreatedAt,
	}
}

type categoryRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

// checkParent verifies a parent category belongs to the user and that
// selfID, when set, is not its own parent.
func (s *Server) checkParent(r *http.Request, userID int64, parentID *int64, selfID int64) error {
	if parentID == nil {
		return nil
	}
	if selfID != 0 && *parentID == selfID {
		return core.Validationf("category cannot be its own parent")
	}
	_, err := s.store.CategoryByID(r.Context(), userID, *parentID)
	return err
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c := &core.Category{UserID: userID, Name: req.Name, ParentID: req.ParentID}
	if err := c.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.checkParent(r, userID, req.ParentID, 0); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.store.CreateCategory(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryJSON(c))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	cats, err := s.store.ListCategories(r.Context(), userID,
		queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]categoryJSON, 0, len(cats))
	for i := range cats {
		out = append(out, toCategoryJSON(&cats[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.store.CategoryByID(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryJSON(c))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c := &core.Category{ID: id, UserID: userID, Name: req.Name, ParentID: req.ParentID}
	if err := c.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.checkParent(r, userID, req.ParentID, id); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.store.UpdateCategory(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryJSON(c))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	hasChildren, err := s.store.HasChildCategories(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hasChildren {
		writeError(w, r, core.Conflictf("category has child categories"))
		return
	}

	if err := s.store.DeleteCategory(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
