package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"ragmemory/internal/container"
	"ragmemory/internal/model"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "provider": "rag"})
}

func (s *Server) handleContainers(c echo.Context) error {
	var tags []string
	if s.registry != nil {
		tags = s.registry.Tags()
	} else {
		var err error
		tags, err = s.pgBackend.ListTags(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	if tags == nil {
		tags = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"containers": tags})
}

type ingestRequest struct {
	ContainerTag string          `json:"containerTag"`
	SessionID    string          `json:"sessionId"`
	Messages     []model.Message `json:"messages"`
	Date         string          `json:"date"`
}

func (s *Server) handleIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if !container.ValidTag(req.ContainerTag) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "containerTag must match [A-Za-z0-9_-]+"})
	}
	if len(req.Messages) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "messages must be non-empty"})
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	session := model.Session{SessionID: req.SessionID, Messages: req.Messages, Date: req.Date}
	ids, err := s.ingest.Ingest(c.Request().Context(), req.ContainerTag, []model.Session{session})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"documentIds": ids})
}

type searchRequest struct {
	ContainerTag string `json:"containerTag"`
	Query        string `json:"query"`
	Limit        int    `json:"limit"`
}

type searchResultView struct {
	Content    string  `json:"content,omitempty"`
	Score      float64 `json:"score,omitempty"`
	Type       string  `json:"type"`
	Name       string  `json:"name,omitempty"`
	EntityType string  `json:"entityType,omitempty"`
	Source     string  `json:"source,omitempty"`
	Relation   string  `json:"relation,omitempty"`
	Target     string  `json:"target,omitempty"`
	Date       string  `json:"date,omitempty"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if !container.ValidTag(req.ContainerTag) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "containerTag must match [A-Za-z0-9_-]+"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query must be non-empty"})
	}

	results, err := s.pipeline.Search(c.Request().Context(), req.ContainerTag, req.Query, req.Limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	views := make([]searchResultView, 0, len(results))
	for _, r := range results {
		views = append(views, toView(r))
	}
	return c.JSON(http.StatusOK, map[string]any{"results": views})
}

func toView(r model.SearchResult) searchResultView {
	v := searchResultView{Type: string(r.Type), Score: r.Score}
	switch r.Type {
	case model.ResultChunk:
		if r.Chunk != nil {
			v.Content = r.Chunk.Content
		}
	case model.ResultEntity:
		if r.Entity != nil {
			v.Name = r.Entity.Name
			v.EntityType = r.Entity.Type
		}
	case model.ResultRelationship:
		if r.Relationship != nil {
			v.Source = r.Relationship.Source
			v.Relation = r.Relationship.Relation
			v.Target = r.Relationship.Target
			v.Date = r.Relationship.Date
		}
	case model.ResultProfile:
		if r.Profile != nil {
			v.Content = r.Profile.Content
		}
	}
	return v
}

type storeRequest struct {
	ContainerTag string `json:"containerTag"`
	Text         string `json:"text"`
}

// handleStore is a shorthand for ingesting a single block of free text as
// a one-message session, for callers that don't have a full conversation
// transcript to submit.
func (s *Server) handleStore(c echo.Context) error {
	var req storeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if !container.ValidTag(req.ContainerTag) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "containerTag must match [A-Za-z0-9_-]+"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text must be non-empty"})
	}

	session := model.Session{
		SessionID: uuid.NewString(),
		Messages:  []model.Message{{Role: "user", Content: req.Text}},
	}
	if _, err := s.ingest.Ingest(c.Request().Context(), req.ContainerTag, []model.Session{session}); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleClear(c echo.Context) error {
	tag := c.Param("tag")
	if !container.ValidTag(tag) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "containerTag must match [A-Za-z0-9_-]+"})
	}

	ctx := c.Request().Context()
	if s.registry != nil {
		if cont, ok := s.registry.Get(tag); ok {
			cont.Clear()
		}
		if s.snap != nil {
			if err := s.snap.Clear(ctx, tag); err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
			}
		}
	} else {
		if err := s.pgBackend.Clear(ctx, tag); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}
