package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/library"
)

const defaultSessionLimit = 50

// SessionResponse is the JSON shape of a session.
type SessionResponse struct {
	ID              uint       `json:"id"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	LastCheckpoint  *time.Time `json:"lastCheckpoint,omitempty"`
	DurationSeconds float64    `json:"durationSeconds"`
	SnippetCount    int        `json:"snippetCount"`
	Active          bool       `json:"active"`
	Recovered       bool       `json:"recovered"`
}

func newSessionResponse(s *datastore.Session) SessionResponse {
	return SessionResponse{
		ID:              s.ID,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		LastCheckpoint:  s.LastCheckpoint,
		DurationSeconds: s.Duration(time.Now()).Seconds(),
		SnippetCount:    s.SnippetCount,
		Active:          s.Active(),
		Recovered:       s.Recovered,
	}
}

func (c *Controller) initSessionRoutes() {
	c.Group.GET("/sessions", c.GetSessions)
	c.Group.GET("/sessions/:id", c.GetSession)
	c.Group.GET("/sessions/:id/snippets", c.GetSessionSnippets)
	c.Group.DELETE("/sessions/:id", c.DeleteSession)
}

// GetSessions lists sessions newest first.
func (c *Controller) GetSessions(ctx echo.Context) error {
	limit, err := queryInt(ctx, "limit", defaultSessionLimit)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid limit", http.StatusBadRequest)
	}
	offset, err := queryInt(ctx, "offset", 0)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid offset", http.StatusBadRequest)
	}

	sessions, err := c.Library.Sessions(limit, offset)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list sessions", statusFor(err))
	}
	out := make([]SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, newSessionResponse(&sessions[i]))
	}
	return ctx.JSON(http.StatusOK, out)
}

// GetSession returns one session.
func (c *Controller) GetSession(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid session id", http.StatusBadRequest)
	}
	s, err := c.Library.Session(id)
	if err != nil {
		return c.HandleError(ctx, err, "Session not found", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(s))
}

// GetSessionSnippets lists a session's snippets. order=loudest sorts by
// RMS value, the default is capture time.
func (c *Controller) GetSessionSnippets(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid session id", http.StatusBadRequest)
	}
	list, err := c.Library.Snippets(id, library.Order(ctx.QueryParam("order")))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list snippets", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, newSnippetResponses(list))
}

// DeleteSession removes a finished session, its snippets and their files.
func (c *Controller) DeleteSession(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid session id", http.StatusBadRequest)
	}
	if _, err := c.Library.DeleteSession(id); err != nil {
		return c.HandleError(ctx, err, "Failed to delete session", statusFor(err))
	}
	return ctx.NoContent(http.StatusNoContent)
}
