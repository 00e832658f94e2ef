package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/detection"
	"github.com/nightsound/nightsound-go/internal/errors"
)

const defaultRecentLimit = 20

// SnippetResponse is the JSON shape of a snippet.
type SnippetResponse struct {
	ID         uint      `json:"id"`
	SessionID  uint      `json:"sessionId"`
	FileName   string    `json:"fileName"`
	Timestamp  time.Time `json:"timestamp"`
	EndTime    time.Time `json:"endTime"`
	DurationMs int64     `json:"durationMs"`
	RMSValue   float64   `json:"rmsValue"`
	PeakRMS    float64   `json:"peakRms"`
	AvgRMS     float64   `json:"avgRms"`
	LevelDB    float64   `json:"levelDb"`
	AudioURL   string    `json:"audioUrl"`
}

func newSnippetResponse(s *datastore.Snippet) SnippetResponse {
	return SnippetResponse{
		ID:         s.ID,
		SessionID:  s.SessionID,
		FileName:   s.FileName,
		Timestamp:  s.Timestamp,
		EndTime:    s.EndTime,
		DurationMs: s.DurationMs,
		RMSValue:   s.RMSValue,
		PeakRMS:    s.PeakRMS,
		AvgRMS:     s.AvgRMS,
		LevelDB:    detection.ToDecibels(s.RMSValue),
		AudioURL:   fmt.Sprintf("/api/v1/snippets/%d/audio", s.ID),
	}
}

func newSnippetResponses(list []datastore.Snippet) []SnippetResponse {
	out := make([]SnippetResponse, 0, len(list))
	for i := range list {
		out = append(out, newSnippetResponse(&list[i]))
	}
	return out
}

func (c *Controller) initSnippetRoutes() {
	c.Group.GET("/snippets/recent", c.GetRecentSnippets)
	c.Group.GET("/snippets/:id", c.GetSnippet)
	c.Group.GET("/snippets/:id/audio", c.ServeSnippetAudio)
	c.Group.DELETE("/snippets/:id", c.DeleteSnippet)
	c.Group.DELETE("/snippets", c.PurgeSnippets)
}

// GetRecentSnippets returns the newest snippets across sessions.
func (c *Controller) GetRecentSnippets(ctx echo.Context) error {
	limit, err := queryInt(ctx, "limit", defaultRecentLimit)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid limit", http.StatusBadRequest)
	}
	list, err := c.Library.Recent(limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list snippets", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, newSnippetResponses(list))
}

// GetSnippet returns one snippet.
func (c *Controller) GetSnippet(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid snippet id", http.StatusBadRequest)
	}
	s, err := c.Library.Snippet(id)
	if err != nil {
		return c.HandleError(ctx, err, "Snippet not found", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, newSnippetResponse(s))
}

// ServeSnippetAudio streams the WAV file of a snippet. Range requests are
// handled by http.ServeContent through echo's File.
func (c *Controller) ServeSnippetAudio(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid snippet id", http.StatusBadRequest)
	}
	path, s, err := c.Library.SnippetPath(id)
	if err != nil {
		return c.HandleError(ctx, err, "Snippet not found", statusFor(err))
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return c.HandleError(ctx, err, "Audio file not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Error accessing audio file", http.StatusInternalServerError)
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("inline; filename=%q", s.FileName))
	ctx.Response().Header().Set(echo.HeaderContentType, "audio/wav")
	return ctx.File(path)
}

// DeleteSnippet removes a snippet and its file.
func (c *Controller) DeleteSnippet(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid snippet id", http.StatusBadRequest)
	}
	if err := c.Library.DeleteSnippet(id); err != nil {
		return c.HandleError(ctx, err, "Failed to delete snippet", statusFor(err))
	}
	return ctx.NoContent(http.StatusNoContent)
}

// PurgeSnippets deletes every session and snippet. It requires
// ?confirm=true and is refused while recording.
func (c *Controller) PurgeSnippets(ctx echo.Context) error {
	if ctx.QueryParam("confirm") != "true" {
		return c.HandleError(ctx, errors.ValidationError("purge requires confirm=true"),
			"Purge not confirmed", http.StatusBadRequest)
	}
	removed, err := c.Library.Purge()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to purge library", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, map[string]int{"filesRemoved": removed})
}
