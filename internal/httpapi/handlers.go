package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	slogctx "github.com/veqryn/slog-context"

	"github.com/gehhilfe/orthrus"
	"github.com/gehhilfe/orthrus/core"
)

type rangeQuery struct {
	From     int64  `form:"from,default=1"`
	To       *int64 `form:"to"`
	PageSize int    `form:"pageSize,default=100"`
}

func (q rangeQuery) bound() core.Bound {
	if q.To == nil {
		return core.Unbounded()
	}
	return core.UpTo(*q.To)
}

// next is the lower bound of the page after one that was not final.
func (q rangeQuery) next() int64 {
	next := q.From + int64(q.PageSize)
	if q.To != nil {
		next = min(next, *q.To)
	}
	return next
}

type rangePage struct {
	Events []orthrus.Event `json:"events"`
	Done   bool            `json:"done"`
	// Next is the "from" of the following page, unset on the final page.
	Next *int64 `json:"next,omitempty"`
}

type typePage struct {
	Events   []orthrus.Event `json:"events"`
	Done     bool            `json:"done"`
	NextPage *int            `json:"nextPage,omitempty"`
}

type appendRequest struct {
	Aggregate string `json:"aggregate" binding:"required"`
	// ExpectedRevision, when set, must equal the revision of the last stored
	// event of the aggregate, 0 for a new one.
	ExpectedRevision *int64            `json:"expectedRevision"`
	Payloads         []json.RawMessage `json:"payloads" binding:"required,min=1"`
}

type appendResponse struct {
	Events []orthrus.NewEvent `json:"events"`
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrUniqueConstraint):
		c.JSON(http.StatusConflict, gin.H{"error": "revision already taken"})
	default:
		slogctx.FromCtx(c.Request.Context()).Error("request failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (s *Server) writeRangePage(c *gin.Context, q rangeQuery, cursor core.Pager[orthrus.Event]) {
	page, err := cursor.Next(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := rangePage{Events: page.Items, Done: page.Done}
	if resp.Events == nil {
		resp.Events = []orthrus.Event{}
	}
	if !page.Done {
		next := q.next()
		resp.Next = &next
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetAllEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q rangeQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cursor, err := s.store.GetAllEvents(q.From, q.bound(), q.PageSize)
		if err != nil {
			s.writeError(c, err)
			return
		}
		s.writeRangePage(c, q, cursor)
	}
}

func (s *Server) handleGetEventsByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q rangeQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cursor, err := s.store.GetEventsByID(c.Param("id"), q.PageSize, q.From, q.bound())
		if err != nil {
			s.writeError(c, err)
			return
		}
		s.writeRangePage(c, q, cursor)
	}
}

func (s *Server) handleGetEventsByType() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q struct {
			PageSize int `form:"pageSize,default=100"`
			Page     int `form:"page"`
		}
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if q.Page < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page must not be negative"})
			return
		}

		cursor, err := s.store.GetEventsByType(c.Param("aggregate"), q.PageSize)
		if err != nil {
			s.writeError(c, err)
			return
		}

		var page core.Page[orthrus.Event]
		for i := 0; i <= q.Page; i++ {
			if page, err = cursor.Next(c.Request.Context()); err != nil {
				s.writeError(c, err)
				return
			}
		}

		resp := typePage{Events: page.Items, Done: page.Done}
		if resp.Events == nil {
			resp.Events = []orthrus.Event{}
		}
		if !page.Done {
			nextPage := q.Page + 1
			resp.NextPage = &nextPage
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleGetLastEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, found, err := s.store.GetLastEvent(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "aggregate has no events"})
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

func (s *Server) handleAppendEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req appendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		stream, err := s.store.GetEventStream(ctx, c.Param("id"), req.Aggregate, 1, 1, core.Unbounded())
		if err != nil {
			s.writeError(c, err)
			return
		}

		if req.ExpectedRevision != nil {
			rev, _ := stream.Revision()
			if rev != *req.ExpectedRevision {
				c.JSON(http.StatusConflict, gin.H{"error": "unexpected revision", "revision": rev})
				return
			}
		}

		payloads := make([]string, len(req.Payloads))
		for i, p := range req.Payloads {
			payloads[i] = string(p)
		}
		staged := stream.SaveAll(payloads)

		if err := stream.Commit(ctx); err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, appendResponse{Events: staged})
	}
}
