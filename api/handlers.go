package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"timeline-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, boards Boards, auth Authenticator, deduper Deduper, gestures Gestures, logger *log.Logger) {
	e.GET("/api/timeline", getTimeline(boards, auth))
	e.GET("/api/timeline/stream", streamTimeline(boards, auth))
	e.POST("/api/gestures", postGestures(boards, auth, deduper, gestures, logger), GzipRequestMiddleware())
	e.POST("/api/lanes", postLane(boards, auth))
	e.PATCH("/api/lanes/:id", patchLane(boards, auth))
	e.PATCH("/api/tasks/:id", patchTask(boards, auth))
	e.PUT("/api/tasks", putTasks(boards, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getTimeline(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		boardID, err := auth.SubjectFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		board := boards.Board(ctx, boardID)
		return c.JSON(http.StatusOK, timelineResponse{Lanes: board.Lanes(), Tasks: board.Tasks()})
	}
}

func postGestures(boards Boards, auth Authenticator, deduper Deduper, gestures Gestures, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newGestureRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		boardID, authErr := auth.SubjectFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		lr := io.LimitReader(c.Request().Body, gesturePayloadMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		reqs := make([]gestureRequest, 0, 4)
		if decodeErr := dec.Decode(&reqs); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		metrics.SetGestureCount(len(reqs))

		board := boards.Board(ctx, boardID)

		applyStart := time.Now()
		applied := 0
		results := make([]gestureResult, len(reqs))
		for i, req := range reqs {
			key := req.IdempotencyKey
			if key == "" {
				key = keyForTimestamp(nextTimestamp())
			}
			results[i].IdempotencyKey = key

			// Only client-supplied keys participate in replay suppression;
			// generated keys are unique by construction.
			if deduper != nil && req.IdempotencyKey != "" {
				added, dedupeErr := deduper.Add(ctx, boardID, key)
				if dedupeErr != nil {
					logger.WithFields(log.Fields{"board": boardID, "error": dedupeErr}).Warn("dedupe check failed, applying anyway")
				} else if !added {
					results[i].Duplicate = true
					continue
				}
			}

			ok := gestures.Apply(board, req)
			results[i].Applied = ok
			if ok {
				applied++
			} else if deduper != nil && req.IdempotencyKey != "" {
				if rerr := deduper.Remove(ctx, boardID, key); rerr != nil {
					logger.WithFields(log.Fields{"board": boardID, "key": key, "error": rerr}).Warn("dedupe rollback failed")
				}
			}
		}
		metrics.ObserveApply(time.Since(applyStart))
		metrics.SetAppliedCount(applied)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, gesturesResponse{Results: results})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postLane(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		boardID, err := auth.SubjectFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createLaneRequest
		if decodeErr := decodeBody(c.Request().Body, &req); decodeErr != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		board := boards.Board(ctx, boardID)
		id := board.CreateLane(req.Title)
		return c.JSON(http.StatusCreated, createLaneResponse{ID: id})
	}
}

func patchLane(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		boardID, err := auth.SubjectFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req renameLaneRequest
		if decodeErr := decodeBody(c.Request().Body, &req); decodeErr != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		board := boards.Board(ctx, boardID)
		board.RenameLane(c.Param("id"), req.Title)
		return c.NoContent(http.StatusNoContent)
	}
}

func patchTask(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		boardID, err := auth.SubjectFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var patch domain.TaskPatch
		if decodeErr := decodeBody(c.Request().Body, &patch); decodeErr != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		board := boards.Board(ctx, boardID)
		board.UpdateTaskFields(c.Param("id"), patch)
		return c.NoContent(http.StatusNoContent)
	}
}

func putTasks(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		boardID, err := auth.SubjectFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		tasks := make([]domain.Task, 0, 8)
		if decodeErr := decodeBody(c.Request().Body, &tasks); decodeErr != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		board := boards.Board(ctx, boardID)
		board.SetAll(tasks)
		return c.NoContent(http.StatusNoContent)
	}
}

// decodeBody decodes a size-limited JSON request body. An empty body decodes
// into the zero value.
func decodeBody(body io.Reader, dst any) error {
	lr := io.LimitReader(body, gesturePayloadMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
