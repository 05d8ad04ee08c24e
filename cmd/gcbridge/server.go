// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lanternguild/gcbridge/lib/bridge"
	"github.com/lanternguild/gcbridge/lib/taskqueue"
)

// taskGetter is the part of the task store the HTTP surface reads.
type taskGetter interface {
	Get(ctx context.Context, id int64) (taskqueue.Task, error)
}

// newRouter serves the status surface:
//
//	GET /health      liveness, always 200 while the process runs
//	GET /status      the bridge status snapshot
//	GET /tasks/{id}  one task row
func newRouter(reporter *bridge.Reporter, tasks taskGetter, logger *slog.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reporter.Snapshot())
	})
	router.Get("/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "task id must be a positive integer")
			return
		}
		task, err := tasks.Get(r.Context(), id)
		switch {
		case errors.Is(err, taskqueue.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			logger.Error("reading task failed", "task_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "reading task failed")
		default:
			writeJSON(w, http.StatusOK, task)
		}
	})
	return router
}

// requestLogger logs each request at debug level through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(recorder, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.Status(),
				"bytes", recorder.BytesWritten(),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
