package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/janelia-flyem/mrf/datastore"
	"github.com/janelia-flyem/mrf/dvid"
	"github.com/janelia-flyem/mrf/storage"

	"github.com/dustin/go-humanize"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"
)

const webHelp = `
API for MRF relaxation server
=============================

GET  /api/help
	Returns this help message.

GET  /api/server/info
	Returns JSON with version, store and relaxation settings.

GET  /api/volumes
	Returns JSON mapping each volume name to the kinds stored under it.

PUT  /api/volume/<name>/<kind>
GET  /api/volume/<name>/<kind>
DELETE /api/volume/<name>/<kind>
	Stores, retrieves or deletes an encoded volume.  Kind is one of
	"responsibilities", "priors" or "interaction".

GET  /api/volume/<name>/<kind>/info
	Returns JSON describing a stored volume.

POST /api/relax
	Runs relaxation steps on stored volumes.  The JSON body:

	{
		"responsibilities": "cells",   // required
		"priors": "cells",             // required
		"interaction": "cells",        // required
		"output": "cells-relaxed",     // optional, defaults to overwriting responsibilities
		"anisotropy": [1, 1, 4],       // optional neighbor weights along x, y, z
		"voxelsize": [8, 8, 40],       // optional alternative: weights are squared sizes
		"steps": 1,                    // optional number of relaxation steps
		"workers": 4                   // optional goroutines per half-sweep
	}

Requests that modify data require a JWT bearer token if the server has a secret key.
`

func (s *Server) initRoutes() {
	mux := web.New()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(logHTTP)
	mux.Use(s.auth.isAuthorized)

	mux.Get("/api/help", helpHandler)
	mux.Get("/api/server/info", s.serverInfoHandler)
	mux.Get("/api/volumes", s.volumesHandler)
	mux.Get("/api/volume/:name/:kind/info", s.volumeInfoHandler)
	mux.Get("/api/volume/:name/:kind", s.getVolumeHandler)
	mux.Put("/api/volume/:name/:kind", s.putVolumeHandler)
	mux.Post("/api/volume/:name/:kind", s.putVolumeHandler)
	mux.Delete("/api/volume/:name/:kind", s.deleteVolumeHandler)
	mux.Post("/api/relax", s.relaxHandler)
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, r, "unknown endpoint %s; see /api/help", r.URL.Path)
	})
	s.mux = mux
}

// logHTTP is middleware that logs each request with its elapsed time.
func logHTTP(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		timedLog := dvid.NewTimeLog()
		h.ServeHTTP(w, r)
		timedLog.Debugf("HTTP %s %s [%s]", r.Method, r.URL, middleware.GetReqID(*c))
	}
	return http.HandlerFunc(fn)
}

// BadRequest writes a 400 error with the formatted message and logs it.
func BadRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	httpError(w, r, http.StatusBadRequest, format, args...)
}

// NotFound writes a 404 error with the formatted message.
func NotFound(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	httpError(w, r, http.StatusNotFound, format, args...)
}

// Unauthorized writes a 401 error with the formatted message.
func Unauthorized(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	httpError(w, r, http.StatusUnauthorized, format, args...)
}

func httpError(w http.ResponseWriter, r *http.Request, status int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if status >= http.StatusInternalServerError {
		dvid.Errorf("%s %s: %s\n", r.Method, r.URL, msg)
	} else {
		dvid.Infof("%s %s (%d): %s\n", r.Method, r.URL, status, msg)
	}
	http.Error(w, msg, status)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		dvid.Errorf("unable to write JSON response to %s %s: %v\n", r.Method, r.URL, err)
	}
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, webHelp)
}

func (s *Server) serverInfoHandler(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"Version":     Version.String(),
		"Store":       s.volumes.String(),
		"Engines":     storage.EnginesAvailable(),
		"Cores":       dvid.NumCPU,
		"Workers":     s.config.Relax.Workers,
		"MaxSteps":    s.config.maxSteps(),
		"Compression": s.compress.String(),
		"LogLevel":    dvid.LogMode().String(),
		"Note":        s.config.Server.Note,
		"Started":     humanize.Time(s.started),
	}
	if topic := storage.KafkaActivityTopic(); topic != "" {
		info["KafkaActivityTopic"] = topic
	}
	writeJSON(w, r, info)
}

func (s *Server) volumesHandler(w http.ResponseWriter, r *http.Request) {
	names, err := s.volumes.List()
	if err != nil {
		httpError(w, r, http.StatusInternalServerError, "unable to list volumes: %v", err)
		return
	}
	writeJSON(w, r, names)
}

// volumeParams returns the name and kind from the URL, writing an error if they are bad.
func volumeParams(c web.C, w http.ResponseWriter, r *http.Request) (string, datastore.Kind, bool) {
	name := c.URLParams["name"]
	if err := datastore.ValidName(name); err != nil {
		BadRequest(w, r, "%v", err)
		return "", 0, false
	}
	kind, err := datastore.ParseKind(c.URLParams["kind"])
	if err != nil {
		BadRequest(w, r, "%v", err)
		return "", 0, false
	}
	return name, kind, true
}

func (s *Server) volumeInfoHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	name, kind, ok := volumeParams(c, w, r)
	if !ok {
		return
	}
	lock := s.volumes.Lock(name)
	lock.RLock()
	info, err := s.volumes.Info(name, kind)
	lock.RUnlock()
	if err != nil {
		httpError(w, r, http.StatusInternalServerError, "%v", err)
		return
	}
	if info == nil {
		NotFound(w, r, "no %s stored for %q", kind, name)
		return
	}
	writeJSON(w, r, info)
}

func (s *Server) getVolumeHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	name, kind, ok := volumeParams(c, w, r)
	if !ok {
		return
	}
	lock := s.volumes.Lock(name)
	lock.RLock()
	data, err := s.volumes.GetEncoded(name, kind)
	lock.RUnlock()
	if err != nil {
		httpError(w, r, http.StatusInternalServerError, "%v", err)
		return
	}
	if data == nil {
		NotFound(w, r, "no %s stored for %q", kind, name)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(data); err != nil {
		dvid.Errorf("unable to write %s %q: %v\n", kind, name, err)
	}
}

func (s *Server) putVolumeHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	name, kind, ok := volumeParams(c, w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		BadRequest(w, r, "unable to read request body: %v", err)
		return
	}
	lock := s.volumes.Lock(name)
	lock.Lock()
	v, err := s.volumes.PutEncoded(name, kind, data)
	lock.Unlock()
	if err != nil {
		BadRequest(w, r, "unable to store %s %q: %v", kind, name, err)
		return
	}
	dvid.Infof("Stored %s %q with dims %s (%s)\n", kind, name, v.Dims(), humanize.Bytes(uint64(len(data))))
	storage.LogActivityToKafka(map[string]interface{}{
		"action": "put",
		"time":   time.Now().Unix(),
		"name":   name,
		"kind":   kind.String(),
		"bytes":  len(data),
		"user":   c.Env["user"],
	})
	writeJSON(w, r, map[string]interface{}{"name": name, "kind": kind.String(), "bytes": len(data)})
}

func (s *Server) deleteVolumeHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	name, kind, ok := volumeParams(c, w, r)
	if !ok {
		return
	}
	lock := s.volumes.Lock(name)
	lock.Lock()
	err := s.volumes.Delete(name, kind)
	lock.Unlock()
	if err != nil {
		httpError(w, r, http.StatusInternalServerError, "unable to delete %s %q: %v", kind, name, err)
		return
	}
	dvid.Infof("Deleted %s %q\n", kind, name)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) relaxHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		BadRequest(w, r, "unable to read request body: %v", err)
		return
	}
	req, err := s.parseRelaxRequest(body)
	if err != nil {
		BadRequest(w, r, "bad relax request: %v", err)
		return
	}
	result, err := s.runRelax(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		NotFound(w, r, "%v", err)
		return
	case errors.Is(err, errBadInput):
		BadRequest(w, r, "%v", err)
		return
	default:
		httpError(w, r, http.StatusInternalServerError, "relaxation failed: %v", err)
		return
	}
	activity := result.activity()
	activity["user"] = c.Env["user"]
	storage.LogActivityToKafka(activity)
	writeJSON(w, r, result)
}
