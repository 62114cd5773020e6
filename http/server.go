// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package http serves a read-only catalog of the steps and built datasets of
// a data directory.
package http

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/datacatalog/etl"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// Server is the catalog API.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	router   *mux.Router

	cfg   *etl.Config
	index etl.Index
}

// ServerOption is a functional option for NewServer.
type ServerOption func(s *Server)

func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

func WithListener(l net.Listener) ServerOption {
	return func(s *Server) {
		s.listener = l
		s.addr = l.Addr().String()
	}
}

// WithIndex makes /steps report the build state of each step.
func WithIndex(idx etl.Index) ServerOption {
	return func(s *Server) {
		s.index = idx
	}
}

// NewServer returns a Server over the data directory of cfg. It does not
// listen until Serve is called.
func NewServer(cfg *etl.Config, opts ...ServerOption) *Server {
	s := &Server{
		addr: ":8080",
		cfg:  cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/steps", s.handleSteps).Methods("GET")
	s.router.HandleFunc("/datasets/{channel}/{namespace}/{version}/{short_name}", s.handleDataset).Methods("GET")
	s.router.HandleFunc("/datasets/{channel}/{namespace}/{version}/{short_name}/{table}", s.handleTable).Methods("GET")
	s.server = &http.Server{
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the routes wrapped in access logging.
func (s *Server) Handler() http.Handler {
	return handlers.LoggingHandler(logWriter{s.cfg.Log}, s.router)
}

// Serve listens, if no listener was given, and serves until Close.
func (s *Server) Serve() error {
	if s.listener == nil {
		var err error
		s.listener, err = net.Listen("tcp", s.addr)
		if err != nil {
			return errors.Wrap(err, "listening")
		}
	}
	if tl, ok := s.listener.(*net.TCPListener); ok {
		s.listener = tcpKeepAliveListener{tl}
	}
	err := s.server.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return errors.Wrap(err, "serving")
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) Close() error {
	return s.server.Close()
}

type stepInfo struct {
	Step         string     `json:"step"`
	Dependencies []string   `json:"dependencies"`
	Built        *etl.Entry `json:"built,omitempty"`
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	dag, err := s.cfg.DAGs.Live()
	if err != nil {
		writeError(w, errors.Wrap(err, "loading dag"), http.StatusInternalServerError)
		return
	}
	built := make(map[string]etl.Entry)
	if s.index != nil {
		entries, err := s.index.List()
		if err != nil {
			writeError(w, errors.Wrap(err, "listing build index"), http.StatusInternalServerError)
			return
		}
		for _, e := range entries {
			built[e.Step] = e
		}
	}
	steps := dag.Steps()
	out := make([]stepInfo, 0, len(steps))
	for _, id := range steps {
		info := stepInfo{Step: id, Dependencies: append([]string{}, dag[id]...)}
		if e, ok := built[id]; ok {
			info.Built = &e
		}
		out = append(out, info)
	}
	writeJSON(w, out)
}

// dataset opens the dataset named by the route variables.
func (s *Server) dataset(w http.ResponseWriter, r *http.Request) (*etl.Dataset, bool) {
	vars := mux.Vars(r)
	step := etl.Step{
		Type:      etl.TypeData,
		Channel:   etl.Channel(vars["channel"]),
		Namespace: vars["namespace"],
		Version:   vars["version"],
		ShortName: vars["short_name"],
	}
	if err := step.Validate(); err != nil || step.Channel == etl.ChannelSnapshot || hasDots(step) {
		writeError(w, errors.Errorf("not a dataset: %s", r.URL.Path), http.StatusBadRequest)
		return nil, false
	}
	dir := s.cfg.DatasetDir(step)
	if !etl.DatasetExists(dir) {
		writeError(w, errors.Errorf("dataset %s has not been built", step), http.StatusNotFound)
		return nil, false
	}
	ds, err := etl.OpenDataset(dir)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return nil, false
	}
	return ds, true
}

func hasDots(s etl.Step) bool {
	for _, p := range []string{s.Namespace, s.Version, s.ShortName} {
		if strings.HasPrefix(p, ".") {
			return true
		}
	}
	return false
}

type datasetInfo struct {
	Metadata       etl.DatasetMeta `json:"metadata"`
	Tables         []string        `json:"tables"`
	SourceChecksum string          `json:"source_checksum,omitempty"`
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, datasetInfo{
		Metadata:       ds.Metadata,
		Tables:         ds.TableNames(),
		SourceChecksum: ds.SourceChecksum,
	})
}

type columnInfo struct {
	Name string           `json:"name"`
	Meta etl.VariableMeta `json:"meta"`
}

type tableInfo struct {
	Metadata   etl.TableMeta            `json:"metadata"`
	PrimaryKey []string                 `json:"primary_key"`
	Columns    []columnInfo             `json:"columns"`
	Rows       []map[string]interface{} `json:"rows"`
}

// handleTable returns a table with its rows. The limit query parameter caps
// the number of rows.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["table"]
	found := false
	for _, n := range ds.TableNames() {
		found = found || n == name
	}
	if !found {
		writeError(w, errors.Errorf("dataset %s has no table %q", ds.Metadata.ShortName, name), http.StatusNotFound)
		return
	}
	t, err := ds.ReadTable(name)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	limit := t.NumRows()
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, errors.Errorf("bad limit %q", l), http.StatusBadRequest)
			return
		}
		if n < limit {
			limit = n
		}
	}
	out := tableInfo{
		Metadata:   t.Metadata,
		PrimaryKey: t.Index(),
		Rows:       make([]map[string]interface{}, 0, limit),
	}
	for _, c := range t.ColumnNames() {
		out.Columns = append(out.Columns, columnInfo{Name: c, Meta: t.Column(c).Meta})
	}
	for i := 0; i < limit; i++ {
		out.Rows = append(out.Rows, t.Row(i))
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// logWriter turns access log lines into Logger calls.
type logWriter struct {
	log etl.Logger
}

func (l logWriter) Write(p []byte) (int, error) {
	l.log.Printf("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// tcpKeepAliveListener is copied from net/http

type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
