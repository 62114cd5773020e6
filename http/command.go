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

package http

import (
	"github.com/datacatalog/etl"
	"github.com/datacatalog/etl/run"
	"github.com/pkg/errors"
)

// Main serves the catalog of a base directory.
type Main struct {
	Bind         string `help:"Listen for requests on this address."`
	BaseDir      string `flag:"-"`
	DAGFile      string `flag:"-"`
	IndexBackend string `help:"Build index to report from: memory, bolt or leveldb."`
	IndexPath    string `help:"Build index file or directory."`
	Verbose      bool   `flag:"-"`
	LogPath      string `help:"Log to this file instead of stderr."`
}

func NewMain() *Main {
	return &Main{
		Bind:         ":8080",
		BaseDir:      ".",
		IndexBackend: "bolt",
	}
}

func (m *Main) Run() error {
	log, logFile, err := run.NewLogger(m.Verbose, m.LogPath)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	opts := []etl.ConfigOption{etl.OptConfigLogger(log)}
	if m.DAGFile != "" {
		opts = append(opts, etl.OptConfigDAGFile(m.DAGFile))
	}
	cfg, err := etl.NewConfig(m.BaseDir, opts...)
	if err != nil {
		return errors.Wrap(err, "getting config")
	}
	idx, err := run.OpenIndex(m.IndexBackend, m.IndexPath, cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	srv := NewServer(cfg, WithAddr(m.Bind), WithIndex(idx))
	log.Printf("listening on %s", m.Bind)
	return errors.Wrap(srv.Serve(), "running server")
}
