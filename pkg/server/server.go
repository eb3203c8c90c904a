// Copyright 2024 Nokia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server wires the engine up to the outside world: a
// NETCONF-over-Unix-socket listener, a RESTCONF HTTP front-end and a
// Prometheus /metrics endpoint. None of these carry business logic —
// they decode a request, call into pkg/engine, and encode the result.
package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ncxd/confd/pkg/config"
	"github.com/ncxd/confd/pkg/engine"
)

type Server struct {
	config *config.Config
	engine *engine.Context

	ctx context.Context
	cfn context.CancelFunc

	router *mux.Router
	reg    *prometheus.Registry

	sessMu   sync.Mutex
	sessions map[string]*engine.Session
	nextID   uint64

	netconfListener *netconfListener
}

func New(ctx context.Context, c *config.Config, e *engine.Context) (*Server, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		config:   c,
		engine:   e,
		ctx:      ctx,
		cfn:      cancel,
		router:   mux.NewRouter(),
		reg:      prometheus.NewRegistry(),
		sessions: map[string]*engine.Session{},
	}
	s.reg.MustRegister(collectors.NewGoCollector())
	s.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.registerRESTCONFRoutes()
	return s, nil
}

// Serve starts the NETCONF, RESTCONF and metrics front-ends and blocks
// until the Unix-socket listener exits (normally only on Stop or a fatal
// accept error).
func (s *Server) Serve(ctx context.Context) error {
	go s.serveMetrics()
	go s.serveRESTCONF()

	nl, err := newNETCONFListener(s.config.NETCONF.SocketPath, s)
	if err != nil {
		return err
	}
	s.netconfListener = nl
	log.Infof("netconf listening on unix:%s", s.config.NETCONF.SocketPath)
	return nl.serve(ctx)
}

func (s *Server) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         s.config.Metrics.Address,
		Handler:      mux,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}
	var err error
	if s.config.Metrics.TLS != nil {
		var tlsCfg *tls.Config
		tlsCfg, err = s.config.Metrics.TLS.NewConfig(s.ctx)
		if err == nil {
			srv.TLSConfig = tlsCfg
			err = srv.ListenAndServeTLS("", "")
		}
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil {
		log.Errorf("metrics server stopped: %v", err)
	}
}

func (s *Server) serveRESTCONF() {
	srv := &http.Server{
		Addr: s.config.RESTCONF.Address,
		// No WriteTimeout: /restconf/streams holds its response open for
		// the life of the subscription, which a blanket write deadline
		// would cut off mid-stream.
		Handler:           s.router,
		ReadHeaderTimeout: time.Minute,
	}
	var err error
	if s.config.RESTCONF.TLS != nil {
		var tlsCfg *tls.Config
		tlsCfg, err = s.config.RESTCONF.TLS.NewConfig(s.ctx)
		if err == nil {
			srv.TLSConfig = tlsCfg
			err = srv.ListenAndServeTLS("", "")
		}
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil {
		log.Errorf("restconf server stopped: %v", err)
	}
}

func (s *Server) Stop() {
	if s.netconfListener != nil {
		s.netconfListener.close()
	}
	s.cfn()
}
