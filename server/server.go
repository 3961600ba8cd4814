package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/janelia-flyem/mrf/datastore"
	"github.com/janelia-flyem/mrf/dvid"
	"github.com/janelia-flyem/mrf/storage"

	"github.com/blang/semver"
	"github.com/rs/cors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/zenazn/goji/web"
	"golang.org/x/net/netutil"
)

// Version is the version of the server API.
var Version = semver.MustParse("0.2.0")

const shutdownTimeout = 10 * time.Second

// Server serves stored volumes and runs relaxation jobs on them.
type Server struct {
	config   *Config
	store    storage.Store
	volumes  *datastore.VolumeStore
	auth     *authorizer
	schema   *jsonschema.Schema
	mux      *web.Mux
	started  time.Time
	compress dvid.Compression
}

// New opens the configured store and sets up routes.  The caller should Close the
// server to flush the store and any activity log.
func New(c *Config) (*Server, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	compress, err := c.compression()
	if err != nil {
		return nil, err
	}
	auth, err := newAuthorizer(c.Auth)
	if err != nil {
		return nil, err
	}
	schema, err := jsonschema.CompileString("relax.json", relaxSchema)
	if err != nil {
		return nil, fmt.Errorf("bad relax request schema: %v", err)
	}
	sc, err := c.storeConfig()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(sc)
	if err != nil {
		return nil, err
	}
	store = storage.NewCached(store, c.Cache.Size*dvid.Mega)

	if err := c.Kafka.Initialize(c.Server.HTTPAddress); err != nil {
		store.Close()
		return nil, fmt.Errorf("unable to initialize kafka: %v", err)
	}

	s := &Server{
		config:   c,
		store:    store,
		volumes:  datastore.NewVolumeStore(store, compress),
		auth:     auth,
		schema:   schema,
		started:  time.Now(),
		compress: compress,
	}
	s.initRoutes()
	return s, nil
}

// Handler returns the HTTP handler for the server API with any CORS handling.
func (s *Server) Handler() http.Handler {
	if len(s.config.Server.CorsDomains) == 0 {
		return s.mux
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.Server.CorsDomains,
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(s.mux)
}

// Serve listens on the configured address until the context is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddress)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener, limited to the configured number
// of simultaneous connections, until the context is done.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	if max := s.config.Server.MaxConnections; max > 0 {
		ln = netutil.LimitListener(ln, max)
	}
	srv := &http.Server{Handler: s.Handler()}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			dvid.Errorf("Error shutting down web server: %v\n", err)
		}
	}()
	dvid.Infof("Web server listening at %s (max %d connections)\n", ln.Addr(), s.config.Server.MaxConnections)
	err := srv.Serve(ln)
	if err == http.ErrServerClosed {
		<-done
		dvid.Infof("Web server at %s stopped after %s\n", ln.Addr(), time.Since(s.started))
		return nil
	}
	return err
}

// Close shuts down the activity log and closes the store.
func (s *Server) Close() error {
	storage.KafkaShutdown()
	return s.store.Close()
}
