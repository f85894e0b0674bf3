package apiserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/mwcnet/mwcd/domain/chain"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/pkg/errors"
)

const gracefulShutdownTimeout = 30 * time.Second

// BlockSubmitter accepts blocks posted to the API and hands them to the
// chain.
type BlockSubmitter interface {
	SubmitBlock(block *model.Block) error
}

// Config is the configuration of the API server.
type Config struct {
	Listen      string
	DisableCORS bool
}

// Server serves the chain queries over HTTP: the REST routes under /v1 and
// the JSON-RPC 2.0 endpoint at /v2.
type Server struct {
	cfg       *Config
	chain     *chain.Chain
	submitter BlockSubmitter
	handler   http.Handler

	httpServer *http.Server
	listener   net.Listener
}

// New returns a new Server. It doesn't listen until Start is called.
func New(cfg *Config, c *chain.Chain, submitter BlockSubmitter) *Server {
	s := &Server{
		cfg:       cfg,
		chain:     c,
		submitter: submitter,
	}

	router := mux.NewRouter()
	router.Use(addRequestIDMiddleware)
	router.Use(recoveryMiddleware)
	router.Use(loggingMiddleware)
	router.Use(setJSONMiddleware)
	s.addRoutes(router)

	s.handler = router
	if !cfg.DisableCORS {
		s.handler = handlers.CORS()(router)
	}
	return s
}

// Handler returns the HTTP handler serving every route of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves requests in the
// background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.cfg.Listen)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.handler}

	log.Infof("API server listening on %s", listener.Addr())
	spawn("apiserver.Server.Start-Serve", func() {
		err := s.httpServer.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("API server stopped: %s", err)
		}
	})
	return nil
}

// Addr returns the address the server listens on, or nil if it wasn't
// started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// for a while.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		return errors.Wrap(err, "error shutting down the API server")
	}
	return nil
}

func makeHandler(handler func(r *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, err := handler(r)
		if err != nil {
			hErr := toHandlerError(err)
			log.Debugf("[%s] Request failed with %d: %s", requestID(r.Context()), hErr.Code, hErr.Message)
			sendErr(w, hErr)
			return
		}
		sendJSON(w, http.StatusOK, response)
	}
}

func (s *Server) addRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", makeHandler(s.getStatusHandler)).Methods(http.MethodGet)
	v1.HandleFunc("/headers/{id}", makeHandler(s.getHeaderHandler)).Methods(http.MethodGet)
	v1.HandleFunc("/blocks/{id}", makeHandler(s.getBlockHandler)).Methods(http.MethodGet)
	v1.HandleFunc("/outputs/{commit}", makeHandler(s.getOutputHandler)).Methods(http.MethodGet)

	router.HandleFunc("/v2", s.jsonRPCHandler).Methods(http.MethodPost)
}
