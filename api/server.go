package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/bnb-chain/chain-tracker/logging"
)

const DefaultListenAddress = "0.0.0.0:8080"

// Server exposes the read-only chain query API.
type Server struct {
	httpAddress string
	httpServer  *http.Server
}

func NewServer(address string) *Server {
	if address == "" {
		address = DefaultListenAddress
	}
	return &Server{
		httpAddress: address,
	}
}

func (s *Server) Start() {
	go s.serve()
}

func (s *Server) serve() {
	router := mux.NewRouter()
	router.Path("/v1/snapshot").Methods(http.MethodGet).HandlerFunc(HandleGetSnapshot)
	router.Path("/v1/block/{hash}").Methods(http.MethodGet).HandlerFunc(HandleGetBlockByHash)
	router.Path("/v1/finalized/{height}").Methods(http.MethodGet).HandlerFunc(HandleGetFinalizedBlockByHeight)
	s.httpServer = &http.Server{
		Addr:         s.httpAddress,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil {
		logging.Logger.Errorf("failed to listen and serve, err=%s", err.Error())
		panic(err)
	}
}
