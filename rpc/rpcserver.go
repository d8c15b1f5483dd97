package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/eventreg/eventreg/ledger"
	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/transport"
	"github.com/eventreg/eventreg/types"
)

// pendingCacheSize bounds the number of transactions whose receipts can be
// awaited through the API.
const pendingCacheSize = 4096

const maxRequestSize = 1 << 16

// Server is an HTTP/JSON front end to a ledger.
type Server struct {
	ledger  *ledger.Ledger
	gateway *transport.InMemory
	pending *lru.Cache
	logger  *zap.Logger
}

func NewServer(l *ledger.Ledger, logger *zap.Logger) *Server {
	// lru.New only fails for a non-positive size.
	pending, _ := lru.New(pendingCacheSize)
	return &Server{
		ledger:  l,
		gateway: transport.NewInMemory(l),
		pending: pending,
		logger:  logger.Named("rpc"),
	}
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathInfo, s.info)
	mux.HandleFunc("GET "+PathBlockNumber, s.blockNumber)
	mux.HandleFunc("GET "+PathParticipants, s.participants)
	mux.HandleFunc("GET "+PathParticipants+"/{address}", s.registration)
	mux.HandleFunc("GET "+PathEvents, s.events)
	mux.HandleFunc("POST "+PathRegister, s.submit(types.TxRegister))
	mux.HandleFunc("POST "+PathWithdraw, s.submit(types.TxWithdraw))
	mux.HandleFunc("GET "+PathReceipts+"/{id}", s.receipt)
	mux.HandleFunc("GET "+PathSubscribe, s.subscribe)
	return s.withLogger(mux)
}

// withLogger attaches a request scoped logger to every request.
func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := s.logger.With(
			zap.Stringer("request_id", uuid.New()),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		logger.Debug("new request", zap.String("from", r.RemoteAddr))
		next.ServeHTTP(w, r.WithContext(logging.NewContext(r.Context(), logger)))
	})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	root, err := s.ledger.ParticipantsRoot()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, InfoResponse{
		Owner:            s.ledger.Owner(),
		Fee:              s.ledger.RegistrationFee(),
		ChainID:          s.ledger.ChainID(),
		ParticipantCount: s.ledger.ParticipantCount(),
		Balance:          s.ledger.ContractBalance(),
		TotalCollected:   s.ledger.TotalCollected(),
		BlockNumber:      s.ledger.BlockNumber(),
		ParticipantsRoot: root,
	})
}

func (s *Server) blockNumber(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BlockNumberResponse{BlockNumber: s.ledger.BlockNumber()})
}

func (s *Server) participants(w http.ResponseWriter, r *http.Request) {
	participants := s.ledger.AllParticipants()
	if participants == nil {
		participants = []types.Address{}
	}
	writeJSON(w, http.StatusOK, ParticipantsResponse{Participants: participants})
}

func (s *Server) registration(w http.ResponseWriter, r *http.Request) {
	addr, err := types.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, RegistrationResponse{Address: addr, Registered: s.ledger.IsRegistered(addr)})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseHeight(query.Get("from"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Message: fmt.Sprintf("invalid from: %v", err)})
		return
	}
	to, err := parseHeight(query.Get("to"), s.ledger.BlockNumber())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Message: fmt.Sprintf("invalid to: %v", err)})
		return
	}
	logs, err := s.ledger.Events(r.Context(), query.Get("name"), from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []types.Log{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Logs: logs})
}

func (s *Server) submit(kind types.TxKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env signing.Envelope
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestSize)).Decode(&env); err != nil {
			writeError(w, http.StatusBadRequest, ErrorResponse{Message: fmt.Sprintf("decoding request: %v", err)})
			return
		}

		var (
			pending types.PendingTx
			err     error
		)
		switch kind {
		case types.TxRegister:
			pending, err = s.gateway.SendRegister(r.Context(), env)
		case types.TxWithdraw:
			pending, err = s.gateway.SendWithdraw(r.Context(), env)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.pending.Add(pending.ID(), pending)
		logging.FromContext(r.Context()).Info("accepted transaction",
			zap.Stringer("kind", kind),
			zap.String("tx", pending.ID()),
		)
		writeJSON(w, http.StatusOK, SubmitResponse{TxID: pending.ID()})
	}
}

// receipt waits until the transaction is sealed or the request is done.
func (s *Server) receipt(w http.ResponseWriter, r *http.Request) {
	v, ok := s.pending.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrorResponse{Message: "unknown transaction"})
		return
	}
	receipt, err := v.(types.PendingTx).Wait(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrorResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context())
	switch {
	case errors.Is(err, types.ErrPreconditionViolation):
		logger.Debug("precondition violated", zap.Error(err))
		writeError(w, http.StatusConflict, ErrorResponse{Code: types.Code(err), Message: err.Error()})
	case errors.Is(err, types.ErrInvalidTransaction):
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidTransaction, Message: err.Error()})
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, ErrorResponse{Message: err.Error()})
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrorResponse{Message: "internal error"})
	}
}

func parseHeight(value string, fallback uint64) (uint64, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseUint(value, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(w, status, body)
}
