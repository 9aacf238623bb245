package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/validation"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ledger.Account(r.Context())
	if err != nil {
		s.logFailure(r, "account", err)
		fail(w, http.StatusInternalServerError, MsgAccountFailed)
		return
	}
	ok(w, http.StatusOK, nil, newAccountView(acc))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.Transactions(r.Context())
	if err != nil {
		s.logFailure(r, "list", err)
		fail(w, http.StatusInternalServerError, MsgListFailed)
		return
	}
	ok(w, http.StatusOK, nil, newTransactionViews(txs))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	body, payload, err := readPayload(w, r)
	if err != nil {
		fail(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}

	if err := s.gate.Check(payload); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			fail(w, http.StatusUnauthorized, verrs)
			return
		}
		fail(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}

	var in ledger.Input
	if err := json.Unmarshal(body, &in); err != nil {
		s.logFailure(r, "create", err)
		fail(w, http.StatusInternalServerError, MsgCreateFailed)
		return
	}

	if _, err := s.ledger.CreateTransaction(r.Context(), in); err != nil {
		s.logFailure(r, "create", err)
		fail(w, http.StatusInternalServerError, MsgCreateFailed)
		return
	}
	ok(w, http.StatusCreated, MsgCreated, nil)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, valid := transactionID(r)
	if !valid {
		fail(w, http.StatusNotFound, MsgNotFound)
		return
	}

	t, err := s.ledger.Transaction(r.Context(), id)
	if err != nil {
		s.logFailure(r, "get", err)
		fail(w, http.StatusInternalServerError, MsgGetFailed)
		return
	}
	if t == nil {
		fail(w, http.StatusNotFound, MsgNotFound)
		return
	}
	ok(w, http.StatusOK, nil, newTransactionView(t))
}

// handleUpdateTransaction does not run the validation gate. Any failure,
// including a missing field, is a 400 carrying the cause.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, valid := transactionID(r)
	if !valid {
		fail(w, http.StatusNotFound, MsgNotFound)
		return
	}

	updateFailed := func(err error) {
		s.logFailure(r, "update", err)
		fail(w, http.StatusBadRequest, (&ledger.StorageError{Op: "update", Err: err}).Error())
	}

	body, payload, err := readPayload(w, r)
	if err != nil {
		updateFailed(err)
		return
	}
	for _, field := range validation.Required {
		if _, present := payload[field]; !present {
			updateFailed(fmt.Errorf("missing field %q", field))
			return
		}
	}

	var in ledger.Input
	if err := json.Unmarshal(body, &in); err != nil {
		updateFailed(err)
		return
	}

	if err := s.ledger.UpdateTransaction(r.Context(), id, in); err != nil {
		s.logFailure(r, "update", err)
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	ok(w, http.StatusOK, MsgUpdated, nil)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, valid := transactionID(r)
	if !valid {
		fail(w, http.StatusNotFound, MsgNotFound)
		return
	}

	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		s.logFailure(r, "delete", err)
		fail(w, http.StatusInternalServerError, MsgDeleteFailed)
		return
	}
	ok(w, http.StatusOK, MsgDeleted, nil)
}

// handleHealth pings the store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ledger.Ping(ctx); err != nil {
		s.logFailure(r, "health", err)
		writeJSON(w, http.StatusServiceUnavailable, Envelope{
			Success: false,
			Message: MsgUnavailable,
			Data:    map[string]any{"status": "unhealthy"},
		})
		return
	}
	ok(w, http.StatusOK, nil, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	fail(w, http.StatusNotFound, MsgRouteNotFound)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	fail(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
}

// readPayload reads the body once and decodes it into a generic object.
// Numbers are kept as json.Number so amounts keep their precision.
func readPayload(w http.ResponseWriter, r *http.Request) ([]byte, map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, nil, err
	}
	if payload == nil {
		return nil, nil, errors.New("request body must be a JSON object")
	}
	return body, payload, nil
}

// transactionID parses the {id} route variable.
func transactionID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Server) logFailure(r *http.Request, op string, err error) {
	s.logger.Warn("request failed",
		zap.String("operation", op),
		zap.String("error_type", ledger.Classify(err)),
		zap.String("request_id", RequestID(r.Context())),
		zap.Error(err),
	)
}
