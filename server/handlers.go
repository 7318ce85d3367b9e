package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ahmadzakiakmal/scrumchain/repository"
	"github.com/ahmadzakiakmal/scrumchain/repository/models"
	"github.com/ahmadzakiakmal/scrumchain/synchronizer"
	"github.com/gin-gonic/gin"
)

// SyncResponse is returned by every mutating endpoint. A ledger failure does
// not fail the request: the relational change stands and SyncError says why
// the ledger does not reflect it.
type SyncResponse struct {
	Entity    any     `json:"entity"`
	Ledgered  bool    `json:"ledgered"`
	LedgerID  *uint64 `json:"ledger_id"`
	TxHash    string  `json:"tx_hash,omitempty"`
	SyncError string  `json:"sync_error,omitempty"`
}

func respond[E models.Entity](c *gin.Context, status int, res *synchronizer.Result[E]) {
	out := SyncResponse{
		Entity:   res.Entity,
		Ledgered: res.Ledgered,
		LedgerID: res.Entity.LedgerRef(),
		TxHash:   res.TxHash,
	}
	if res.SyncErr != nil {
		out.SyncError = res.SyncErr.Error()
		_ = c.Error(res.SyncErr)
	}
	c.JSON(status, out)
}

// statusFor maps workflow and repository errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, synchronizer.ErrInvalidArgument),
		errors.Is(err, synchronizer.ErrUnknownStatusValue),
		errors.Is(err, synchronizer.ErrUnsupportedOperation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, synchronizer.ErrEntityNotLedgered):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}

	var repoErr *repository.RepositoryError
	if errors.As(err, &repoErr) {
		switch repoErr.Code {
		case repository.CodeEntityNotFound, repository.CodeTransactionNotFound:
			return http.StatusNotFound
		case repository.PgErrUniqueViolation, repository.CodeDuplicateTransaction, repository.CodeConflict:
			return http.StatusConflict
		case repository.PgErrSerializationFailure, repository.PgErrTransactionRollback:
			// the write lost a race and can be retried
			return http.StatusConflict
		case repository.CodeInvalidField,
			repository.PgErrForeignKeyViolation,
			repository.PgErrCheckViolation,
			repository.PgErrNotNullViolation,
			repository.PgErrDataException,
			repository.PgErrInvalidDatetimeFormat:
			return http.StatusUnprocessableEntity
		case repository.PgErrConnectionException, repository.PgErrConnectionFailure:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	JSONError(c, msg, status)
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		JSONError(c, "id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func createHandler[E models.Entity](s *synchronizer.Synchronizer[E], bind func(*gin.Context) (E, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := bind(c)
		if err != nil {
			JSONError(c, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := s.Create(c.Request.Context(), e, requester(c))
		if err != nil {
			writeError(c, err)
			return
		}
		respond(c, http.StatusCreated, res)
	}
}

func getHandler[E models.Entity](s *synchronizer.Synchronizer[E]) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		e, err := s.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

func updateHandler[E models.Entity](s *synchronizer.Synchronizer[E], patch func(*gin.Context) (map[string]any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		fields, err := patch(c)
		if err != nil {
			JSONError(c, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := s.Update(c.Request.Context(), id, fields, requester(c))
		if err != nil {
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, res)
	}
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func statusHandler[E models.Entity](s *synchronizer.Synchronizer[E]) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			JSONError(c, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := s.ChangeStatus(c.Request.Context(), id, req.Status, requester(c))
		if err != nil {
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, res)
	}
}

func removeHandler[E models.Entity](s *synchronizer.Synchronizer[E]) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		res, err := s.Remove(c.Request.Context(), id, requester(c))
		if err != nil {
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, res)
	}
}

func integrityHandler[E models.Entity](s *synchronizer.Synchronizer[E]) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		integrity, err := s.Verify(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, integrity)
	}
}

type assignRequest struct {
	Assignee string `json:"assignee" binding:"required"`
}

func (ws *WebServer) handleAssign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := ws.svc.Tasks.Assign(c.Request.Context(), id, req.Assignee, requester(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

func (ws *WebServer) handleGetTransaction(c *gin.Context) {
	rec, err := ws.svc.Repository.GetTransaction(c.Request.Context(), c.Param("hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (ws *WebServer) handleQueryTransactions(c *gin.Context) {
	f, err := transactionFilter(c)
	if err != nil {
		JSONError(c, err.Error(), http.StatusBadRequest)
		return
	}
	page, err := ws.svc.Repository.QueryTransactions(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (ws *WebServer) handleTransactionStats(c *gin.Context) {
	f, err := transactionFilter(c)
	if err != nil {
		JSONError(c, err.Error(), http.StatusBadRequest)
		return
	}
	stats, err := ws.svc.Repository.TransactionStats(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// transactionFilter reads kind, entity_id, status, type, from, to, page and page_size
func transactionFilter(c *gin.Context) (repository.TransactionFilter, error) {
	var f repository.TransactionFilter

	if k := c.Query("kind"); k != "" {
		f.Kind = models.Kind(k)
		if !f.Kind.Valid() {
			return f, errors.New("unknown kind " + strconv.Quote(k))
		}
	}
	if s := c.Query("entity_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return f, errors.New("entity_id must be an integer")
		}
		f.EntityID = &id
	}
	switch s := c.Query("status"); s {
	case "", models.TxPending, models.TxConfirmed, models.TxFailed:
		f.Status = s
	default:
		return f, errors.New("unknown status " + strconv.Quote(s))
	}
	f.Type = c.Query("type")

	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		s := c.Query(name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, errors.New(name + " must be an RFC 3339 time")
		}
		t = t.UTC()
		*dst = &t
	}

	var err error
	if f.Page, err = intQuery(c, "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = intQuery(c, "page_size"); err != nil {
		return f, err
	}
	return f, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	s := c.Query(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
