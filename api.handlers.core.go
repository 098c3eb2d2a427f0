package main

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// genericFailureMessage is sent in place of any internal error details.
const genericFailureMessage = "failed to process the request."

// Statistics holds app stats for ops.
type Statistics struct {
	version   string
	container bool
	runtime   string
	platform  string
	called    uint64
	started   time.Time
	status    map[int]uint64
	mu        *sync.RWMutex
}

// Maintenance holds app maintenance mode infos.
type Maintenance struct {
	enabled atomic.Bool
	mu      sync.RWMutex
	message string
	started time.Time
}

// Services groups the business services used by the API handlers.
type Services struct {
	Books   BookServiceProvider
	Ledger  BookTransactionServiceProvider
	Auth    AuthServiceProvider
	Covers  CoverStorage
	Archive LedgerArchive
}

// APIHandler defines the API handler.
type APIHandler struct {
	logger        *zap.Logger
	config        *Config
	stats         *Statistics
	mode          *Maintenance
	clock         Clocker
	idsHandler    UIDHandler
	bookService   BookServiceProvider
	ledgerService BookTransactionServiceProvider
	authService   AuthServiceProvider
	covers        CoverStorage
	archive       LedgerArchive
}

// NewAPIHandler provides a new instance of APIHandler.
func NewAPIHandler(logger *zap.Logger, config *Config, stats *Statistics, clock Clocker, idsHandler UIDHandler, services Services) *APIHandler {
	stats.status = make(map[int]uint64)
	stats.mu = &sync.RWMutex{}
	return &APIHandler{
		logger:        logger,
		config:        config,
		stats:         stats,
		mode:          &Maintenance{},
		clock:         clock,
		idsHandler:    idsHandler,
		bookService:   services.Books,
		ledgerService: services.Ledger,
		authService:   services.Auth,
		covers:        services.Covers,
		archive:       services.Archive,
	}
}

// sendError writes the error response matching err. Client errors are
// logged as warnings and internal ones as errors.
func (api *APIHandler) sendError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger := api.GetLoggerFromContext(r.Context())
	errResp := NewAPIErrorFrom(GetValueFromContext(r.Context(), RequestIDContextKey), err, genericFailureMessage)
	if errResp.Status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
	} else {
		logger.Warn(msg, zap.Int("response.status", errResp.Status), zap.Error(err))
	}
	if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
		logger.Error("failed to send error response", zap.Error(err))
	}
}

// sendResponse writes a success response.
func (api *APIHandler) sendResponse(w http.ResponseWriter, r *http.Request, resp *APIResponse) {
	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send response", zap.Error(err))
	}
}

// baseURL returns the prefix of the cover urls sent to the client.
func (api *APIHandler) baseURL(r *http.Request) string {
	var configured string
	if api.config != nil {
		configured = api.config.Uploads.BaseURL
	}
	return BaseURLFromRequest(r, configured)
}

// invalidInput wraps a validation failure into a client error.
func invalidInput(err error) error {
	return NewDomainError(ErrInvalidInput, err.Error())
}
