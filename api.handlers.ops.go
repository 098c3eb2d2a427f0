package main

import (
	"net/http"
	"net/http/pprof"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

func (api *APIHandler) OpsHandlerWrapper(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

func (api *APIHandler) GetCPUProfile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pprof.Profile(w, r)
}

func (api *APIHandler) GetTraceProfile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pprof.Trace(w, r)
}

func (api *APIHandler) GetSymbol(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pprof.Symbol(w, r)
}

func (api *APIHandler) GetCmdLine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pprof.Cmdline(w, r)
}

// GetLedgerEvents serves the archived borrow and return events in the order they occurred.
func (api *APIHandler) GetLedgerEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	events, err := api.archive.GetAll(r.Context())
	if err != nil {
		api.sendError(w, r, "failed to get ledger events", err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to get ledger events", zap.Int("events.total", len(events)))
	total := len(events)
	resp := GenericResponse(requestID, http.StatusOK, "Ledger events fetched successfully.", &total, events)
	api.sendResponse(w, r, resp)
}
