package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cuemby/syncstore/pkg/dispatch"
)

// defaultMaxBSOGetLimit bounds get_bsos/get_bso_ids in the absence of a
// smaller server-configured limit.
const defaultMaxBSOGetLimit = 2500

// Routes holds the handler state shared by every route: a Dispatcher bound
// to the configured backend and a request-scoped logger factory.
type Routes struct {
	router     *mux.Router
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger

	maxBSOGetLimit int
}

// NewRoutes builds the route table rooted at /{apiVersion}/{uid}/. It does
// not itself listen; call Start (or use the Routes directly, since it
// implements http.Handler) to serve it.
func NewRoutes(log zerolog.Logger, dispatcher *dispatch.Dispatcher) *Routes {
	router := mux.NewRouter()

	rt := &Routes{
		router:         router,
		dispatcher:     dispatcher,
		log:            log,
		maxBSOGetLimit: defaultMaxBSOGetLimit,
	}

	// Top-level deletions aren't part of the /info or /storage subrouters
	// since neither of their prefixes ends in a bare match.
	router.HandleFunc("/{apiVersion}/{uid}", rt.hDeleteStorage).Methods(http.MethodDelete)
	router.HandleFunc("/{apiVersion}/{uid}/storage", rt.hDeleteStorage).Methods(http.MethodDelete)

	info := router.PathPrefix("/{apiVersion}/{uid}/info").Subrouter()
	info.HandleFunc("/collections", rt.hInfoCollections).Methods(http.MethodGet)
	info.HandleFunc("/collection_counts", rt.hInfoCollectionCounts).Methods(http.MethodGet)
	info.HandleFunc("/collection_usage", rt.hInfoCollectionUsage).Methods(http.MethodGet)
	info.HandleFunc("/configuration", rt.hInfoConfiguration).Methods(http.MethodGet)
	info.HandleFunc("/quota", rt.hInfoQuota).Methods(http.MethodGet)

	storage := router.PathPrefix("/{apiVersion}/{uid}/storage").Subrouter()
	storage.HandleFunc("/{collection}", rt.hCollectionGET).Methods(http.MethodGet)
	storage.HandleFunc("/{collection}", rt.hCollectionPOST).Methods(http.MethodPost)
	storage.HandleFunc("/{collection}", rt.hCollectionDELETE).Methods(http.MethodDelete)
	storage.HandleFunc("/{collection}/{bso}", rt.hBsoGET).Methods(http.MethodGet)
	storage.HandleFunc("/{collection}/{bso}", rt.hBsoPUT).Methods(http.MethodPut)
	storage.HandleFunc("/{collection}/{bso}", rt.hBsoDELETE).Methods(http.MethodDelete)

	return rt
}

// ServeHTTP lets a *Routes be used directly as an http.Handler.
func (rt *Routes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.router.ServeHTTP(w, r)
}

// Start returns routes as an http.Handler, for callers that construct the
// Routes separately from wiring it into a server (test harnesses in
// particular).
func Start(routes *Routes) http.Handler {
	return routes
}

// New is the one-call convenience constructor most callers want:
// mux.NewRouter() wiring plus Start() in one step.
func New(log zerolog.Logger, dispatcher *dispatch.Dispatcher) http.Handler {
	return Start(NewRoutes(log, dispatcher))
}
