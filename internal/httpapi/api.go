// Package httpapi is the HTTP surface of atlas-api. Every request passes
// the middleware chain (request id, logging, admission control, session
// authentication) before reaching a handler; handlers gate themselves with
// explicit allowed-role sets.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/kg"
	"atlaskg.org/internal/layer"
	"atlaskg.org/internal/obs"
	"atlaskg.org/internal/session"
	"atlaskg.org/internal/upgrade"
)

const maxBodyBytes = 1 << 20

// ReadyProbe checks the dependencies the service needs to serve traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles the services the API delegates to.
type Deps struct {
	Sessions *session.Service
	Accounts *account.Service
	Upgrades *upgrade.Service
	Layers   *layer.Service
	Search   *kg.SearchService
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	sessions *session.Service
	accounts *account.Service
	upgrades *upgrade.Service
	layers   *layer.Service
	search   *kg.SearchService

	rateBurst     int
	ratePerSecond int
}

// Option configures API.
type Option func(*API)

// WithRateLimit overrides the admission-control bucket parameters.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSecond = perSecond
		}
	}
}

// New wires the route table. Role sets are listed per route and are exact;
// there is no hierarchy between USER, EDITOR and ADMIN.
func New(rp ReadyProbe, version string, deps Deps, opts ...Option) *API {
	a := &API{
		mux:           http.NewServeMux(),
		readyProbe:    rp,
		version:       version,
		sessions:      deps.Sessions,
		accounts:      deps.Accounts,
		upgrades:      deps.Upgrades,
		layers:        deps.Layers,
		search:        deps.Search,
		rateBurst:     20,
		ratePerSecond: 10,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// Token lifecycle. All public: sign-up, sign-in and refresh carry
	// their own credentials.
	a.mux.HandleFunc("/v1/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/signin", a.handleSignin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/me", a.requireRoles(a.handleMe,
		account.RoleUser, account.RoleEditor, account.RoleAdmin))

	// Knowledge-graph search, public.
	a.mux.HandleFunc("/v1/search", a.handleSearch)
	a.mux.HandleFunc("/v1/search/geo", a.handleGeoSearch)

	// Layers: reads public, writes EDITOR only. ADMIN is deliberately not
	// in the write set; the route table is the authorization source of
	// truth.
	a.mux.HandleFunc("/v1/layers", a.handleLayersCollection)
	a.mux.HandleFunc("/v1/layers/", a.handleLayerResource)

	// Role-upgrade workflow.
	a.mux.HandleFunc("/v1/upgrade-requests", a.handleUpgradeCollection)
	a.mux.HandleFunc("/v1/upgrade-requests/", a.handleUpgradeResource)

	// Account administration.
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the route table.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withSession(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = MaxBodyBytes(h, maxBodyBytes)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "atlas-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "atlas-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
