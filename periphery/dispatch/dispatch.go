// Package dispatch implements Periphery's typed request API (spec.md §6
// "Periphery request API"): POST / with a {type,params} envelope, passkey
// header auth, and an optional IP allowlist. Grounded on
// original_source/bin/periphery/src/api/* for the envelope/dispatch shape;
// router wiring itself is out of scope for Core but Periphery needs a
// concrete mux to receive requests. Uses github.com/go-chi/chi/v5,
// adopted from the pack's jordigilh-kubernaut and wisbric-nightowl repos
// (both use chi for their HTTP mux) — the corpus's answer to "which
// router" when one is needed.
package dispatch

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Handler processes one request variant's params and returns a
// JSON-marshalable result or an error.
type Handler func(r *http.Request, params json.RawMessage) (interface{}, error)

// envelope is the typed request body: {"type": Variant, "params": {...}}.
type envelope struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// errorDocument mirrors the "error document with status, message, and
// chained causes" contract (spec.md §7).
type errorDocument struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Dispatcher routes typed requests to registered Handlers, gated by
// passkey auth and an optional IP allowlist.
type Dispatcher struct {
	Passkey   string
	Allowlist []net.IP // empty means unrestricted

	handlers map[string]Handler
}

func New(passkey string, allowlist []net.IP) *Dispatcher {
	return &Dispatcher{
		Passkey:   passkey,
		Allowlist: allowlist,
		handlers:  make(map[string]Handler),
	}
}

// Register binds a request type to its handler.
func (d *Dispatcher) Register(requestType string, h Handler) {
	d.handlers[requestType] = h
}

// Router builds the chi mux: a single POST / route behind the auth and
// allowlist middleware.
func (d *Dispatcher) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(d.allowlistMiddleware)
	r.Use(d.authMiddleware)
	r.Post("/", d.handle)
	return r
}

func (d *Dispatcher) allowlistMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(d.Allowlist) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		for _, allowed := range d.Allowlist {
			if ip != nil && ip.Equal(allowed) {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, "source ip not allowlisted")
	})
}

func (d *Dispatcher) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("authorization") != d.Passkey {
			writeError(w, http.StatusUnauthorized, "invalid passkey")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Dispatcher) handle(w http.ResponseWriter, r *http.Request) {
	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request envelope")
		return
	}

	handler, ok := d.handlers[env.Type]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown request type: "+env.Type)
		return
	}

	result, err := handler(r, env.Params)
	if err != nil {
		log.Error().Err(err).Str("type", env.Type).Msg("dispatch: handler failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("dispatch: failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorDocument{Status: status, Message: message})
}
