// Package gateway roteia /api/chains/{chainId}/... para o chain-node da chain.
package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Gateway struct {
	log     *zap.Logger
	proxies map[uint32]*httputil.ReverseProxy
	chains  []uint32
}

// New monta um proxy por chain-node; nodes vem de CHAIN_NODES.
func New(log *zap.Logger, nodes map[uint32]string) (*Gateway, error) {
	g := &Gateway{log: log, proxies: make(map[uint32]*httputil.ReverseProxy, len(nodes))}
	for id, raw := range nodes {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid node url for chain %d: %q", id, raw)
		}
		p := httputil.NewSingleHostReverseProxy(u)
		chain := id
		p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("upstream failed", zap.Uint32("chainId", chain), zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "chain node unavailable", http.StatusBadGateway)
		}
		g.proxies[id] = p
		g.chains = append(g.chains, id)
	}
	sort.Slice(g.chains, func(i, j int) bool { return g.chains[i] < g.chains[j] })
	return g, nil
}

func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/api/chains", g.listChains)
	r.Handle("/api/chains/{chainId}/*", http.HandlerFunc(g.forward))
	return r
}

func (g *Gateway) listChains(w http.ResponseWriter, _ *http.Request) {
	parts := make([]string, len(g.chains))
	for i, id := range g.chains {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"chains":[` + strings.Join(parts, ",") + `]}`))
}

func (g *Gateway) forward(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "chainId")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		http.Error(w, "invalid chain id", http.StatusBadRequest)
		return
	}
	p, ok := g.proxies[uint32(id)]
	if !ok {
		http.Error(w, "unknown chain", http.StatusNotFound)
		return
	}
	http.StripPrefix("/api/chains/"+raw, p).ServeHTTP(w, r)
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
