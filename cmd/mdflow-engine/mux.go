package main

import (
	"net/http"

	"github.com/haasonsaas/mdflow-engine/internal/ratelimit"
)

// buildMux wires the §6.1 HTTP (SSE) surface under the default
// "/api/learn" prefix, rate-limiting the run endpoint ahead of the
// distributed run lock (SPEC_FULL.md's domain-stack wiring for
// internal/ratelimit).
func (e *engine) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/learn/shifu/{shifu_bid}", e.handleGetShifu)
	mux.HandleFunc("GET /api/learn/shifu/{shifu_bid}/outline-item-tree", e.handleOutlineTree)
	mux.Handle("PUT /api/learn/shifu/{shifu_bid}/run/{outline_bid}", e.rateLimited(http.HandlerFunc(e.handleRun)))
	mux.HandleFunc("GET /api/learn/shifu/{shifu_bid}/run/{outline_bid}", e.handleRunStatus)
	mux.HandleFunc("GET /api/learn/shifu/{shifu_bid}/records/{outline_bid}", e.handleListRecords)
	mux.HandleFunc("DELETE /api/learn/shifu/{shifu_bid}/records/{outline_bid}", e.handleResetRecords)
	mux.Handle("POST /api/learn/shifu/{shifu_bid}/preview/{outline_bid}", e.rateLimited(http.HandlerFunc(e.handlePreview)))
	mux.HandleFunc("POST /api/learn/shifu/{shifu_bid}/generated-contents/{bid}/{action}", e.handleReact)
	mux.HandleFunc("GET /api/learn/shifu/{shifu_bid}/generated-contents/{bid}", e.handleGetGeneratedContent)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// rateLimited throttles one key per learner ahead of the distributed run
// lock: a learner hammering "run" wastes an LLM call and a lock-poll cycle
// before the lock itself would reject them.
func (e *engine) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, err := e.auth.authenticate(r)
		if err != nil || auth.UserBID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !e.limiter.Allow(ratelimit.CompositeKey(auth.UserBID, r.URL.Path)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAuth(r.Context(), auth)))
	})
}
