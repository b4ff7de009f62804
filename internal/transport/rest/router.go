// Package rest exposes the control surface's HTTP-visible pieces: metrics,
// liveness, and the status dump, built the same way the fleet's other
// services wire chi — operational endpoints live outside any /api prefix so
// they're reachable by simple probes.
package rest

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onchainlabs/logindexer/internal/domain"
	"github.com/onchainlabs/logindexer/internal/infrastructure/postgres"
)

// StatusStore is the slice of *postgres.Store the status-dump endpoint needs;
// accepting the narrower interface here lets the handler be exercised with a
// fake in tests instead of a live Postgres.
type StatusStore interface {
	AllCursors(ctx context.Context) ([]postgres.CursorRow, error)
	PendingOutboxCount(ctx context.Context) (int64, error)
	PendingCommandCount(ctx context.Context) (int64, error)
	InboxStatusCounts(ctx context.Context, handlerKind string) (map[domain.InboxStatus]int64, error)
}

// HeadClient is the read-side RPC surface the status dump uses to report the
// chain head. It is optional: a nil HeadClient (no RPC configured for this
// process) just omits the field instead of failing the dump.
type HeadClient interface {
	GetHeadBlock(ctx context.Context) (uint64, error)
}

type statusResponse struct {
	Head            *uint64                     `json:"head,omitempty"`
	HeadError       string                      `json:"head_error,omitempty"`
	Cursors         []postgres.CursorRow        `json:"cursors"`
	PendingOutbox   int64                       `json:"pending_outbox"`
	PendingCommands int64                       `json:"pending_domain_commands"`
	InboxByHandler  map[string]map[string]int64 `json:"inbox_by_handler,omitempty"`
}

func NewRouter(store StatusStore, head HeadClient, handlerKinds []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", healthzHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/status", statusHandler(store, head, handlerKinds))

	return r
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusHandler backs the control surface's status dump: chain head (if
// reachable), cursors, pending outbox count, per-status inbox counts, and
// pending domain outbox count.
func statusHandler(store StatusStore, head HeadClient, handlerKinds []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var headBlock *uint64
		var headErr string
		if head != nil {
			if h, err := head.GetHeadBlock(ctx); err != nil {
				headErr = err.Error()
			} else {
				headBlock = &h
			}
		}

		cursors, err := store.AllCursors(ctx)
		if err != nil {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}

		pendingOutbox, err := store.PendingOutboxCount(ctx)
		if err != nil {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}

		pendingCommands, err := store.PendingCommandCount(ctx)
		if err != nil {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}

		inboxByHandler := map[string]map[string]int64{}
		for _, kind := range handlerKinds {
			counts, err := store.InboxStatusCounts(ctx, kind)
			if err != nil {
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, map[string]string{"error": err.Error()})
				return
			}
			byStatus := make(map[string]int64, len(counts))
			for status, n := range counts {
				byStatus[string(status)] = n
			}
			inboxByHandler[kind] = byStatus
		}

		render.JSON(w, r, statusResponse{
			Head:            headBlock,
			HeadError:       headErr,
			Cursors:         cursors,
			PendingOutbox:   pendingOutbox,
			PendingCommands: pendingCommands,
			InboxByHandler:  inboxByHandler,
		})
	}
}
