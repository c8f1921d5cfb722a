// Package server contains misc server utilities.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/budker-phys/gpiblab/generichttp"
	"github.com/budker-phys/gpiblab/log"
	"github.com/budker-phys/gpiblab/server/middleware/locker"
)

// Node is one device to serve
type Node struct {
	// Endpoint is where the device is mounted, "scope" serves it at /scope/...
	Endpoint string

	// HTTPer provides the routes
	HTTPer generichttp.HTTPer

	// Middleware is applied to the device's routes only
	Middleware []func(http.Handler) http.Handler
}

// BuildMux mounts every node on a chi router behind a lock, and serves the
// special route /endpoints which lists all routes as JSON
func BuildMux(nodes ...Node) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}
	for _, node := range nodes {
		// prepare the URL, "omc/scope" => "/omc/scope"
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)

		lock := locker.New()
		locker.Inject(node.HTTPer, lock)
		supergraph[hndlS] = node.HTTPer.RT().Endpoints()

		r := chi.NewRouter()
		r.Use(node.Middleware...)
		r.Use(lock.Check)
		node.HTTPer.RT().Bind(r)
		root.Mount(hndlS, r)
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		generichttp.ReplyWithJSON(w, supergraph)
	})
	return root
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// giving in-flight requests up to five seconds
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h}
	errs := make(chan error, 1)
	go func() {
		log.Info("now listening for requests at %s", addr)
		errs <- srv.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		return nil
	}
}
