package application

import (
	"compress/flate"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"

	"github.com/rs/cors"
)

//RequestRouter wraps the concrete router implementation
type RequestRouter struct {
	impl *chi.Mux
}

//Get accepts a pattern that should be routed to the handlerFn on a GET request
func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

//Post accepts a pattern that should be routed to the handlerFn on a POST request
func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

//Put accepts a pattern that should be routed to the handlerFn on a PUT request
func (router *RequestRouter) Put(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Put(pattern, handlerFn)
}

//Patch accepts a pattern that should be routed to the handlerFn on a PATCH request
func (router *RequestRouter) Patch(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Patch(pattern, handlerFn)
}

//Delete accepts a pattern that should be routed to the handlerFn on a DELETE request
func (router *RequestRouter) Delete(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Delete(pattern, handlerFn)
}

//ServeHTTP lets the router be used directly as an http.Handler
func (router *RequestRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.impl.ServeHTTP(w, r)
}

//RouterOptions holds the settings the router needs from the service configuration
type RouterOptions struct {
	Port               string
	AuthEmailHeader    string
	AllowedEmailDomain string
	Stream             StreamOptions
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	router.impl.Use(middleware.Logger)

	return router
}

func createRequestRouter(log logging.Logger, service *Service, resolver Resolver, opts RouterOptions) *RequestRouter {
	router := newRequestRouter()
	registry := service.hub.Registry()

	a := &api{
		service:  service,
		resolver: resolver,
		registry: registry,
		started:  time.Now(),
		log:      log,
	}

	router.Get("/api/health", a.health)
	router.Get("/api/device/{deviceId}/events", NewEventStreamHandler(registry, opts.Stream, log))
	router.Get("/api/device-config/{deviceId}", a.deviceConfig)

	router.impl.Route("/api/admin", func(r chi.Router) {
		// Event streams must not be buffered, so compression is limited to the admin api
		compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json")
		r.Use(compressor.Handler)
		r.Use(Identity(opts.AuthEmailHeader, opts.AllowedEmailDomain, resolver, log))

		r.Get("/user-info", a.userInfo)
		r.Delete("/permissions/cache", a.clearPermissionCache)

		r.Get("/sse/status", a.sseStatus)
		r.Post("/sse/test-push/{deviceId}", a.testPush)
		r.Post("/sse/test-push-all", a.testPushAll)

		r.Post("/push/refresh-one/{deviceId}", a.refreshOne)
		r.Post("/push/refresh", a.refresh)
		r.Post("/push/refresh-all", a.refreshAll)
		r.Post("/push/building/{building}", a.refreshBuilding)

		r.Get("/devices", a.listDevices)
		r.Post("/devices", a.createDevice)
		r.Put("/devices/{deviceId}", a.updateDevice)
		r.Delete("/devices/{deviceId}", a.deleteDevice)

		r.Get("/alerts", a.listAlerts)
		r.Post("/alerts", a.createAlert)
		r.Put("/alerts/{alertId}", a.updateAlert)
		r.Delete("/alerts/{alertId}", a.deleteAlert)
		r.Patch("/alerts/{alertId}/toggle", a.toggleAlert)
		r.Post("/alerts/{alertId}/deploy", a.deployAlert)
	})

	return router
}

//CreateRouterAndStartServing sets up the router and starts serving incoming requests
func CreateRouterAndStartServing(log logging.Logger, service *Service, resolver Resolver, opts RouterOptions) {
	router := createRequestRouter(log, service, resolver, opts)

	port := opts.Port
	if port == "" {
		port = "8880"
	}

	log.Infof("Starting signage-hub on port %s.", port)
	log.Fatal(http.ListenAndServe(":"+port, router.impl))
}
