package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tso-admin/internal/cache"
	"tso-admin/internal/database"
	"tso-admin/internal/kafka"
)

// Server представляет HTTP-сервер админ-панели заказов.
type Server struct {
	port    string
	router  *chi.Mux
	storage database.Storage
	cache   cache.Cache
	events  kafka.Publisher
}

// NewServer создает и настраивает новый экземпляр сервера.
func NewServer(port string, storage database.Storage, cache cache.Cache, events kafka.Publisher) *Server {
	server := &Server{
		port:    port,
		storage: storage,
		cache:   cache,
		events:  events,
	}
	server.router = server.setupRouter()
	return server
}

// Run запускает HTTP-сервер.
func (s *Server) Run() error {
	address := fmt.Sprintf(":%s", s.port)
	fmt.Printf("🚀 HTTP-сервер запущен на http://localhost%s\n", address)
	return http.ListenAndServe(address, otelhttp.NewHandler(s.router, "http.server"))
}

// setupRouter настраивает маршрутизацию.
// Id заказов ("12/25-FD") содержат "/", поэтому адресация идет через
// query-параметр id, а не через сегмент пути.
func (s *Server) setupRouter() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	orderHandler := NewOrderHandler(s.storage, s.cache, s.events)
	router.Get("/api/orders", orderHandler.List)
	router.Post("/api/orders", orderHandler.Create)
	router.Put("/api/orders", orderHandler.Update)
	router.Post("/api/orders/update", orderHandler.Update)
	router.Delete("/api/orders", orderHandler.Delete)
	router.Get("/api/orders/next-id", orderHandler.NextID)
	router.Get("/api/order", orderHandler.GetByID)

	router.Handle("/metrics", promhttp.Handler())

	// Обработчик для статических файлов
	fileServer := http.FileServer(http.Dir("./web/"))
	router.Handle("/*", fileServer)

	return router
}
