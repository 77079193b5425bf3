package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpswagger "github.com/swaggo/http-swagger/v2"

	"github.com/shopstack/checkout/internal/service/models/lineitem"
	"github.com/shopstack/checkout/internal/service/models/order"
	"github.com/shopstack/checkout/internal/service/services/checkoutsvc"
	createintent "github.com/shopstack/checkout/internal/transport/http/create_intent"
	getorder "github.com/shopstack/checkout/internal/transport/http/get_order"
	listorders "github.com/shopstack/checkout/internal/transport/http/list_orders"
	"github.com/shopstack/checkout/internal/transport/http/webhook"
	"github.com/shopstack/checkout/pkg/http/middleware/trace"
	"github.com/shopstack/checkout/pkg/logger"
)

type checkoutService interface {
	CreateIntent(
		ctx context.Context,
		ownerID string,
		lines []lineitem.LineItem,
	) (checkoutsvc.Checkout, error)
	GetOrder(ctx context.Context, orderID string) (order.Order, error)
	GetOrders(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
}

type reconcilerService interface {
	Process(ctx context.Context, payload []byte, sigHeader string) error
}

type HTTPTransport struct {
	server     *http.Server
	router     *chi.Mux
	checkout   checkoutService
	reconciler reconcilerService
}

func NewHTTPTransport(checkout checkoutService, reconciler reconcilerService) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	return &HTTPTransport{
		server:     server,
		router:     router,
		checkout:   checkout,
		reconciler: reconciler,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Route("/payment", func(r chi.Router) {
		r.Post("/intent", h.createIntent)
		r.Post("/webhook", h.handleWebhook)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
	})

	h.router.Get("/swagger/*", httpswagger.Handler(
		httpswagger.URL("/swagger/openapi.json"),
	))
	h.router.Get("/swagger/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, viper.GetString("server.http.openapi_path"))
	})
}

func (h *HTTPTransport) createIntent(w http.ResponseWriter, r *http.Request) {
	createintent.CreateIntent(w, r, h.checkout)
}

func (h *HTTPTransport) handleWebhook(w http.ResponseWriter, r *http.Request) {
	webhook.HandleEvent(w, r, h.reconciler)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.checkout)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.checkout)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(trace.NewTraceMiddleware)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
