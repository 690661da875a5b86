package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/comanda/internal/cache"
	"github.com/smallbiznis/comanda/internal/catalog"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/checkout"
	"github.com/smallbiznis/comanda/internal/comanda"
	comandadomain "github.com/smallbiznis/comanda/internal/comanda/domain"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/customer"
	customerdomain "github.com/smallbiznis/comanda/internal/customer/domain"
	"github.com/smallbiznis/comanda/internal/dashboard"
	"github.com/smallbiznis/comanda/internal/events"
	"github.com/smallbiznis/comanda/internal/observability"
	obsmiddleware "github.com/smallbiznis/comanda/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/comanda/internal/observability/metrics"
	obstracing "github.com/smallbiznis/comanda/internal/observability/tracing"
	"github.com/smallbiznis/comanda/internal/order"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/outbox"
	"github.com/smallbiznis/comanda/internal/providers"
	"github.com/smallbiznis/comanda/internal/providers/webhook"
	"github.com/smallbiznis/comanda/internal/ratelimit"
	"github.com/smallbiznis/comanda/internal/report"
	"github.com/smallbiznis/comanda/internal/tablesession"
	"github.com/smallbiznis/comanda/internal/waiter"
	waiterdomain "github.com/smallbiznis/comanda/internal/waiter/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	events.Module,
	cache.Module,
	ratelimit.Module,
	providers.Module,
	catalog.Module,
	customer.Module,
	waiter.Module,
	comanda.Module,
	order.Module,
	outbox.Module,
	tablesession.Module,
	checkout.Module,
	dashboard.Module,
	report.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	settings    *config.RestaurantConfigHolder
	log         *zap.Logger
	catalogSvc  catalogdomain.Service
	customerSvc customerdomain.Service
	waiterSvc   waiterdomain.Service
	comandaSvc  comandadomain.Service
	orderSvc    orderdomain.Service
	session     *tablesession.Service
	checkout    *checkout.Service
	monitor     *dashboard.Monitor
	reports     *report.Service
	outbox      *outbox.Reconciler
	hub         *events.Hub
	limiter     *ratelimit.SubmissionLimiter
	forwarder   webhook.Forwarder
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Settings    *config.RestaurantConfigHolder
	Log         *zap.Logger
	CatalogSvc  catalogdomain.Service
	CustomerSvc customerdomain.Service
	WaiterSvc   waiterdomain.Service
	ComandaSvc  comandadomain.Service
	OrderSvc    orderdomain.Service
	Session     *tablesession.Service
	Checkout    *checkout.Service
	Monitor     *dashboard.Monitor
	Reports     *report.Service
	Outbox      *outbox.Reconciler
	Hub         *events.Hub
	Limiter     *ratelimit.SubmissionLimiter
	Forwarder   webhook.Forwarder
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		settings:    p.Settings,
		log:         p.Log.Named("http"),
		catalogSvc:  p.CatalogSvc,
		customerSvc: p.CustomerSvc,
		waiterSvc:   p.WaiterSvc,
		comandaSvc:  p.ComandaSvc,
		orderSvc:    p.OrderSvc,
		session:     p.Session,
		checkout:    p.Checkout,
		monitor:     p.Monitor,
		reports:     p.Reports,
		outbox:      p.Outbox,
		hub:         p.Hub,
		limiter:     p.Limiter,
		forwarder:   p.Forwarder,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/menu", s.GetMenu)

	// -------- Tables --------
	api.GET("/tables/:table/tab", s.GetTableTab)
	api.GET("/tables/:table/events", s.StreamTableEvents)
	api.POST("/tables/:table/orders", s.TableOrderRateLimit(), s.SubmitTableOrder)
	api.POST("/tables/:table/bill", s.RequestTableBill)

	// -------- Delivery / Pickup --------
	api.POST("/checkout", s.CheckoutRateLimit(), s.Checkout)
	api.GET("/customer-orders", s.ListCustomerOrders)

	// -------- Customers --------
	api.POST("/customers", s.RegisterCustomer)
	api.GET("/customers/lookup", s.LookupCustomer)

	// -------- Order webhook --------
	api.GET("/pedidos", s.OrderWebhookHealth)
	api.POST("/pedidos", RequireJSON(), s.ForwardOrderWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminAuthRequired())

	admin.GET("/dashboard", s.GetDashboard)
	admin.GET("/events", s.StreamStaffEvents)

	// -------- Orders --------
	admin.GET("/orders", s.ListOrders)
	admin.PATCH("/orders/:id/status", s.AdvanceOrderStatus)
	admin.GET("/orders/:id/next", s.GetOrderNextStatuses)
	admin.GET("/notifications/next", s.NextOrderNotification)
	admin.POST("/notifications/ack", s.AcknowledgeOrderNotification)

	// -------- Tabs --------
	admin.GET("/tabs", s.ListOpenTabs)
	admin.GET("/tabs/board", s.GetTableBoard)
	admin.GET("/tabs/bill-requests", s.ListBillRequests)
	admin.POST("/tabs", s.OpenTab)
	admin.GET("/tabs/:id", s.GetTab)
	admin.POST("/tabs/:id/items", s.AddTabItems)
	admin.PATCH("/tabs/:id/items/:itemId", s.UpdateTabItemStatus)
	admin.POST("/tabs/:id/waiter", s.AssignTabWaiter)
	admin.POST("/tabs/:id/settle", s.SettleTab)
	admin.POST("/tabs/:id/reconcile", s.ReconcileTab)

	// -------- Catalog --------
	admin.GET("/products", s.ListProducts)
	admin.POST("/products", s.CreateProduct)
	admin.PATCH("/products/:id", s.UpdateProduct)
	admin.DELETE("/products/:id", s.DeleteProduct)
	admin.POST("/products/:id/toggle", s.ToggleProduct)

	// -------- Waiters --------
	admin.GET("/waiters", s.ListWaiters)
	admin.POST("/waiters", s.CreateWaiter)
	admin.POST("/waiters/:id/toggle", s.ToggleWaiter)
	admin.DELETE("/waiters/:id", s.DeleteWaiter)

	// -------- Reports --------
	admin.GET("/reports/daily", s.GetDailyReport)
	admin.GET("/reports", s.GetRangeReport)

	// -------- Tables --------
	admin.GET("/tables/:table/qr", s.GetTableQRCode)

	// -------- Outbox --------
	admin.GET("/outbox", s.GetOutboxStats)
	admin.POST("/outbox/drain", s.DrainOutbox)
}
