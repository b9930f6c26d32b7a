// Package mockgw is an in-memory stand-in for the e-commerce API gateway. It
// serves the routes the load generator exercises and can inject failures so
// every response class can be produced locally.
package mockgw

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Service names, also the first path segment of their routes.
const (
	ServiceProduct  = "product-service"
	ServiceUser     = "user-service"
	ServiceOrder    = "order-service"
	ServiceShipping = "shipping-service"
)

// Services lists every service behind the gateway.
var Services = []string{ServiceProduct, ServiceUser, ServiceOrder, ServiceShipping}

// ErrUnknownService is returned for a service name not in Services.
var ErrUnknownService = errors.New("mockgw: unknown service")

// Config configures the mock gateway.
type Config struct {
	// Addr is the listen address. Default: ":8080"
	Addr string
	// Products is the number of seeded products. Default: 20
	Products int
	// Faults are the injected failures.
	Faults Faults
	// Down lists services that answer 502.
	Down []string
	// Seed makes fault injection reproducible. Zero is random.
	Seed uint64
}

// Server is the mock gateway.
type Server struct {
	cfg    Config
	store  *Store
	faults *faultInjector
	engine *gin.Engine
	logger *zap.Logger
}

// New creates a mock gateway. logger may be nil.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Products <= 0 {
		cfg.Products = 20
	}
	if err := validateFaults(cfg.Faults); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		store:  NewStore(cfg.Products),
		faults: newFaultInjector(cfg.Faults, cfg.Seed),
		logger: logger.Named("mockgw"),
	}
	for _, svc := range cfg.Down {
		if err := s.SetDown(svc, true); err != nil {
			return nil, err
		}
	}
	s.engine = s.routes()
	return s, nil
}

func validateFaults(f Faults) error {
	if f.ErrorRate < 0 || f.UnavailableRate < 0 || f.ErrorRate+f.UnavailableRate > 1 {
		return fmt.Errorf("mockgw: fault rates must be non-negative and sum to at most 1")
	}
	if f.Latency < 0 {
		return fmt.Errorf("mockgw: latency must not be negative")
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	products := r.Group("/"+ServiceProduct+"/api", s.faults.middleware(ServiceProduct))
	products.GET("/products", s.listProducts)

	users := r.Group("/"+ServiceUser+"/api", s.faults.middleware(ServiceUser))
	users.POST("/users", s.createUser)
	users.GET("/users/:id", s.getUser)

	orders := r.Group("/"+ServiceOrder+"/api", s.faults.middleware(ServiceOrder))
	orders.POST("/orders", s.createOrder)
	orders.GET("/orders", s.listOrders)

	shippings := r.Group("/"+ServiceShipping+"/api", s.faults.middleware(ServiceShipping))
	shippings.POST("/shippings", s.addOrderItem)
	shippings.GET("/shippings", s.listOrderItems)

	return r
}

// Handler returns the HTTP handler of the gateway.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// SetDown marks a service as unreachable (502) or reachable again.
func (s *Server) SetDown(service string, down bool) error {
	for _, known := range Services {
		if known == service {
			s.faults.setDown(service, down)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownService, service)
}

// SetFaults replaces the injected failures.
func (s *Server) SetFaults(f Faults) error {
	if err := validateFaults(f); err != nil {
		return err
	}
	s.faults.setFaults(f)
	return nil
}

// Run serves on cfg.Addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mockgw: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock gateway listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mockgw: shutdown: %w", err)
	}
	users, orders, items := s.store.Counts()
	s.logger.Info("mock gateway stopped",
		zap.Int("users", users), zap.Int("orders", orders), zap.Int("shippings", items))
	return nil
}

func (s *Server) listProducts(c *gin.Context) {
	c.JSON(http.StatusOK, Collection[Product]{Collection: s.store.Products()})
}

func (s *Server) createUser(c *gin.Context) {
	var u User
	if err := c.ShouldBindJSON(&u); err != nil {
		s.badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.store.CreateUser(u))
}

func (s *Server) getUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		s.badRequest(c, err)
		return
	}
	u, ok := s.store.User(id)
	if !ok {
		c.JSON(http.StatusNotFound, errorBody(http.StatusNotFound, fmt.Sprintf("user with id %d not found", id)))
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) createOrder(c *gin.Context) {
	var o Order
	if err := c.ShouldBindJSON(&o); err != nil {
		s.badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.store.CreateOrder(o))
}

func (s *Server) listOrders(c *gin.Context) {
	c.JSON(http.StatusOK, Collection[Order]{Collection: nonNil(s.store.Orders())})
}

func (s *Server) addOrderItem(c *gin.Context) {
	var item OrderItem
	if err := c.ShouldBindJSON(&item); err != nil {
		s.badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.store.AddOrderItem(item))
}

func (s *Server) listOrderItems(c *gin.Context) {
	c.JSON(http.StatusOK, Collection[OrderItem]{Collection: nonNil(s.store.OrderItems())})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, errorBody(http.StatusBadRequest, err.Error()))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
