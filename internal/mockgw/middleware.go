package mockgw

import (
	"net/http"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = "request_id"

// RequestID tags each request with an X-Request-ID, generating one if absent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestLogger logs each request once it completes.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		switch {
		case status >= 500:
			logger.Warn("HTTP Request", fields...)
		default:
			logger.Debug("HTTP Request", fields...)
		}
	}
}

// Faults configures injected failures. Rates are probabilities in [0,1].
type Faults struct {
	// ErrorRate is the probability of answering 500.
	ErrorRate float64
	// UnavailableRate is the probability of answering 503.
	UnavailableRate float64
	// Latency is added before every response.
	Latency time.Duration
}

// faultInjector decides per request whether to fail it.
type faultInjector struct {
	mu     sync.Mutex
	rng    *gofakeit.Faker
	faults Faults
	down   map[string]bool
}

// newFaultInjector seeds the rolls; a zero seed is random.
func newFaultInjector(faults Faults, seed uint64) *faultInjector {
	return &faultInjector{
		rng:    gofakeit.New(seed),
		faults: faults,
		down:   make(map[string]bool),
	}
}

func (f *faultInjector) setDown(service string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[service] = down
}

func (f *faultInjector) setFaults(faults Faults) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = faults
}

// decide returns the status to fail with, or 0 to let the request through.
func (f *faultInjector) decide(service string) (int, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down[service] {
		return http.StatusBadGateway, f.faults.Latency
	}
	roll := f.rng.Float64()
	switch {
	case roll < f.faults.UnavailableRate:
		return http.StatusServiceUnavailable, f.faults.Latency
	case roll < f.faults.UnavailableRate+f.faults.ErrorRate:
		return http.StatusInternalServerError, f.faults.Latency
	}
	return 0, f.faults.Latency
}

// middleware fails requests to service according to the injector state.
func (f *faultInjector) middleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, latency := f.decide(service)
		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-c.Request.Context().Done():
				c.Abort()
				return
			}
		}
		if status != 0 {
			c.AbortWithStatusJSON(status, errorBody(status, "injected fault"))
			return
		}
		c.Next()
	}
}

func errorBody(status int, msg string) gin.H {
	return gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    status,
		"error":     http.StatusText(status),
		"message":   msg,
	}
}
