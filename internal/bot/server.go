package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imobia/atende/internal/wa"
)

// StartOpts holds configuration for the webhook server.
type StartOpts struct {
	Orchestrator *Orchestrator
	Listen       string // default :8000
	Out          io.Writer
}

// Start launches the webhook HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully after draining background work.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Orchestrator == nil {
		return fmt.Errorf("bot: orchestrator is required")
	}
	if opts.Listen == "" {
		opts.Listen = ":8000"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts.Orchestrator)

	srv := &http.Server{
		Addr:    opts.Listen,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Webhook server listening on %s\n", opts.Listen)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("bot: %w", err)
	}
	opts.Orchestrator.Flush()
	return nil
}

func registerRoutes(router *gin.Engine, o *Orchestrator) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "atende",
			"status":  "running",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": o.SessionStats(),
		})
	})

	// The gateway retries non-200 responses, so the webhook always answers
	// 200 once the body is read; processing failures are handled inside.
	router.POST("/webhook", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"processed": false})
			return
		}
		in, ok := wa.ParseWebhook(body)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"processed": false})
			return
		}
		o.HandleInbound(c.Request.Context(), in)
		c.JSON(http.StatusOK, gin.H{"processed": true})
	})
}
