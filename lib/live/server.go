package live

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// SubscribeRequest is the first message a websocket client sends.
type SubscribeRequest struct {
	Series []string `json:"series"`
}

// Event is what the websocket streams: one of Point or Finished is set.
type Event struct {
	Point    *Point    `json:"point,omitempty"`
	Finished *Finished `json:"finished,omitempty"`
}

func event(msg Message) Event {
	switch m := msg.(type) {
	case Point:
		return Event{Point: &m}
	case Finished:
		return Event{Finished: &m}
	}
	return Event{}
}

// Handler returns the monitor's HTTP routes:
//
//	GET /series          names with history
//	GET /history?series= retained points of one series
//	GET /ws              backlog then live events as JSON
//	GET /metrics         prometheus
func (m *Monitor) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/series", func(c *gin.Context) {
		c.JSON(http.StatusOK, m.Series())
	})

	r.GET("/history", func(c *gin.Context) {
		name := c.Query("series")
		pts := m.History(name)
		if pts == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such series: " + name})
			return
		}
		c.JSON(http.StatusOK, pts)
	})

	r.GET("/ws", func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "closed unexpectedly")
		}()

		if err := m.serveWS(c.Request.Context(), conn); err != nil {
			log.Printf("live: %s", err)
			return
		}
		conn.Close(websocket.StatusNormalClosure, "")
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})))

	return r
}

func (m *Monitor) serveWS(ctx context.Context, conn *websocket.Conn) error {
	var req SubscribeRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		return errors.Wrap(err, "read request")
	}
	ctx = conn.CloseRead(ctx)

	sub := m.Subscribe(req.Series...)
	defer sub.Close()

	for _, p := range sub.Backlog {
		if err := wsjson.Write(ctx, conn, event(p)); err != nil {
			return errors.Wrap(err, "write backlog")
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				return nil
			}
			if !sub.Wants(msg) {
				continue
			}
			if err := wsjson.Write(ctx, conn, event(msg)); err != nil {
				return errors.Wrap(err, "write")
			}
		}
	}
}

// Serve runs the monitor's HTTP server on addr until ctx is done.
func (m *Monitor) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	log.Printf("live monitor on http://%s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	return nil
}
