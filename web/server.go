// Package web serves the read-only dashboard: a table of the most recent
// cycle's target trucks, backed by the history store.
package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"truckwatch/money"
	"truckwatch/store"
)

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<title>truckwatch</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
th { background: #f2f2f2; }
.blocked { color: #999; }
</style>
</head>
<body>
<h1>Upcoming trucks</h1>
<p>{{ .Count }} listings from the last cycle ({{ .FetchedAt }})</p>
<table>
<tr><th>Site</th><th>Title</th><th>Location</th><th>Bid</th><th>Time left</th><th>Tags</th></tr>
{{ range .Rows }}
<tr>
<td>{{ .Site }}</td>
<td>{{ if .URL }}<a href="{{ .URL }}">{{ .Title }}</a>{{ else }}{{ .Title }}{{ end }}</td>
<td>{{ .Location }}</td>
<td>{{ .Bid }}</td>
<td>{{ .TimeLeft }}</td>
<td>{{ .Tags }}</td>
</tr>
{{ end }}
</table>
</body>
</html>`

// Server hosts the dashboard endpoints.
type Server struct {
	store *store.Store
	addr  string
	log   *zap.SugaredLogger
}

// New builds the dashboard server.
func New(st *store.Store, addr string, log *zap.SugaredLogger) *Server {
	return &Server{store: st, addr: addr, log: log}
}

type rowView struct {
	Site     string
	Title    string
	URL      string
	Location string
	Bid      string
	TimeLeft string
	Tags     string
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.SetHTMLTemplate(template.Must(template.New("index").Parse(indexHTML)))

	router.GET("/", s.handleIndex)
	router.GET("/api/listings", s.handleListings)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Infow("dashboard listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	snaps, err := s.store.Recent(c.Request.Context(), 200)
	if err != nil {
		s.log.Warnw("dashboard query failed", "error", err)
		c.String(http.StatusInternalServerError, "history unavailable")
		return
	}

	fetchedAt := ""
	rows := make([]rowView, 0, len(snaps))
	for _, sn := range snaps {
		if sn.Blocked || !sn.Target {
			continue
		}
		if fetchedAt == "" {
			fetchedAt = sn.FetchedAt.Format("2006-01-02 15:04 MST")
		}
		timeLeft := "N/A"
		if sn.Secs != nil {
			timeLeft = (time.Duration(*sn.Secs) * time.Second).String()
		}
		rows = append(rows, rowView{
			Site:     sn.Site,
			Title:    sn.Title,
			URL:      sn.URL,
			Location: sn.City + ", " + sn.State,
			Bid:      money.FormatDollars(sn.BidCents),
			TimeLeft: timeLeft,
			Tags:     strings.Join(sn.Tags, ", "),
		})
	}

	c.HTML(http.StatusOK, "index", gin.H{
		"Count":     len(rows),
		"FetchedAt": fetchedAt,
		"Rows":      rows,
	})
}

func (s *Server) handleListings(c *gin.Context) {
	snaps, err := s.store.Recent(c.Request.Context(), 500)
	if err != nil {
		s.log.Warnw("dashboard query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": snaps, "count": len(snaps)})
}
