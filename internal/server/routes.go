package server

import (
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type lastCycle struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Phase      string `json:"phase,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
}

type healthResponse struct {
	Status    string     `json:"status"`
	State     string     `json:"state"`
	Version   string     `json:"version"`
	Cycles    uint64     `json:"cycles"`
	LastCycle *lastCycle `json:"last_cycle,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	return e
}

// HealthCheckHandler reports OK while the poll loop runs. Failed cycles do not
// make the service unhealthy.
func (s *Server) HealthCheckHandler(c echo.Context) error {
	st := s.status.Status()

	res := healthResponse{
		Status:  "OK",
		State:   st.State.String(),
		Version: versioninfo.Short(),
		Cycles:  st.Cycles,
	}
	if last := st.LastCycle; last != nil {
		res.LastCycle = &lastCycle{
			ID:         last.ID,
			Status:     string(last.Status),
			StatusCode: last.StatusCode,
			StartedAt:  last.StartedAt.UTC().Format(time.RFC3339),
			DurationMS: last.Duration.Milliseconds(),
		}
		if !last.OK() {
			res.LastCycle.Phase = string(last.Phase)
		}
		if last.Err != nil {
			res.LastCycle.Error = last.Err.Error()
		}
	}

	if !st.Running {
		res.Status = "FAIL"
		return c.JSON(http.StatusServiceUnavailable, res)
	}
	return c.JSON(http.StatusOK, res)
}
