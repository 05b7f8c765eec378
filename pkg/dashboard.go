package pkg

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	ErrorCodeNoRunYet       = "NO_RUN_YET"
	ErrorCodeRunInProgress  = "RUN_IN_PROGRESS"
	ErrorCodeFetchFailed    = "FETCH_FAILED"
	ErrorCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrorCodeNotFound       = "NOT_FOUND"

	chartFileName = "vaccinations_graph.html"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{ .Title }}</title></head>
<body>
<iframe id="graph" src="/chart.html" style="width:100%;height:760px;border:none"></iframe>
<a id="download" href="{{ .Href }}" download="{{ .FileName }}"><button>Download HTML</button></a>
<p>Captured at {{ .CapturedAt }}</p>
</body>
</html>
`))

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Dashboard struct {
	pipeline *Pipeline
	store    Store
	logger   *zerolog.Logger
}

func NewDashboard(pipeline *Pipeline, store Store, logger *zerolog.Logger) *Dashboard {
	return &Dashboard{pipeline: pipeline, store: store, logger: logger}
}

func (d *Dashboard) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), d.requestLogger())
	router.SetHTMLTemplate(indexTemplate)

	router.GET("/", d.index)
	router.GET("/chart.html", d.chart)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	{
		api.GET("/percentages", d.latestBatch)
		api.GET("/percentages/:iso_code", d.history)
		api.POST("/runs", d.triggerRun)
	}
	return router
}

func respondWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: message})
}

func (d *Dashboard) index(c *gin.Context) {
	report := d.pipeline.Latest()
	if report == nil {
		respondWithError(c, http.StatusServiceUnavailable, ErrorCodeNoRunYet, "no successful run yet")
		return
	}
	c.HTML(http.StatusOK, "index", gin.H{
		"Title":      d.pipeline.chartTitle(),
		"Href":       template.URL(DownloadHref(report.Chart)),
		"FileName":   chartFileName,
		"CapturedAt": report.CapturedAt.Format("2006-01-02 15:04:05 MST"),
	})
}

func (d *Dashboard) chart(c *gin.Context) {
	report := d.pipeline.Latest()
	if report == nil {
		respondWithError(c, http.StatusServiceUnavailable, ErrorCodeNoRunYet, "no successful run yet")
		return
	}
	if c.Query("download") != "" {
		c.Header("Content-Disposition", `attachment; filename="`+chartFileName+`"`)
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.Chart)
}

func (d *Dashboard) latestBatch(c *gin.Context) {
	rows, err := d.store.LatestBatch(c.Request.Context())
	if err != nil {
		d.logger.Err(err).Msg("Failed to read latest batch")
		respondWithError(c, http.StatusInternalServerError, ErrorCodeInternalServer, "failed reading percentages")
		return
	}
	if rows == nil {
		rows = []PersistedRow{}
	}
	c.JSON(http.StatusOK, rows)
}

func (d *Dashboard) history(c *gin.Context) {
	isoCode := strings.ToUpper(c.Param("iso_code"))
	rows, err := d.store.History(c.Request.Context(), isoCode)
	if err != nil {
		d.logger.Err(err).Str("country", isoCode).Msg("Failed to read country history")
		respondWithError(c, http.StatusInternalServerError, ErrorCodeInternalServer, "failed reading percentages")
		return
	}
	if len(rows) == 0 {
		respondWithError(c, http.StatusNotFound, ErrorCodeNotFound, "no percentages for "+isoCode)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (d *Dashboard) triggerRun(c *gin.Context) {
	report, err := d.pipeline.Run(c.Request.Context())
	switch {
	case errors.Is(err, ErrRunInProgress):
		respondWithError(c, http.StatusConflict, ErrorCodeRunInProgress, err.Error())
	case errors.Is(err, ErrFetch):
		respondWithError(c, http.StatusBadGateway, ErrorCodeFetchFailed, err.Error())
	case err != nil:
		respondWithError(c, http.StatusInternalServerError, ErrorCodeInternalServer, "run failed")
	default:
		c.JSON(http.StatusOK, report.Summary())
	}
}

func (d *Dashboard) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		d.logger.Debug().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).Msg("Handled request")
	}
}
