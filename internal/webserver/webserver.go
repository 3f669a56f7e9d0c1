// Package webserver implements the optional diagnostics dashboard.
package webserver

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"slices"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/benjarvis/peepfs/internal/logging"
	"github.com/benjarvis/peepfs/internal/pathvfs"
)

var (
	//go:embed templates/*.html
	templateFS    embed.FS
	indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

	errInvalidArgument = errors.New("invalid argument")
)

// FSDashboard serves a live diagnostics view of a [pathvfs.FS]: its
// archive-handle and extraction metrics plus a tail of its log ring
// buffer, alongside Go runtime memory stats.
type FSDashboard struct {
	version string
	fsys    *pathvfs.FS
	rbuf    *logging.RingBuffer
	started time.Time
}

// NewFSDashboard returns a pointer to a new [FSDashboard].
func NewFSDashboard(fsys *pathvfs.FS, rbuf *logging.RingBuffer, version string) (*FSDashboard, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: need filesystem", errInvalidArgument)
	}
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need ring buffer", errInvalidArgument)
	}

	return &FSDashboard{
		version: version,
		fsys:    fsys,
		rbuf:    rbuf,
		started: time.Now(),
	}, nil
}

// Serve serves the dashboard as an [http.Server], started in its own
// goroutine; the caller owns its lifetime (Close it on shutdown).
func (d *FSDashboard) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: d.dashboardMux(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "(webserver) PANIC: %v\n", r)
				debug.PrintStack()
			}
		}()

		d.rbuf.Printf("serving dashboard on %s\n", addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.rbuf.Printf("HTTP error: %v\n", err)
		}
	}()

	return srv
}

func (d *FSDashboard) dashboardMux() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", d.dashboardHandler)
	r.HandleFunc("/metrics.json", d.metricsHandler)
	r.HandleFunc("/gc", d.gcHandler)
	r.HandleFunc("/reset", d.resetMetricsHandler)

	return r
}

type fsDashboardData struct {
	AllocBytes          string   `json:"allocBytes"`
	AvgExtractSpeed     string   `json:"avgExtractSpeed"`
	AvgExtractTime      string   `json:"avgExtractTime"`
	AvgMetadataReadTime string   `json:"avgMetadataReadTime"`
	CacheEntries        int64    `json:"cacheEntries"`
	Logs                []string `json:"logs"`
	NumGC               uint32   `json:"numGc"`
	OpenArchives        int64    `json:"openArchives"`
	SysBytes            string   `json:"sysBytes"`
	TotalClosedArchives int64    `json:"totalClosedArchives"`
	TotalExtractBytes   string   `json:"totalExtractBytes"`
	TotalOpenedArchives int64    `json:"totalOpenedArchives"`
	Uptime              string   `json:"uptime"`
	Version             string   `json:"version"`
}

func (d *FSDashboard) collectMetrics() fsDashboardData {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	lines := d.rbuf.Lines()
	slices.Reverse(lines)

	return fsDashboardData{
		AllocBytes:          humanize.IBytes(m.Alloc),
		AvgExtractSpeed:     d.avgExtractSpeed(),
		AvgExtractTime:      d.avgExtractTime(),
		AvgMetadataReadTime: d.avgMetadataReadTime(),
		CacheEntries:        d.fsys.CacheLen(),
		Logs:                lines,
		NumGC:               m.NumGC,
		OpenArchives:        d.fsys.Metrics.OpenArchives.Load(),
		SysBytes:            humanize.IBytes(m.Sys),
		TotalClosedArchives: d.fsys.Metrics.TotalClosedArchives.Load(),
		TotalExtractBytes:   d.totalExtractBytes(),
		TotalOpenedArchives: d.fsys.Metrics.TotalOpenedArchives.Load(),
		Uptime:              humanize.Time(d.started),
		Version:             d.version,
	}
}

func (d *FSDashboard) dashboardHandler(w http.ResponseWriter, _ *http.Request) {
	data := d.collectMetrics()

	if err := indexTemplate.Execute(w, data); err != nil {
		d.rbuf.Printf("HTTP template execution error: %v\n", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *FSDashboard) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	data := d.collectMetrics()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *FSDashboard) gcHandler(w http.ResponseWriter, _ *http.Request) {
	runtime.GC()
	debug.FreeOSMemory()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	d.rbuf.Printf("GC forced via API, current heap: %s.\n", humanize.IBytes(m.Alloc))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "GC forced, current heap: %s.\n", humanize.IBytes(m.Alloc))
}

func (d *FSDashboard) resetMetricsHandler(w http.ResponseWriter, _ *http.Request) {
	d.fsys.Metrics.TotalOpenedArchives.Store(0)
	d.fsys.Metrics.TotalClosedArchives.Store(0)
	d.fsys.Metrics.TotalMetadataReadTime.Store(0)
	d.fsys.Metrics.TotalMetadataReadCount.Store(0)
	d.fsys.Metrics.TotalExtractTime.Store(0)
	d.fsys.Metrics.TotalExtractCount.Store(0)
	d.fsys.Metrics.TotalExtractBytes.Store(0)

	d.rbuf.Println("Metrics reset via API.")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Metrics reset.")
}
