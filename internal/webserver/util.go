//nolint:mnd
package webserver

import (
	"time"

	"github.com/dustin/go-humanize"
)

// avgMetadataReadTime returns a string of the average metadata read time.
func (d *FSDashboard) avgMetadataReadTime() string {
	return time.Duration(d.fsys.Metrics.TotalMetadataReadTime.Load() / max(1, d.fsys.Metrics.TotalMetadataReadCount.Load())).String()
}

// avgExtractTime returns a string of the average extraction time.
func (d *FSDashboard) avgExtractTime() string {
	return time.Duration(d.fsys.Metrics.TotalExtractTime.Load() / max(1, d.fsys.Metrics.TotalExtractCount.Load())).String()
}

// avgExtractSpeed returns a string of the average extraction throughput.
func (d *FSDashboard) avgExtractSpeed() string {
	bytes := d.fsys.Metrics.TotalExtractBytes.Load()
	ns := d.fsys.Metrics.TotalExtractTime.Load()

	if ns == 0 {
		return "0 B/s"
	}

	bps := float64(bytes) / (float64(ns) / 1e9)

	return humanize.IBytes(uint64(bps)) + "/s" //nolint:gosec
}

// totalExtractBytes returns a string of the total extracted bytes.
func (d *FSDashboard) totalExtractBytes() string {
	bytes := d.fsys.Metrics.TotalExtractBytes.Load()

	if bytes < 0 {
		return humanize.IBytes(0)
	}

	return humanize.IBytes(uint64(bytes)) //nolint:gosec
}
