// Package http exposes the analysis engine over a thin chi HTTP API. The
// handlers do no aggregation or filtering of their own: every query runs in
// internal/analysis and results are rendered as JSON (the chart artifact as
// image/png). This is the sole surface the external presentation layer
// talks to.
package http
