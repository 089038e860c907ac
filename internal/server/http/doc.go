// Package httpserver exposes the store's ops endpoints: /v1/healthz reports
// namespace health and the last assigned id, and /metrics serves Prometheus
// collectors.
package httpserver
