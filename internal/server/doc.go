// Package server implements the HTTP API for Receipt Drop. It routes
// receipt uploads into the receipts pipeline, serves listings and stored
// files, and exposes health and metrics endpoints used by the production
// binary and by tests.
package server
