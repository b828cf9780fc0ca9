// Package server implements the HTTP server using Echo framework.
//
// Routes: topic lifecycle (create/stats/search), voting (cast/list/identity),
// operational (sweep trigger, health, metrics). Business outcomes map to 200
// responses with an outcome field; purged topics reject votes with 403.
package server
