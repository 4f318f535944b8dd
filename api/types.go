package api

import (
	"github.com/labstack/echo/v4"

	"github.com/scitags/conntuple/ipv6"
	"github.com/scitags/conntuple/store"
)

const (
	JSON_PRETTY_INDENT string = "    "
)

// Connections is what the API needs from the stats store.
type Connections interface {
	Connections() []store.Connection
	Len() int
}

// StrategyInfo describes how the running probe reads kernel memory.
type StrategyInfo struct {
	Strategy    string            `json:"strategy"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	IPv6        ipv6.Support      `json:"ipv6"`
	Layout      map[string]uint32 `json:"layout,omitempty"`
}

type rootResponse struct {
	ApiRoutes []*echo.Route
}

type connectionsResponse struct {
	Total       int                `json:"total"`
	Connections []store.Connection `json:"connections"`
}

type extendedContext struct {
	echo.Context
	apiRoutes []*echo.Route
	conns     Connections
	info      StrategyInfo
}
