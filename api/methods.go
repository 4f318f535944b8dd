package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/scitags/conntuple/store"
)

func handleRoot(c echo.Context) error {
	cc := c.(*extendedContext)
	return c.JSONPretty(http.StatusOK, &rootResponse{
		ApiRoutes: cc.apiRoutes,
	}, JSON_PRETTY_INDENT)
}

func handleConnections(c echo.Context) error {
	cc := c.(*extendedContext)

	limit := -1
	if raw := c.QueryParam("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = l
	}

	verbosity := c.QueryParam("verbosity")

	conns := cc.conns.Connections()
	if limit >= 0 && limit < len(conns) {
		conns = conns[:limit]
	}
	for i := range conns {
		conns[i].Verbosity = verbosity
	}

	return c.JSONPretty(http.StatusOK, &connectionsResponse{
		Total:       cc.conns.Len(),
		Connections: conns,
	}, JSON_PRETTY_INDENT)
}

func handleConnection(c echo.Context) error {
	cc := c.(*extendedContext)

	id := c.Param("id")
	for _, conn := range cc.conns.Connections() {
		if store.ID(conn.Tuple) == id {
			conn.Verbosity = c.QueryParam("verbosity")
			return c.JSONPretty(http.StatusOK, conn, JSON_PRETTY_INDENT)
		}
	}

	return echo.NewHTTPError(http.StatusNotFound, "no connection with id "+id)
}

func handleStrategy(c echo.Context) error {
	cc := c.(*extendedContext)
	return c.JSONPretty(http.StatusOK, &cc.info, JSON_PRETTY_INDENT)
}
