// Package router mounts the ledger API handlers on a gin engine.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIPrefix is where every versioned route lives.
const APIPrefix = "/api/v1"

// area is one resource family under APIPrefix, e.g. /ledger or /runs.
// Middleware given to use applies to every route of the area.
type area struct {
	prefix string
	use    []gin.HandlerFunc
	routes []route
}

type route struct {
	method string
	path   string
	chain  []gin.HandlerFunc
}

func newArea(prefix string, use ...gin.HandlerFunc) *area {
	return &area{prefix: prefix, use: use}
}

func (a *area) get(path string, chain ...gin.HandlerFunc) *area {
	a.routes = append(a.routes, route{http.MethodGet, path, chain})
	return a
}

func (a *area) post(path string, chain ...gin.HandlerFunc) *area {
	a.routes = append(a.routes, route{http.MethodPost, path, chain})
	return a
}

func (a *area) mount(api *gin.RouterGroup) {
	g := api.Group(a.prefix, a.use...)
	for _, r := range a.routes {
		g.Handle(r.method, r.path, r.chain...)
	}
}

func mountAPI(engine *gin.Engine, areas ...*area) {
	api := engine.Group(APIPrefix)
	for _, a := range areas {
		a.mount(api)
	}
}
