package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func text(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body) }
}

func TestMountAPI_Prefix(t *testing.T) {
	engine := gin.New()
	mountAPI(engine,
		newArea("/runs").get("", text("list")).post("", text("created")),
		newArea("/payments").post("", text("paid")),
	)

	assert.Equal(t, "list", serve(engine, http.MethodGet, APIPrefix+"/runs").Body.String())
	assert.Equal(t, "created", serve(engine, http.MethodPost, APIPrefix+"/runs").Body.String())
	assert.Equal(t, "paid", serve(engine, http.MethodPost, APIPrefix+"/payments").Body.String())
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/runs").Code)
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, APIPrefix+"/payments").Code)
}

func TestArea_MiddlewareScopedToArea(t *testing.T) {
	mark := func(c *gin.Context) {
		c.Header("X-Area", "ledger")
		c.Next()
	}
	engine := gin.New()
	mountAPI(engine,
		newArea("/ledger", mark).get("/rows", text("rows")),
		newArea("/runs").get("", text("runs")),
	)

	assert.Equal(t, "ledger", serve(engine, http.MethodGet, APIPrefix+"/ledger/rows").Header().Get("X-Area"))
	assert.Empty(t, serve(engine, http.MethodGet, APIPrefix+"/runs").Header().Get("X-Area"))
}

func TestArea_StaticBeforeParam(t *testing.T) {
	engine := gin.New()
	mountAPI(engine, newArea("/ledger").
		get("/rows/recent", text("recent")).
		get("/rows/:sequence_no", func(c *gin.Context) { c.String(http.StatusOK, c.Param("sequence_no")) }))

	assert.Equal(t, "recent", serve(engine, http.MethodGet, APIPrefix+"/ledger/rows/recent").Body.String())
	assert.Equal(t, "2026-0001", serve(engine, http.MethodGet, APIPrefix+"/ledger/rows/2026-0001").Body.String())
}
