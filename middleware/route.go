package middleware

import (
	"github.com/gin-gonic/gin"

	midsec "mdzgate/middleware/security"
	jwtsec "mdzgate/tools/security"
)

// RouteOpt 配置选项
type RouteOpt struct {
	IsAuth bool
	JWT    jwtsec.Options
}

// POST registers a POST route, optionally behind the bearer-token guard.
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.POST(path, midsec.Middleware(opt.JWT), handler)
	} else {
		r.POST(path, handler)
	}
}

// GET registers a GET route, optionally behind the bearer-token guard.
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.GET(path, midsec.Middleware(opt.JWT), handler)
	} else {
		r.GET(path, handler)
	}
}
