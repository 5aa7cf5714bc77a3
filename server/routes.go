package server

import (
	"net/http"

	"go.uber.org/zap"
)

// Routes HTTP 路由所需的依赖
type Routes struct {
	Hub       *Hub
	WS        *Handler
	Profiles  ProfileStore // 为 nil 时不挂载资料接口
	Logger    *zap.SugaredLogger
	StaticDir string // 为空时不提供静态资源
}

// NewMux 组装全部 HTTP 路由
func NewMux(rt Routes) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", rt.WS)

	if rt.Profiles != nil {
		ph := &ProfileHandler{Store: rt.Profiles, Logger: rt.Logger}
		mux.HandleFunc("GET /profiles/{uid}", ph.HandleGet)
		mux.HandleFunc("PUT /profiles/{uid}", ph.HandlePut)
	}

	// 管理与监控接口
	admin := &Admin{Registry: rt.Hub.Registry(), Metrics: rt.Hub.Metrics(), Hub: rt.Hub}
	mux.HandleFunc("/admin/rooms", admin.HandleRooms)
	mux.HandleFunc("/metrics", admin.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	// 前后端分离：将 / 映射到 web 目录的静态资源
	if rt.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(rt.StaticDir)))
	}
	return mux
}
