package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"villagesync/store"
)

// ProfileStore 资料存储（文档库协作方），核心只依赖按 uid 查询
type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (store.Profile, error)
	PutProfile(ctx context.Context, p store.Profile) error
}

// ProfileHandler 资料读写接口
// GET /profiles/{uid}
// PUT /profiles/{uid}  {"username":"Alice","avatar":"ArabCharacter_idle.png"}
type ProfileHandler struct {
	Store  ProfileStore
	Logger *zap.SugaredLogger
}

func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(r.PathValue("uid"))
	p, err := h.Store.GetProfile(r.Context(), uid)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger().Errorf("get profile: uid=%q err=%v", uid, err)
		http.Error(w, "profile lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfileHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(r.PathValue("uid"))
	if uid == "" {
		http.Error(w, "uid is required", http.StatusBadRequest)
		return
	}
	var body struct {
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	p := store.Profile{UID: uid, Username: body.Username, Avatar: body.Avatar}
	if err := h.Store.PutProfile(r.Context(), p); err != nil {
		h.logger().Errorf("put profile: uid=%q err=%v", uid, err)
		http.Error(w, "profile update failed", http.StatusInternalServerError)
		return
	}
	h.logger().Infof("profile updated: uid=%q username=%q avatar=%q", uid, p.Username, p.Avatar)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *ProfileHandler) logger() *zap.SugaredLogger {
	if h.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return h.Logger
}
