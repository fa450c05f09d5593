package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pdf-chat/backend/pkg/utils"
)

// Handler 健康检查
type Handler struct {
	region string
}

// New 创建健康检查处理器，region 会随响应返回。
func New(region string) *Handler {
	return &Handler{region: region}
}

// RegisterRoutes 注册 /health
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"region": h.region,
	})
}
