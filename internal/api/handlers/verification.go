// verification.go — обработчики API проверки аккаунтов.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/rbxverifier/internal/api/errors"
	"github.com/bigkaa/rbxverifier/internal/api/middleware"
	"github.com/bigkaa/rbxverifier/internal/rules"
	"github.com/bigkaa/rbxverifier/internal/service"
)

// maxRequestBody — предельный размер тела запроса на проверку.
const maxRequestBody = 64 << 10

// Verifier — прогон проверки (service.Verifier).
type Verifier interface {
	Verify(ctx context.Context, username, blacklistURL string) (*service.Result, error)
	Params() *rules.Params
}

// VerificationHandler — обработчик /api/v1/verifications и /api/v1/rules/summary.
type VerificationHandler struct {
	verifier Verifier
	logger   *slog.Logger
}

// NewVerificationHandler создаёт обработчик API проверки.
func NewVerificationHandler(verifier Verifier, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "verification_handler")),
	}
}

// verifyRequest — тело POST /api/v1/verifications.
type verifyRequest struct {
	Username     string `json:"username"`
	BlacklistURL string `json:"blacklist_url"`
}

// CreateVerification — POST /api/v1/verifications.
// 200 — результат прогона, 400 — некорректный запрос,
// 404 — логин не найден, 502 — API платформы не отдало профиль или группы.
func (h *VerificationHandler) CreateVerification(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		apierrors.ValidationError(w, "Поле username обязательно")
		return
	}

	result, err := h.verifier.Verify(r.Context(), username, strings.TrimSpace(req.BlacklistURL))
	if err != nil {
		h.writeVerifyError(w, r, username, err)
		return
	}

	h.logger.Info("Проверка завершена",
		slog.String("run_id", result.RunID),
		slog.String("username", username),
		slog.String("status", string(result.Status)),
		slog.String("requested_by", middleware.SubjectFromContext(r.Context())),
	)
	writeJSON(w, http.StatusOK, result)
}

func (h *VerificationHandler) writeVerifyError(w http.ResponseWriter, r *http.Request, username string, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		apierrors.UserNotFound(w, "Пользователь "+username+" не найден")
	case errors.Is(err, service.ErrFetchFailed):
		h.logger.Warn("API платформы недоступно",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		apierrors.UpstreamUnavailable(w, "Не удалось загрузить данные пользователя")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("Проверка прервана",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		apierrors.UpstreamUnavailable(w, "Проверка прервана по таймауту")
	default:
		h.logger.ErrorContext(r.Context(), "Ошибка прогона проверки",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}

// GetRulesSummary — GET /api/v1/rules/summary.
// Размеры настроенных наборов и пороги.
func (h *VerificationHandler) GetRulesSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.verifier.Params().Summary())
}
