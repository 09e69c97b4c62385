// Пакет platform — HTTP-клиент публичного API платформы (Roblox):
// поиск ID по логину, профиль, число друзей, группы и страницы бейджей.
// Каждый запрос выполняется один раз, без повторов, с таймаутом клиента.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
)

// ErrNotFound — платформа не знает запрошенного пользователя.
var ErrNotFound = errors.New("пользователь не найден на платформе")

// Имена эндпоинтов для метрик и логов.
const (
	EndpointResolve = "resolve"
	EndpointProfile = "profile"
	EndpointFriends = "friends"
	EndpointGroups  = "groups"
	EndpointBadges  = "badges"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rv_platform_requests_total",
	Help: "Запросы к API платформы по эндпоинту и результату.",
}, []string{"endpoint", "result"})

// SortOrder — порядок выдачи бейджей.
type SortOrder string

const (
	// SortAsc — от старых к новым
	SortAsc SortOrder = "Asc"
	// SortDesc — от новых к старым
	SortDesc SortOrder = "Desc"
)

// BadgePage — одна страница бейджей.
type BadgePage struct {
	Items []model.Badge
	// NextCursor — курсор следующей страницы; пустой — страниц больше нет
	NextCursor string
}

// Endpoints — базовые URL четырёх API платформы.
type Endpoints struct {
	Users   string
	Friends string
	Groups  string
	Badges  string
}

// DefaultEndpoints — публичные адреса Roblox.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Users:   "https://users.roblox.com",
		Friends: "https://friends.roblox.com",
		Groups:  "https://groups.roblox.com",
		Badges:  "https://badges.roblox.com",
	}
}

// Client — HTTP-клиент API платформы.
type Client struct {
	httpClient *http.Client
	endpoints  Endpoints
	logger     *slog.Logger
}

// New создаёт клиент.
// timeout — таймаут каждого запроса (RV_API_TIMEOUT).
func New(endpoints Endpoints, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		endpoints: Endpoints{
			Users:   normalizeURL(endpoints.Users),
			Friends: normalizeURL(endpoints.Friends),
			Groups:  normalizeURL(endpoints.Groups),
			Badges:  normalizeURL(endpoints.Badges),
		},
		logger: logger.With(slog.String("component", "platform_client")),
	}
}

// Endpoints возвращает нормализованные базовые URL (для проверок здоровья).
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// ResolveUserID ищет ID пользователя по логину.
// POST {users}/v1/usernames/users. Пустой ответ — ErrNotFound.
func (c *Client) ResolveUserID(ctx context.Context, username string) (int64, error) {
	payload, err := json.Marshal(struct {
		Usernames          []string `json:"usernames"`
		ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
	}{Usernames: []string{username}})
	if err != nil {
		return 0, fmt.Errorf("кодирование запроса ResolveUserID: %w", err)
	}

	var resp struct {
		Data []struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	reqURL := c.endpoints.Users + "/v1/usernames/users"
	if err := c.doJSON(ctx, EndpointResolve, http.MethodPost, reqURL, payload, &resp); err != nil {
		return 0, err
	}

	if len(resp.Data) == 0 || resp.Data[0].ID == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, username)
	}
	return resp.Data[0].ID, nil
}

// Profile загружает профиль пользователя.
// GET {users}/v1/users/{id}.
func (c *Client) Profile(ctx context.Context, userID int64) (model.Profile, error) {
	var resp struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		Created     string `json:"created"`
	}
	reqURL := fmt.Sprintf("%s/v1/users/%d", c.endpoints.Users, userID)
	if err := c.doJSON(ctx, EndpointProfile, http.MethodGet, reqURL, nil, &resp); err != nil {
		return model.Profile{}, err
	}

	return model.Profile{
		UserID:      userID,
		Username:    resp.Name,
		DisplayName: resp.DisplayName,
		Created:     resp.Created,
	}, nil
}

// FriendCount возвращает число друзей.
// GET {friends}/v1/users/{id}/friends/count.
func (c *Client) FriendCount(ctx context.Context, userID int64) (int, error) {
	var resp struct {
		Count *int `json:"count"`
	}
	reqURL := fmt.Sprintf("%s/v1/users/%d/friends/count", c.endpoints.Friends, userID)
	if err := c.doJSON(ctx, EndpointFriends, http.MethodGet, reqURL, nil, &resp); err != nil {
		return 0, err
	}
	if resp.Count == nil {
		return 0, fmt.Errorf("ответ friends/count без поля count")
	}
	return *resp.Count, nil
}

// Groups возвращает членства пользователя в группах.
// GET {groups}/v1/users/{id}/groups/roles.
func (c *Client) Groups(ctx context.Context, userID int64) ([]model.GroupMembership, error) {
	var resp struct {
		Data []struct {
			Group struct {
				ID    int64  `json:"id"`
				Name  string `json:"name"`
				Owner *struct {
					UserID int64 `json:"userId"`
				} `json:"owner"`
			} `json:"group"`
			Role struct {
				Name string `json:"name"`
			} `json:"role"`
		} `json:"data"`
	}
	reqURL := fmt.Sprintf("%s/v1/users/%d/groups/roles", c.endpoints.Groups, userID)
	if err := c.doJSON(ctx, EndpointGroups, http.MethodGet, reqURL, nil, &resp); err != nil {
		return nil, err
	}

	groups := make([]model.GroupMembership, 0, len(resp.Data))
	for _, d := range resp.Data {
		g := model.GroupMembership{
			GroupID:   d.Group.ID,
			GroupName: d.Group.Name,
			RoleName:  d.Role.Name,
		}
		if d.Group.Owner != nil {
			owner := d.Group.Owner.UserID
			g.OwnerUserID = &owner
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// BadgePage загружает одну страницу бейджей.
// GET {badges}/v1/users/{id}/badges?limit=&sortOrder=[&cursor=].
func (c *Client) BadgePage(ctx context.Context, userID int64, limit int, order SortOrder, cursor string) (BadgePage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sortOrder", string(order))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var resp struct {
		Data []struct {
			ID          int64   `json:"id"`
			Name        string  `json:"name"`
			AwardedDate *string `json:"awardedDate"`
		} `json:"data"`
		NextPageCursor *string `json:"nextPageCursor"`
	}
	reqURL := fmt.Sprintf("%s/v1/users/%d/badges?%s", c.endpoints.Badges, userID, q.Encode())
	if err := c.doJSON(ctx, EndpointBadges, http.MethodGet, reqURL, nil, &resp); err != nil {
		return BadgePage{}, err
	}

	page := BadgePage{Items: make([]model.Badge, 0, len(resp.Data))}
	for _, d := range resp.Data {
		b := model.Badge{BadgeID: d.ID, Name: d.Name}
		if d.AwardedDate != nil {
			if ts, err := time.Parse(time.RFC3339, *d.AwardedDate); err == nil {
				b.AwardedAt = &ts
			}
		}
		page.Items = append(page.Items, b)
	}
	if resp.NextPageCursor != nil {
		page.NextCursor = *resp.NextPageCursor
	}
	return page, nil
}

// doJSON выполняет запрос и декодирует JSON-ответ в out.
// 404 — ErrNotFound, иной не-200 статус — ошибка с телом ответа.
func (c *Client) doJSON(ctx context.Context, endpoint, method, reqURL string, body []byte, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("создание запроса %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("запрос %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		requestsTotal.WithLabelValues(endpoint, "not_found").Inc()
		return fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		requestsTotal.WithLabelValues(endpoint, "error").Inc()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Debug("Неуспешный ответ платформы",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%s вернул статус %d: %s", endpoint, resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		requestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("декодирование ответа %s: %w", endpoint, err)
	}

	requestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
