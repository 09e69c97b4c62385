package blacklist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
)

// maxBodyBytes — предел размера загружаемого списка.
const maxBodyBytes = 8 << 20

// maxRedirects — предел числа переходов по редиректам.
const maxRedirects = 5

// ErrUntrustedURL — URL дополнительного списка указывает не на доверенный хост.
// Возвращается до какого-либо сетевого обращения.
var ErrUntrustedURL = errors.New("URL чёрного списка не относится к доверенному хосту")

// Source — источник текста дополнительного списка.
type Source interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Fetcher — HTTP-загрузчик дополнительного чёрного списка (CSV-экспорт таблицы).
// Запросы разрешены только к одному доверенному хосту: иначе загрузчик
// можно было бы использовать для опроса произвольных внутренних адресов.
type Fetcher struct {
	httpClient      *http.Client
	trustedHost     string
	redirectDomains []string
	allowHTTP       bool
	logger          *slog.Logger
}

// NewFetcher создаёт загрузчик.
// trustedHost — единственный допустимый хост исходного URL (без порта, без учёта регистра).
// redirectDomains — домены, на которые разрешены редиректы (сам домен и его поддомены);
// CSV-экспорт таблиц отдаётся через редирект на googleusercontent.com.
// allowHTTP — разрешить схему http (только для dev/тестов).
func NewFetcher(
	trustedHost string,
	redirectDomains []string,
	allowHTTP bool,
	timeout time.Duration,
	logger *slog.Logger,
) *Fetcher {
	f := &Fetcher{
		trustedHost: strings.ToLower(strings.TrimSpace(trustedHost)),
		allowHTTP:   allowHTTP,
		logger:      logger.With(slog.String("component", "blacklist_fetcher")),
	}
	for _, d := range redirectDomains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			f.redirectDomains = append(f.redirectDomains, d)
		}
	}
	f.httpClient = &http.Client{
		Timeout:       timeout,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// checkRedirect пропускает каждый переход через ту же проверку схемы и
// учётных данных, а хост сверяет с доверенным хостом или доменами редиректа.
// Ошибка останавливает клиент до запроса к следующему хосту.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: слишком много редиректов", ErrUntrustedURL)
	}
	if _, err := f.validate(req.URL.String(), true); err != nil {
		f.logger.Warn("Редирект чёрного списка отклонён",
			slog.String("location", req.URL.Redacted()),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// ValidateURL проверяет схему и хост URL без обращения к сети.
func (f *Fetcher) ValidateURL(rawURL string) (*url.URL, error) {
	return f.validate(rawURL, false)
}

// validate — общая проверка исходного URL и целей редиректа.
// redirect разрешает, помимо доверенного хоста, домены редиректа.
func (f *Fetcher) validate(rawURL string, redirect bool) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUntrustedURL, err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !f.allowHTTP {
			return nil, fmt.Errorf("%w: схема http запрещена", ErrUntrustedURL)
		}
	default:
		return nil, fmt.Errorf("%w: недопустимая схема %q", ErrUntrustedURL, u.Scheme)
	}

	if u.User != nil {
		return nil, fmt.Errorf("%w: учётные данные в URL запрещены", ErrUntrustedURL)
	}

	host := strings.ToLower(u.Hostname())
	if f.trustedHost != "" && host == f.trustedHost {
		return u, nil
	}
	if redirect && f.isRedirectHost(host) {
		return u, nil
	}
	return nil, fmt.Errorf("%w: хост %q", ErrUntrustedURL, host)
}

// isRedirectHost — хост совпадает с доменом редиректа или является его поддоменом.
func (f *Fetcher) isRedirectHost(host string) bool {
	for _, d := range f.redirectDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Fetch загружает текст списка. Одна попытка, без повторов.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := f.ValidateURL(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("создание запроса чёрного списка: %w", err)
	}

	resp, err := f.httpClient.Do(req) //nolint:gosec // G107: хост проверен ValidateURL, редиректы — checkRedirect
	if err != nil {
		return "", fmt.Errorf("запрос чёрного списка к %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("источник чёрного списка %s вернул статус %d", u.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("чтение чёрного списка: %w", err)
	}
	return string(body), nil
}

// Resolve строит объединённый список прогона.
// rawURL пустой — OutcomeNotRequested. Ошибки источника не прерывают прогон:
// результат откатывается к статическому списку, ошибка возвращается только для логирования.
func Resolve(ctx context.Context, src Source, static model.IDSet, rawURL string) (Merged, error) {
	if strings.TrimSpace(rawURL) == "" || src == nil {
		return Static(static, OutcomeNotRequested), nil
	}

	text, err := src.Fetch(ctx, rawURL)
	if err != nil {
		if errors.Is(err, ErrUntrustedURL) {
			return Static(static, OutcomeRejected), err
		}
		return Static(static, OutcomeUnavailable), err
	}

	return Merge(static, ParseIDs(text)), nil
}
