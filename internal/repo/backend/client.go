// Package backend is the client of the field booking REST API.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/util"
)

type Client interface {
	Login(ctx context.Context, email, password string) (*models.BackendToken, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, query models.UserQuery) (*models.Paginated[models.User], error)
}

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	CacheSize int
}

type tokenKey struct{}

// WithToken attaches the bearer token used for requests made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type client struct {
	http           *resty.Client
	users          *lru.Cache
	log            *logger.Logger
	onUnauthorized func()
}

// NewClient builds the API client. onUnauthorized runs whenever the backend
// rejects the credentials of a request.
func NewClient(cfg Config, onUnauthorized func()) (Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	users, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("init user cache: %w", err)
	}

	c := &client{
		http:           util.NewRestyClient().SetBaseURL(cfg.BaseURL).SetTimeout(cfg.Timeout),
		users:          users,
		log:            logger.MustNamed("backend"),
		onUnauthorized: onUnauthorized,
	}
	c.http.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if token := TokenFrom(r.Context()); token != "" {
			r.SetAuthToken(token)
		}
		return nil
	})
	return c, nil
}

func (c *client) Login(ctx context.Context, email, password string) (*models.BackendToken, error) {
	var out models.Response[models.BackendToken]
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		SetError(&out).
		Post("v1/auth/login")
	if err := c.check(resp, err, out.Success, out.Message); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if out.Data.AccessToken == "" {
		return nil, fmt.Errorf("login: %w: empty access token", models.ErrUnauthorized)
	}
	return &out.Data, nil
}

func (c *client) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty user id", models.ErrInvalidArgument)
	}
	if cached, ok := c.users.Get(id); ok {
		user := cached.(models.User)
		return &user, nil
	}

	var out models.Response[models.User]
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&out).
		Get("v1/users/{id}")
	if err := c.check(resp, err, out.Success, out.Message); err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	c.users.Add(id, out.Data)
	return &out.Data, nil
}

func (c *client) ListUsers(ctx context.Context, query models.UserQuery) (*models.Paginated[models.User], error) {
	if query.PageNumber <= 0 {
		query.PageNumber = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = 10
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("pageNumber", strconv.Itoa(query.PageNumber)).
		SetQueryParam("pageSize", strconv.Itoa(query.PageSize))
	if query.SearchName != "" {
		req.SetQueryParam("searchName", query.SearchName)
	}
	if query.SearchEmail != "" {
		req.SetQueryParam("searchEmail", query.SearchEmail)
	}

	var out models.Paginated[models.User]
	resp, err := req.SetResult(&out).SetError(&out).Get("v1/users")
	if err := c.check(resp, err, out.Success, out.Message); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, u := range out.Data {
		c.users.Add(u.ID, u)
	}
	return &out, nil
}

// check maps transport failures, HTTP statuses and unsuccessful envelopes
// to errors.
func (c *client) check(resp *resty.Response, err error, success bool, message string) error {
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	switch status := resp.StatusCode(); {
	case status == http.StatusUnauthorized:
		c.users.Purge()
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return models.ErrUnauthorized
	case status == http.StatusForbidden:
		return models.ErrForbidden
	case status == http.StatusNotFound:
		return models.ErrNotFound
	case resp.IsError():
		c.log.Warnw("backend request failed", "url", resp.Request.URL, "status", status, "message", message)
		return fmt.Errorf("status %d: %s", status, message)
	}
	if !success {
		return fmt.Errorf("backend: %s", message)
	}
	return nil
}
