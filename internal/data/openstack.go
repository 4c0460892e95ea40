package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"project-billing/internal/biz"
	"project-billing/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	defaultOpenstackTimeout = 15 * time.Second
	authTokenHeader         = "X-Auth-Token"
)

// restClient 基于 kratos HTTP 客户端的 JSON REST 客户端
// kratos 客户端只保留 endpoint 的 host 部分，base 保存路径前缀（如 /v2.0）。
type restClient struct {
	client *http.Client
	base   string
}

func newRESTClient(rawURL string, timeout time.Duration) (*restClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing host", rawURL)
	}
	client, err := http.NewClient(
		context.Background(),
		http.WithEndpoint(u.Scheme+"://"+u.Host),
		http.WithTimeout(timeout),
		http.WithMiddleware(
			recovery.Recovery(),
			authToken(),
		),
		http.WithResponseDecoder(decodeJSONResponse),
	)
	if err != nil {
		return nil, err
	}
	return &restClient{client: client, base: strings.TrimRight(u.Path, "/")}, nil
}

func (c *restClient) invoke(ctx context.Context, method, path string, in, out interface{}) error {
	return c.client.Invoke(ctx, method, c.base+path, in, out)
}

func (c *restClient) close() error {
	return c.client.Close()
}

type tokenKey struct{}

func withToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// authToken 请求头写入 X-Auth-Token（显式 token 优先，其次是 context 中的管理员凭据）
func authToken() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			token, _ := ctx.Value(tokenKey{}).(string)
			if token == "" {
				if cred, ok := biz.CredentialFromContext(ctx); ok {
					token = cred.Token
				}
			}
			if tr, ok := transport.FromClientContext(ctx); ok && token != "" {
				tr.RequestHeader().Set(authTokenHeader, token)
			}
			return handler(ctx, req)
		}
	}
}

// decodeJSONResponse 空响应体（204 / DELETE）不解码
func decodeJSONResponse(_ context.Context, res *nethttp.Response, v interface{}) error {
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if v == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// OpenstackClient keystone v2 客户端（认证 + 管理接口）
type OpenstackClient struct {
	auth    *restClient
	admin   *restClient
	conf    *conf.Openstack
	timeout time.Duration
	log     *log.Helper
}

// NewOpenstackClient 创建 keystone 客户端
func NewOpenstackClient(c *conf.Bootstrap, logger log.Logger) (*OpenstackClient, func(), error) {
	if c.Openstack == nil {
		return nil, nil, fmt.Errorf("openstack config is nil")
	}
	timeout := c.Openstack.Timeout.AsDuration()
	if timeout <= 0 {
		timeout = defaultOpenstackTimeout
	}
	auth, err := newRESTClient(c.Openstack.AuthUrl, timeout)
	if err != nil {
		return nil, nil, err
	}
	adminURL := c.Openstack.AdminUrl
	if adminURL == "" {
		adminURL = c.Openstack.AuthUrl
	}
	admin, err := newRESTClient(adminURL, timeout)
	if err != nil {
		auth.close()
		return nil, nil, err
	}

	logHelper := log.NewHelper(logger)
	cleanup := func() {
		if err := auth.close(); err != nil {
			logHelper.Warnf("failed to close keystone client: %v", err)
		}
		if err := admin.close(); err != nil {
			logHelper.Warnf("failed to close keystone admin client: %v", err)
		}
	}
	return &OpenstackClient{
		auth:    auth,
		admin:   admin,
		conf:    c.Openstack,
		timeout: timeout,
		log:     logHelper,
	}, cleanup, nil
}

type keystoneAuthRequest struct {
	Auth keystoneAuth `json:"auth"`
}

type keystoneAuth struct {
	PasswordCredentials keystonePassword `json:"passwordCredentials"`
	TenantID            string           `json:"tenantId,omitempty"`
}

type keystonePassword struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type keystoneAccess struct {
	Access struct {
		Token struct {
			ID      string    `json:"id"`
			Expires time.Time `json:"expires"`
			Tenant  *struct {
				ID string `json:"id"`
			} `json:"tenant"`
		} `json:"token"`
		ServiceCatalog []struct {
			Type      string `json:"type"`
			Name      string `json:"name"`
			Endpoints []struct {
				AdminURL    string `json:"adminURL"`
				InternalURL string `json:"internalURL"`
				PublicURL   string `json:"publicURL"`
			} `json:"endpoints"`
		} `json:"serviceCatalog"`
	} `json:"access"`
}

// computeURL 从服务目录解析 compute 管理地址
func (a *keystoneAccess) computeURL() string {
	for _, svc := range a.Access.ServiceCatalog {
		if svc.Type != "compute" || len(svc.Endpoints) == 0 {
			continue
		}
		ep := svc.Endpoints[0]
		switch {
		case ep.AdminURL != "":
			return ep.AdminURL
		case ep.InternalURL != "":
			return ep.InternalURL
		default:
			return ep.PublicURL
		}
	}
	return ""
}

// createToken POST /tokens
func (c *OpenstackClient) createToken(ctx context.Context, tenantID string) (*keystoneAccess, error) {
	req := &keystoneAuthRequest{
		Auth: keystoneAuth{
			PasswordCredentials: keystonePassword{
				Username: c.conf.AdminUser,
				Password: c.conf.AdminPassword,
			},
			TenantID: tenantID,
		},
	}
	var reply keystoneAccess
	if err := c.auth.invoke(ctx, nethttp.MethodPost, "/tokens", req, &reply); err != nil {
		return nil, err
	}
	if reply.Access.Token.ID == "" {
		return nil, fmt.Errorf("keystone returned an empty token")
	}
	return &reply, nil
}

// tenantsForToken GET /tenants
func (c *OpenstackClient) tenantsForToken(ctx context.Context, token string) ([]string, error) {
	var reply struct {
		Tenants []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"tenants"`
	}
	if err := c.auth.invoke(withToken(ctx, token), nethttp.MethodGet, "/tenants", nil, &reply); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(reply.Tenants))
	for _, t := range reply.Tenants {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// NewAdminCredential 启动时获取一次管理员凭据：无作用域 token -> 第一个租户 -> 租户作用域 token
func NewAdminCredential(c *OpenstackClient) (*biz.AdminCredential, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*c.timeout)
	defer cancel()

	unscoped, err := c.createToken(ctx, "")
	if err != nil {
		return nil, biz.ExternalUnavailable(err, "create unscoped admin token")
	}
	tenants, err := c.tenantsForToken(ctx, unscoped.Access.Token.ID)
	if err != nil {
		return nil, biz.ExternalUnavailable(err, "list tenants for admin token")
	}
	if len(tenants) == 0 {
		return nil, biz.ExternalUnavailable(nil, "admin user %s has no tenant", c.conf.AdminUser)
	}
	scoped, err := c.createToken(ctx, tenants[0])
	if err != nil {
		return nil, biz.ExternalUnavailable(err, "create scoped admin token")
	}
	computeURL := scoped.computeURL()
	if computeURL == "" {
		return nil, biz.ExternalUnavailable(nil, "compute endpoint not found in service catalog")
	}

	c.log.Infof("admin credential created: user=%s, tenant=%s, expires=%s",
		c.conf.AdminUser, tenants[0], scoped.Access.Token.Expires.Format(time.RFC3339))
	return &biz.AdminCredential{
		Username:   c.conf.AdminUser,
		TenantID:   tenants[0],
		Token:      scoped.Access.Token.ID,
		ExpiresAt:  scoped.Access.Token.Expires,
		ComputeURL: computeURL,
	}, nil
}

// quotaActuator nova 配额 / 实例操作（token 取自 context 中的管理员凭据）
type quotaActuator struct {
	keystone *OpenstackClient
	compute  *restClient
	log      *log.Helper
}

// NewQuotaActuator 创建配额执行器
func NewQuotaActuator(keystone *OpenstackClient, cred *biz.AdminCredential, logger log.Logger) (biz.QuotaActuator, func(), error) {
	compute, err := newRESTClient(cred.ComputeURL, keystone.timeout)
	if err != nil {
		return nil, nil, err
	}
	logHelper := log.NewHelper(logger)
	cleanup := func() {
		if err := compute.close(); err != nil {
			logHelper.Warnf("failed to close compute client: %v", err)
		}
	}
	return &quotaActuator{
		keystone: keystone,
		compute:  compute,
		log:      logHelper,
	}, cleanup, nil
}

type novaQuotaSet struct {
	QuotaSet struct {
		Cores int64 `json:"cores"`
		RAM   int64 `json:"ram"`
	} `json:"quota_set"`
}

func quotaPath(projectID, userID string) string {
	path := "/os-quota-sets/" + url.PathEscape(projectID)
	if userID != "" {
		path += "?user_id=" + url.QueryEscape(userID)
	}
	return path
}

func requireCredential(ctx context.Context) error {
	if _, ok := biz.CredentialFromContext(ctx); !ok {
		return fmt.Errorf("admin credential missing from context")
	}
	return nil
}

// ListProjectUsers GET /tenants/{project}/users（keystone 管理接口）
func (a *quotaActuator) ListProjectUsers(ctx context.Context, projectID string) ([]string, error) {
	if err := requireCredential(ctx); err != nil {
		return nil, err
	}
	var reply struct {
		Users []struct {
			ID string `json:"id"`
		} `json:"users"`
	}
	if err := a.keystone.admin.invoke(ctx, nethttp.MethodGet, "/tenants/"+url.PathEscape(projectID)+"/users", nil, &reply); err != nil {
		return nil, err
	}
	users := make([]string, 0, len(reply.Users))
	for _, u := range reply.Users {
		users = append(users, u.ID)
	}
	return users, nil
}

func (a *quotaActuator) getQuota(ctx context.Context, projectID, userID string) (*biz.Quota, error) {
	if err := requireCredential(ctx); err != nil {
		return nil, err
	}
	var reply novaQuotaSet
	if err := a.compute.invoke(ctx, nethttp.MethodGet, quotaPath(projectID, userID), nil, &reply); err != nil {
		return nil, err
	}
	return &biz.Quota{Cores: reply.QuotaSet.Cores, RAM: reply.QuotaSet.RAM}, nil
}

func (a *quotaActuator) setQuota(ctx context.Context, projectID, userID string, quota biz.Quota) error {
	if err := requireCredential(ctx); err != nil {
		return err
	}
	var req novaQuotaSet
	req.QuotaSet.Cores = quota.Cores
	req.QuotaSet.RAM = quota.RAM
	return a.compute.invoke(ctx, nethttp.MethodPut, quotaPath(projectID, userID), &req, nil)
}

// GetUserQuota GET /os-quota-sets/{project}?user_id={user}
func (a *quotaActuator) GetUserQuota(ctx context.Context, projectID, userID string) (*biz.Quota, error) {
	return a.getQuota(ctx, projectID, userID)
}

// SetUserQuota PUT /os-quota-sets/{project}?user_id={user}
func (a *quotaActuator) SetUserQuota(ctx context.Context, projectID, userID string, quota biz.Quota) error {
	return a.setQuota(ctx, projectID, userID, quota)
}

// GetProjectQuota GET /os-quota-sets/{project}
func (a *quotaActuator) GetProjectQuota(ctx context.Context, projectID string) (*biz.Quota, error) {
	return a.getQuota(ctx, projectID, "")
}

// SetProjectQuota PUT /os-quota-sets/{project}
func (a *quotaActuator) SetProjectQuota(ctx context.Context, projectID string, quota biz.Quota) error {
	return a.setQuota(ctx, projectID, "", quota)
}

// ListInstances GET /servers/detail?all_tenants=True&project_id={project}
func (a *quotaActuator) ListInstances(ctx context.Context, projectID string) ([]*biz.Instance, error) {
	if err := requireCredential(ctx); err != nil {
		return nil, err
	}
	var reply struct {
		Servers []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Status string `json:"status"`
			UserID string `json:"user_id"`
		} `json:"servers"`
	}
	path := "/servers/detail?all_tenants=True&project_id=" + url.QueryEscape(projectID)
	if err := a.compute.invoke(ctx, nethttp.MethodGet, path, nil, &reply); err != nil {
		return nil, err
	}
	instances := make([]*biz.Instance, 0, len(reply.Servers))
	for _, s := range reply.Servers {
		instances = append(instances, &biz.Instance{ID: s.ID, Name: s.Name, Status: s.Status, UserID: s.UserID})
	}
	return instances, nil
}

// DeleteInstance DELETE /servers/{id}
func (a *quotaActuator) DeleteInstance(ctx context.Context, instanceID string) error {
	if err := requireCredential(ctx); err != nil {
		return err
	}
	return a.compute.invoke(ctx, nethttp.MethodDelete, "/servers/"+url.PathEscape(instanceID), nil, nil)
}
