package lark

import (
	"context"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

// Config holds Lark app credentials
type Config struct {
	AppID     string
	AppSecret string
	BaseURL   string
}

// SDKClient owns the Lark SDK client and its cached tenant token
type SDKClient struct {
	client *lark.Client
}

// NewSDKClient builds a client that caches tenant tokens and logs through zap
func NewSDKClient(cfg Config, logger *zap.Logger) *SDKClient {
	opts := []lark.ClientOptionFunc{
		lark.WithEnableTokenCache(true),
		lark.WithLogger(sdkLogger{logger.Named("lark").Sugar()}),
		lark.WithLogLevel(larkcore.LogLevelInfo),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	return &SDKClient{client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...)}
}

// GetClient returns the underlying Lark SDK client
func (c *SDKClient) GetClient() *lark.Client {
	return c.client
}

// sdkLogger adapts zap to larkcore.Logger
type sdkLogger struct {
	s *zap.SugaredLogger
}

func (l sdkLogger) Debug(_ context.Context, args ...interface{}) { l.s.Debug(args...) }
func (l sdkLogger) Info(_ context.Context, args ...interface{})  { l.s.Info(args...) }
func (l sdkLogger) Warn(_ context.Context, args ...interface{})  { l.s.Warn(args...) }
func (l sdkLogger) Error(_ context.Context, args ...interface{}) { l.s.Error(args...) }

var _ larkcore.Logger = sdkLogger{}
