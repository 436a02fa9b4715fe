package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	refreshLocker     RefreshLocker
	backoffScheduler  BackoffScheduler
	signer            RequestSigner
	transport         TransportAdapter
	rateLimitPolicy   RateLimitPolicy
	registry          StreamRegistry
	credentialStore   CredentialStore
	stateStore        StateStore
	syncRunStore      SyncRunStore
	tokenIssuer       TokenIssuer
	tokenSource       TokenSource
	tokenCodec        TokenCodec
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRefreshLocker(locker RefreshLocker) Option {
	return func(b *serviceBuilder) {
		b.refreshLocker = locker
	}
}

func WithBackoffScheduler(scheduler BackoffScheduler) Option {
	return func(b *serviceBuilder) {
		b.backoffScheduler = scheduler
	}
}

func WithRequestSigner(signer RequestSigner) Option {
	return func(b *serviceBuilder) {
		b.signer = signer
	}
}

func WithTransportAdapter(adapter TransportAdapter) Option {
	return func(b *serviceBuilder) {
		b.transport = adapter
	}
}

func WithRateLimitPolicy(policy RateLimitPolicy) Option {
	return func(b *serviceBuilder) {
		b.rateLimitPolicy = policy
	}
}

func WithStreamRegistry(registry StreamRegistry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

func WithStateStore(store StateStore) Option {
	return func(b *serviceBuilder) {
		b.stateStore = store
	}
}

func WithSyncRunStore(store SyncRunStore) Option {
	return func(b *serviceBuilder) {
		b.syncRunStore = store
	}
}

func WithTokenIssuer(issuer TokenIssuer) Option {
	return func(b *serviceBuilder) {
		b.tokenIssuer = issuer
	}
}

func WithTokenSource(source TokenSource) Option {
	return func(b *serviceBuilder) {
		b.tokenSource = source
	}
}

func WithTokenCodec(codec TokenCodec) Option {
	return func(b *serviceBuilder) {
		b.tokenCodec = codec
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("vendit", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		registry:        NewStreamCatalog(),
		tokenCodec:      JSONTokenCodec{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	api := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.API.BaseURL) != "" {
		api["base_url"] = cfg.API.BaseURL
	}
	if includeZero || cfg.API.Timeout > 0 {
		api["timeout"] = cfg.API.Timeout
	}
	if includeZero || strings.TrimSpace(cfg.API.UserAgent) != "" {
		api["user_agent"] = cfg.API.UserAgent
	}
	if len(api) > 0 {
		layer["api"] = api
	}

	auth := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Auth.TokenURL) != "" {
		auth["token_url"] = cfg.Auth.TokenURL
	}
	if includeZero || strings.TrimSpace(cfg.Auth.APIKey) != "" {
		auth["api_key"] = cfg.Auth.APIKey
	}
	if includeZero || strings.TrimSpace(cfg.Auth.Username) != "" {
		auth["username"] = cfg.Auth.Username
	}
	if includeZero || strings.TrimSpace(cfg.Auth.Password) != "" {
		auth["password"] = cfg.Auth.Password
	}
	if includeZero || cfg.Auth.TokenMargin > 0 {
		auth["token_margin"] = cfg.Auth.TokenMargin
	}
	if includeZero || cfg.Auth.MaxAttempts > 0 {
		auth["max_attempts"] = cfg.Auth.MaxAttempts
	}
	if includeZero || cfg.Auth.InitialBackoff > 0 {
		auth["initial_backoff"] = cfg.Auth.InitialBackoff
	}
	if includeZero || cfg.Auth.MaxBackoff > 0 {
		auth["max_backoff"] = cfg.Auth.MaxBackoff
	}
	if len(auth) > 0 {
		layer["auth"] = auth
	}

	syncLayer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Sync.StartDate) != "" {
		syncLayer["start_date"] = cfg.Sync.StartDate
	}
	if includeZero || cfg.Sync.PageSize > 0 {
		syncLayer["page_size"] = cfg.Sync.PageSize
	}
	if includeZero || cfg.Sync.MaxAttempts > 0 {
		syncLayer["max_attempts"] = cfg.Sync.MaxAttempts
	}
	if len(syncLayer) > 0 {
		layer["sync"] = syncLayer
	}

	if includeZero || strings.TrimSpace(cfg.State.Path) != "" {
		layer["state"] = map[string]any{
			"path": cfg.State.Path,
		}
	}
	return layer
}
