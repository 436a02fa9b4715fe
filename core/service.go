package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the assembled Vendit extraction client: credential and state
// storage, token lifecycle, the authenticated request executor, and the
// stream catalog behind one wiring surface.
type Service struct {
	config            Config
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
	executor          RequestExecutor
}

// ServiceDependencies is a read only snapshot of the wired collaborators,
// used by satellite packages and tests to reuse the same stack.
type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	RefreshLocker     RefreshLocker
	BackoffScheduler  BackoffScheduler
	Signer            RequestSigner
	Transport         TransportAdapter
	RateLimitPolicy   RateLimitPolicy
	Registry          StreamRegistry
	CredentialStore   CredentialStore
	StateStore        StateStore
	SyncRunStore      SyncRunStore
	TokenIssuer       TokenIssuer
	TokenSource       TokenSource
	TokenCodec        TokenCodec
	Executor          RequestExecutor
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("vendit", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("vendit"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewStreamCatalog()
	}
	if builder.refreshLocker == nil {
		builder.refreshLocker = NewMemoryRefreshLocker()
	}
	if builder.backoffScheduler == nil {
		builder.backoffScheduler = ExponentialBackoffScheduler{
			Initial: DefaultInitialBackoff,
			Max:     DefaultMaxBackoff,
		}
	}
	if builder.signer == nil {
		builder.signer = VenditHeaderSigner{}
	}
	if builder.tokenCodec == nil {
		builder.tokenCodec = JSONTokenCodec{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.stateStore == nil || builder.syncRunStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				if builder.stateStore == nil {
					builder.stateStore = storeProvider.StateStore()
				}
				if builder.syncRunStore == nil {
					builder.syncRunStore = storeProvider.SyncRunStore()
				}
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StateStoreProvider); ok {
			if builder.stateStore == nil {
				builder.stateStore = storeProvider.StateStore()
			}
			if builder.syncRunStore == nil {
				builder.syncRunStore = storeProvider.SyncRunStore()
			}
		}
	}
	if builder.stateStore == nil {
		builder.stateStore = NewMemoryStateStore()
	}
	if builder.credentialStore == nil {
		memory := NewMemoryCredentialStore()
		if creds := finalConfig.Credentials(); creds.Validate() == nil {
			if seedErr := memory.PutCredentials(context.Background(), creds); seedErr != nil {
				return nil, mapBuildError(builder.errorMapper, seedErr)
			}
		}
		builder.credentialStore = memory
	}

	if builder.tokenSource == nil && builder.tokenIssuer != nil {
		manager, buildErr := NewTokenManager(
			builder.tokenIssuer,
			builder.credentialStore,
			builder.stateStore,
			WithTokenManagerLogger(logger),
			WithTokenManagerMetrics(builder.metricsRecorder),
			WithTokenManagerLocker(builder.refreshLocker),
			WithTokenManagerScheduler(builder.backoffScheduler),
			WithTokenManagerMargin(finalConfig.Auth.TokenMargin),
			WithTokenManagerMaxAttempts(finalConfig.Auth.MaxAttempts),
		)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		builder.tokenSource = manager
	}

	var executor RequestExecutor
	if builder.transport != nil && builder.tokenSource != nil {
		built, buildErr := NewExecutor(ExecutorConfig{
			BaseURL:     finalConfig.API.BaseURL,
			Timeout:     finalConfig.API.Timeout,
			UserAgent:   finalConfig.API.UserAgent,
			MaxAttempts: finalConfig.Sync.MaxAttempts,
			Tokens:      builder.tokenSource,
			Credentials: builder.credentialStore,
			Signer:      builder.signer,
			Transport:   builder.transport,
			RateLimit:   builder.rateLimitPolicy,
			Scheduler:   builder.backoffScheduler,
			Logger:      logger,
			Metrics:     builder.metricsRecorder,
		})
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		executor = built
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		refreshLocker:     builder.refreshLocker,
		backoffScheduler:  builder.backoffScheduler,
		signer:            builder.signer,
		transport:         builder.transport,
		rateLimitPolicy:   builder.rateLimitPolicy,
		registry:          builder.registry,
		credentialStore:   builder.credentialStore,
		stateStore:        builder.stateStore,
		syncRunStore:      builder.syncRunStore,
		tokenIssuer:       builder.tokenIssuer,
		tokenSource:       builder.tokenSource,
		tokenCodec:        builder.tokenCodec,
		executor:          executor,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		RefreshLocker:     s.refreshLocker,
		BackoffScheduler:  s.backoffScheduler,
		Signer:            s.signer,
		Transport:         s.transport,
		RateLimitPolicy:   s.rateLimitPolicy,
		Registry:          s.registry,
		CredentialStore:   s.credentialStore,
		StateStore:        s.stateStore,
		SyncRunStore:      s.syncRunStore,
		TokenIssuer:       s.tokenIssuer,
		TokenSource:       s.tokenSource,
		TokenCodec:        s.tokenCodec,
		Executor:          s.executor,
	}
}

// Executor exposes the authenticated request pipeline for callers that
// page through endpoints directly.
func (s *Service) Executor() RequestExecutor {
	if s == nil {
		return nil
	}
	return s.executor
}

func (s *Service) TokenSource() TokenSource {
	if s == nil {
		return nil
	}
	return s.tokenSource
}

func (s *Service) StateStore() StateStore {
	if s == nil {
		return nil
	}
	return s.stateStore
}

func (s *Service) CredentialStore() CredentialStore {
	if s == nil {
		return nil
	}
	return s.credentialStore
}

func (s *Service) SyncRunStore() SyncRunStore {
	if s == nil {
		return nil
	}
	return s.syncRunStore
}

// Token returns a fresh bearer token, issuing one if the cache is stale.
func (s *Service) Token(ctx context.Context) (token Token, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "token", err, map[string]any{})
	}()

	if s == nil {
		return Token{}, fmt.Errorf("core: service is nil")
	}
	if s.tokenSource == nil {
		err = s.mapError(fmt.Errorf("core: token source is not configured"))
		return Token{}, err
	}
	token, err = s.tokenSource.Token(ctx)
	if err != nil {
		err = s.mapError(err)
		return Token{}, err
	}
	return token, nil
}

// InvalidateToken drops the cached token and its persisted copy.
func (s *Service) InvalidateToken(ctx context.Context) (err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "invalidate_token", err, map[string]any{})
	}()

	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if s.tokenSource == nil {
		err = s.mapError(fmt.Errorf("core: token source is not configured"))
		return err
	}
	if err = s.tokenSource.Invalidate(ctx); err != nil {
		err = s.mapError(err)
	}
	return err
}

// Execute sends one authenticated request through the retrying executor.
func (s *Service) Execute(ctx context.Context, req Request) (response TransportResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"stream": req.Stream,
		"method": req.Method,
		"path":   req.Path,
	}
	defer func() {
		if response.StatusCode != 0 {
			fields["status_code"] = response.StatusCode
		}
		s.observeOperation(ctx, startedAt, "execute", err, fields)
	}()

	if s == nil {
		return TransportResponse{}, fmt.Errorf("core: service is nil")
	}
	if s.executor == nil {
		err = s.mapError(fmt.Errorf("core: request executor is not configured"))
		return TransportResponse{}, err
	}
	response, err = s.executor.Execute(ctx, req)
	if err != nil {
		err = s.mapError(err)
		return response, err
	}
	return response, nil
}

// RegisterStream adds a stream descriptor to the catalog.
func (s *Service) RegisterStream(descriptor StreamDescriptor) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if s.registry == nil {
		return s.mapError(fmt.Errorf("core: stream registry is not configured"))
	}
	if err := s.registry.Register(descriptor); err != nil {
		return s.mapError(err)
	}
	return nil
}

// Streams lists the registered stream descriptors sorted by name.
func (s *Service) Streams() []StreamDescriptor {
	if s == nil || s.registry == nil {
		return nil
	}
	return s.registry.List()
}

// Stream resolves one stream descriptor by name.
func (s *Service) Stream(name string) (StreamDescriptor, error) {
	if s == nil {
		return StreamDescriptor{}, fmt.Errorf("core: service is nil")
	}
	return s.resolveStream(name)
}

func (s *Service) resolveStream(name string) (StreamDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return StreamDescriptor{}, s.mapError(fmt.Errorf("core: stream name is required"))
	}
	if s.registry == nil {
		return StreamDescriptor{}, s.mapError(fmt.Errorf("core: stream registry is not configured"))
	}
	descriptor, ok := s.registry.Get(name)
	if !ok {
		err := goerrors.Wrap(ErrStreamNotFound, goerrors.CategoryNotFound,
			fmt.Sprintf("stream %q is not registered", name)).
			WithTextCode(ServiceErrorStreamNotFound).
			WithMetadata(map[string]any{"stream": name})
		return StreamDescriptor{}, ensureServiceErrorEnvelope(err)
	}
	return descriptor, nil
}

// LoadBookmark returns the persisted bookmark for a stream.
func (s *Service) LoadBookmark(ctx context.Context, stream string) (bookmark Bookmark, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "load_bookmark", err, map[string]any{"stream": stream})
	}()

	if s == nil {
		return Bookmark{}, fmt.Errorf("core: service is nil")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		err = s.mapError(fmt.Errorf("core: stream name is required"))
		return Bookmark{}, err
	}
	if s.stateStore == nil {
		err = s.mapError(fmt.Errorf("core: state store is not configured"))
		return Bookmark{}, err
	}
	bookmark, err = s.stateStore.GetBookmark(ctx, stream)
	if err != nil {
		err = s.mapError(err)
		return Bookmark{}, err
	}
	return bookmark, nil
}

// CommitBookmark persists a bookmark, refusing any write that would move
// the cursor backwards for its kind. ResetBookmark is the only way to
// rewind a stream.
func (s *Service) CommitBookmark(ctx context.Context, bookmark Bookmark) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"stream":      bookmark.Stream,
		"cursor_kind": string(bookmark.Kind),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "commit_bookmark", err, fields)
	}()

	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if err = bookmark.Validate(); err != nil {
		err = s.mapError(err)
		return err
	}
	if s.stateStore == nil {
		err = s.mapError(fmt.Errorf("core: state store is not configured"))
		return err
	}
	if bookmark.UpdatedAt.IsZero() {
		bookmark.UpdatedAt = time.Now().UTC()
	}

	existing, loadErr := s.stateStore.GetBookmark(ctx, strings.TrimSpace(bookmark.Stream))
	if loadErr != nil && !errors.Is(loadErr, ErrBookmarkNotFound) {
		err = s.mapError(loadErr)
		return err
	}
	if loadErr == nil && existing.Kind == bookmark.Kind {
		cmp, cmpErr := compareBookmarkValues(bookmark.Kind, existing.Value, bookmark.Value)
		if cmpErr != nil {
			err = s.mapError(cmpErr)
			return err
		}
		if cmp > 0 {
			conflict := goerrors.Wrap(ErrBookmarkConflict, goerrors.CategoryConflict,
				fmt.Sprintf("bookmark for %s would move backwards from %s to %s",
					bookmark.Stream, existing.Value, bookmark.Value)).
				WithTextCode(ServiceErrorConflict).
				WithMetadata(map[string]any{
					"stream":  bookmark.Stream,
					"current": existing.Value,
					"next":    bookmark.Value,
				})
			err = ensureServiceErrorEnvelope(conflict)
			return err
		}
	}

	if err = s.stateStore.PutBookmark(ctx, bookmark); err != nil {
		err = s.mapError(err)
	}
	return err
}

// ResetBookmark removes the persisted bookmark so the next sync starts
// from the stream's configured default position.
func (s *Service) ResetBookmark(ctx context.Context, stream string) (err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "reset_bookmark", err, map[string]any{"stream": stream})
	}()

	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		err = s.mapError(fmt.Errorf("core: stream name is required"))
		return err
	}
	if s.stateStore == nil {
		err = s.mapError(fmt.Errorf("core: state store is not configured"))
		return err
	}
	if err = s.stateStore.DeleteBookmark(ctx, stream); err != nil {
		err = s.mapError(err)
	}
	return err
}

// compareBookmarkValues orders two canonical cursor values of one kind.
// Numeric kinds compare as integers, timestamp kinds as instants.
func compareBookmarkValues(kind CursorKind, left string, right string) (int, error) {
	left = strings.TrimSpace(left)
	right = strings.TrimSpace(right)

	switch kind {
	case CursorKindID, CursorKindUnix:
		leftNum, err := strconv.ParseInt(left, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("core: cursor value %q is not numeric: %w", left, err)
		}
		rightNum, err := strconv.ParseInt(right, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("core: cursor value %q is not numeric: %w", right, err)
		}
		switch {
		case leftNum < rightNum:
			return -1, nil
		case leftNum > rightNum:
			return 1, nil
		}
		return 0, nil

	case CursorKindTimestamp:
		leftTime, err := ParseCursorTime(left)
		if err != nil {
			return 0, err
		}
		rightTime, err := ParseCursorTime(right)
		if err != nil {
			return 0, err
		}
		switch {
		case leftTime.Before(rightTime):
			return -1, nil
		case leftTime.After(rightTime):
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("core: cursor kind %q is invalid", kind)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
