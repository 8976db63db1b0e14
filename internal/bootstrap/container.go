package bootstrap

import (
	"context"
	"fmt"

	"repoinsight/internal/config"
	"repoinsight/internal/handler"
	"repoinsight/internal/pkg/logger"
	"repoinsight/internal/repository/contract"
	"repoinsight/internal/repository/implementation"
	"repoinsight/internal/repository/memory"
	"repoinsight/internal/repository/sqlite"
	"repoinsight/internal/service"
	"repoinsight/internal/websocket"
	"repoinsight/pkg/backend"
	"repoinsight/pkg/database"
	"repoinsight/pkg/llm"
	"repoinsight/pkg/llm/factory"
	pktNats "repoinsight/pkg/nats"
	"repoinsight/pkg/rag/response"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	Config *config.Config
	Logger logger.ILogger

	Store       contract.SessionStore
	ChatService service.IRepoQAService
	ChatHandler *handler.ChatHandler

	// Background Services (started by Start)
	DeliveryService service.IDeliveryService
	InboundService  *service.InboundService // nil without NATS
	WebSocketHub    *websocket.Hub

	pubSub  *gochannel.GoChannel
	nats    *pktNats.Conn
	natsSub *pktNats.Subscriber
	rdb     *redis.Client
	cancel  context.CancelFunc
}

// NewContainer wires the whole service. NATS and redis are optional: an
// empty URL (or an unreachable server) leaves that integration off.
func NewContainer(cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	// 1. Persistence
	store, err := NewSessionStore(cfg, sysLogger)
	if err != nil {
		return nil, err
	}

	// 2. Event Bus (in-process outbound topic)
	pubSub := service.NewOutboundBus()

	// 3. Infrastructure
	var (
		natsConn  *pktNats.Conn
		natsSub   *pktNats.Subscriber
		publisher service.EventPublisher
	)
	if cfg.App.NatsURL != "" {
		natsConn, err = pktNats.Connect(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS, event bus disabled", map[string]interface{}{"error": err})
		} else {
			publisher = pktNats.NewPublisher(natsConn)
			natsSub = pktNats.NewSubscriber(natsConn)
		}
	}

	rdb := newRedis(cfg.App.RedisURL, sysLogger)

	// 4. Services
	llmProvider, err := factory.NewLLMProvider(
		cfg.Generator.Provider,
		cfg.Generator.Model,
		cfg.Generator.BaseURL,
		cfg.Generator.APIKey,
	)
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}
	if llmProvider != nil {
		sysLogger.Info("Bootstrap", "Answer generator enabled", map[string]interface{}{"provider": cfg.Generator.Provider, "model": cfg.Generator.Model})
	}
	generator := response.NewGenerator(llmProvider, sysLogger,
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
	)

	api := backend.NewClient(cfg.Backend.APIBaseURL, cfg.Backend.RequestTimeout)
	outbox := service.NewOutboxService(pubSub, service.OutboundTopic)

	chatService := service.NewRepoQAService(cfg, api, store, outbox, publisher, generator, sysLogger)

	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	wsHub := websocket.NewHub(rdb, chatService.HandleMessage, wsLogger)

	deliveryService := service.NewDeliveryService(pubSub, service.OutboundTopic, wsHub, publisher, sysLogger)

	var inbound *service.InboundService
	if natsSub != nil {
		inbound = service.NewInboundService(natsSub, cfg.App.InboundSubject, chatService, sysLogger)
	}

	return &Container{
		Config:          cfg,
		Logger:          sysLogger,
		Store:           store,
		ChatService:     chatService,
		ChatHandler:     handler.NewChatHandler(chatService, wsHub, cfg.App.JWTSecret, wsLogger),
		DeliveryService: deliveryService,
		InboundService:  inbound,
		WebSocketHub:    wsHub,
		pubSub:          pubSub,
		nats:            natsConn,
		natsSub:         natsSub,
		rdb:             rdb,
	}, nil
}

// NewSessionStore opens the store selected by cfg.Store.Driver.
func NewSessionStore(cfg *config.Config, log logger.ILogger) (contract.SessionStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.NewSessionStore(0), nil
	case "sqlite", "":
		store, err := sqlite.Open(cfg.Store.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case "postgres":
		db, err := database.NewGormDBFromDSN(cfg.Store.DSN, !cfg.IsProduction())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := implementation.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate session tables: %w", err)
		}
		return implementation.NewSessionStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newRedis(url string, log logger.ILogger) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warn("Bootstrap", "Failed to connect to Redis, single-instance delivery", map[string]interface{}{"error": err})
		rdb.Close()
		return nil
	}
	return rdb
}

// Start runs the background workers and reconciles tasks left pending by a
// previous run.
func (c *Container) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.WebSocketHub.Run(ctx)

	if err := c.DeliveryService.Consume(ctx); err != nil {
		return fmt.Errorf("start delivery: %w", err)
	}

	if c.InboundService != nil {
		if err := c.InboundService.Start(ctx); err != nil {
			c.Logger.Error("Bootstrap", "Failed to start inbound subscriber", map[string]interface{}{"error": err})
		}
	}

	go c.ChatService.RestorePendingTasks(ctx)
	return nil
}

// Close stops intake first, then lets the sessions drain their replies
// before the transports go away.
func (c *Container) Close() {
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	c.ChatService.Close()

	if err := c.pubSub.Close(); err != nil {
		c.Logger.Warn("Bootstrap", "Failed to close event bus", map[string]interface{}{"error": err})
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.nats != nil {
		c.nats.Close()
	}
	if c.rdb != nil {
		c.rdb.Close()
	}
	if err := c.Store.Close(); err != nil {
		c.Logger.Warn("Bootstrap", "Failed to close session store", map[string]interface{}{"error": err})
	}
}
