// cmd/container.go
//
// Composition root. Owns infrastructure (DB, Redis, file storage, queue
// backend) and wires the job handlers. This is the only place that knows
// about every package.
package main

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/Abraxas-365/remodel/pkg/ai/imagegen"
	"github.com/Abraxas-365/remodel/pkg/ai/providers/aianthropic"
	"github.com/Abraxas-365/remodel/pkg/ai/providers/aibedrock"
	"github.com/Abraxas-365/remodel/pkg/ai/providers/aigemini"
	"github.com/Abraxas-365/remodel/pkg/ai/providers/aiopenai"
	"github.com/Abraxas-365/remodel/pkg/asyncx"
	"github.com/Abraxas-365/remodel/pkg/broadcastx"
	"github.com/Abraxas-365/remodel/pkg/broadcastx/bxredis"
	"github.com/Abraxas-365/remodel/pkg/config"
	"github.com/Abraxas-365/remodel/pkg/dlqx"
	"github.com/Abraxas-365/remodel/pkg/dlqx/dlqxredis"
	"github.com/Abraxas-365/remodel/pkg/fsx"
	"github.com/Abraxas-365/remodel/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/remodel/pkg/fsx/fsxs3"
	"github.com/Abraxas-365/remodel/pkg/jobs"
	"github.com/Abraxas-365/remodel/pkg/jobx"
	"github.com/Abraxas-365/remodel/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/Abraxas-365/remodel/pkg/notifx"
	"github.com/Abraxas-365/remodel/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/remodel/pkg/notifx/notifxjob"
	"github.com/Abraxas-365/remodel/pkg/notifx/notifxses"
	"github.com/Abraxas-365/remodel/pkg/plandoc"
	"github.com/Abraxas-365/remodel/pkg/plandoc/plandocinfra"
	"github.com/Abraxas-365/remodel/pkg/render"
	"github.com/Abraxas-365/remodel/pkg/render/renderinfra"
	"github.com/Abraxas-365/remodel/pkg/sessiontoken"
	"github.com/Abraxas-365/remodel/pkg/shutdownx"
	"github.com/Abraxas-365/remodel/pkg/telemetry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// uploadsRoute is where the local file system is served.
const uploadsRoute = "/uploads"

// Container holds shared infrastructure and the job client.
type Container struct {
	Config *config.Config

	// Infrastructure
	DB         *sqlx.DB
	Redis      *redis.Client
	FileSystem fsx.FileSystem
	S3Client   *s3.Client

	// Job subsystem
	DeadLetters *dlqx.DeadLetters
	Broadcaster *broadcastx.Broadcaster
	Jobs        *jobx.Client
	Tokens      *sessiontoken.Service

	shutdown *shutdownx.Coordinator
}

// containerMode selects what a command needs.
type containerMode struct {
	// database opens the Postgres pool.
	database bool
	// workers registers the queue handlers.
	workers bool
}

// NewContainer builds the container for mode. Resources opened before a
// failure are released by Cleanup.
func NewContainer(ctx context.Context, cfg *config.Config, mode containerMode) (*Container, error) {
	logx.Info("🔧 Initializing application container...")

	c := &Container{
		Config:   cfg,
		Tokens:   sessiontoken.NewService(cfg.Broadcast.JWTSecret, 0),
		shutdown: shutdownx.New(shutdownx.WithTimeout(10 * time.Second)),
	}

	stopTracing, err := telemetry.Setup(cfg.Telemetry)
	if err != nil {
		return c, fmt.Errorf("telemetry: %w", err)
	}
	c.shutdown.Register("telemetry", shutdownx.CloseFunc(stopTracing), 5*time.Second)

	if err := c.initInfrastructure(ctx, mode); err != nil {
		return c, err
	}
	c.initJobs()

	if mode.workers {
		if err := c.initWorkers(ctx); err != nil {
			return c, err
		}
	}

	logx.Info("✅ Application container initialized")
	return c, nil
}

// ---------------------------------------------------------------------------
// Infrastructure: DB, Redis, file storage
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure(ctx context.Context, mode containerMode) error {
	logx.Info("🏗️ Initializing infrastructure...")

	// 1. Redis: queue backend, dead letters and broadcast transport
	opts, err := redis.ParseURL(c.Config.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	c.Redis = redis.NewClient(opts)
	c.shutdown.RegisterCloser("redis", c.Redis)
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logx.Info("  ✅ Redis connected")

	// 2. Database
	if mode.database {
		db, err := sqlx.ConnectContext(ctx, "postgres", c.Config.Database.DSN())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
		db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
		db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
		c.DB = db
		c.shutdown.RegisterCloser("database", db)
		logx.Info("  ✅ Database connected")
	}

	// 3. File storage
	if err := c.initFileStorage(ctx); err != nil {
		return err
	}

	logx.Info("✅ Infrastructure initialized")
	return nil
}

func (c *Container) initFileStorage(ctx context.Context) error {
	sc := c.Config.Storage

	switch sc.Mode {
	case "s3":
		cfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(sc.AWSRegion))
		if err != nil {
			return fmt.Errorf("unable to load AWS SDK config: %w", err)
		}
		c.S3Client = s3.NewFromConfig(cfg)
		c.FileSystem = fsxs3.NewS3FileSystem(c.S3Client, sc.Bucket, sc.Prefix)
		logx.Infof("  ✅ S3 file system configured (bucket: %s, region: %s)", sc.Bucket, sc.AWSRegion)

	case "local":
		localFS, err := fsxlocal.NewLocalFileSystem(sc.UploadDir, uploadsRoute)
		if err != nil {
			return fmt.Errorf("failed to initialize local file system: %w", err)
		}
		c.FileSystem = localFS
		logx.Infof("  ✅ Local file system configured (path: %s)", localFS.GetBasePath())

	default:
		return fmt.Errorf("unknown STORAGE_MODE: %s (use 'local' or 's3')", sc.Mode)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Job subsystem
// ---------------------------------------------------------------------------

// initJobs builds the queue client with the policy of every known queue.
// Handlers are attached later, only in worker processes.
func (c *Container) initJobs() {
	jc := c.Config.Jobx

	if c.Config.DLQ.Enabled {
		c.DeadLetters = dlqx.New(dlqxredis.SharedFactory(c.Redis, c.Config.DLQ.Retention))
		c.shutdown.RegisterCloser("dead-letters", c.DeadLetters)
	}

	switch c.Config.Broadcast.Transport {
	case "redis":
		c.Broadcaster = broadcastx.New(bxredis.NewTransport(c.Redis))
	case "memory":
		c.Broadcaster = broadcastx.New(broadcastx.NewHub())
	default:
		c.Broadcaster = broadcastx.New(nil)
		logx.Warnf("  ⚠️ Broadcast transport %q disabled, session events are dropped", c.Config.Broadcast.Transport)
	}
	c.shutdown.RegisterCloser("broadcaster", c.Broadcaster)

	options := []jobx.WorkerOption{
		jobx.WithPollInterval(jc.PollInterval),
		jobx.WithShutdownTimeout(jc.ShutdownTimeout),
		jobx.WithDequeueTimeout(jc.DequeueTimeout),
		jobx.WithMaxBackoff(jc.MaxBackoff),
	}
	if c.DeadLetters != nil {
		options = append(options, jobx.WithDeadLetters(c.DeadLetters))
	}

	queue := jobxredis.NewRedisQueue(c.Redis, jobxredis.WithRetention(jc.Retention))
	c.Jobs = jobx.NewClient(queue, options...)

	for _, name := range jobs.Queues {
		concurrency, attempts, backoff, deadLetter := c.policy(name)
		c.Jobs.Register(name, jobx.Definition{
			Concurrency: concurrency,
			Attempts:    attempts,
			Backoff:     backoff,
			DeadLetter:  deadLetter,
		})
	}
	logx.Infof("  ✅ Job client configured (%d queues)", len(jobs.Queues))
}

// policy resolves the configured profile of queue.
func (c *Container) policy(queue string) (concurrency, attempts int, backoff jobx.Backoff, deadLetter bool) {
	p := c.Config.Jobx.Profile(queue)
	backoff = jobx.Backoff{
		Type:     jobx.ParseBackoffType(p.Backoff),
		Delay:    p.BackoffDelay,
		MaxDelay: c.Config.Jobx.MaxBackoff,
	}
	return p.Concurrency, p.Attempts, backoff, p.DeadLetter && c.DeadLetters != nil
}

// initWorkers attaches a handler to every queue.
func (c *Container) initWorkers(ctx context.Context) error {
	logx.Info("📦 Initializing job handlers...")

	if c.DB == nil {
		return fmt.Errorf("workers need a database connection")
	}
	assets := renderinfra.NewPostgresAssetRepository(c.DB)

	// render:generate
	generator, err := c.imageGenerator(ctx)
	if err != nil {
		return err
	}
	renderHandler := render.NewHandler(assets, generator, c.FileSystem, c.Broadcaster,
		render.WithTimeout(c.Config.Render.Timeout))
	c.Jobs.Register(jobs.QueueRenderGenerate, renderHandler.Definition(c.policy(jobs.QueueRenderGenerate)))

	// image:optimize
	optimizeHandler := render.NewOptimizeHandler(assets, c.FileSystem)
	c.Jobs.Register(jobs.QueueImageOptimize, optimizeHandler.Definition(c.policy(jobs.QueueImageOptimize)))

	// email:send-notification
	notifications, err := c.notificationClient(ctx)
	if err != nil {
		return err
	}
	emailHandler := notifxjob.NewHandler(notifications)
	c.Jobs.Register(jobs.QueueEmailSend, emailHandler.Definition(c.policy(jobs.QueueEmailSend)))

	// doc:generate-plan
	var planOpts []plandoc.HandlerOption
	if pc := c.Config.Plandoc; pc.Narrative && pc.AnthropicAPIKey != "" {
		planOpts = append(planOpts, plandoc.WithNarrator(
			aianthropic.NewAnthropicProvider(pc.AnthropicAPIKey, aianthropic.WithModel(pc.Model)),
		))
		logx.Infof("  ✅ Plan narrative enabled (model: %s)", pc.Model)
	}
	planHandler := plandoc.NewHandler(plandocinfra.NewPostgresReader(c.DB), c.FileSystem, c.Broadcaster, planOpts...)
	c.Jobs.Register(jobs.QueueDocGeneratePlan, planHandler.Definition(c.policy(jobs.QueueDocGeneratePlan)))

	logx.Info("✅ Job handlers registered")
	return nil
}

// imageGenerator chains the configured providers in order. Providers that
// cannot be built are skipped with a warning.
func (c *Container) imageGenerator(ctx context.Context) (imagegen.Generator, error) {
	rc := c.Config.Render
	var chain []imagegen.Generator

	for _, name := range rc.Providers {
		switch strings.ToLower(name) {
		case "gemini":
			p, err := aigemini.NewGeminiProvider(ctx, rc.GeminiAPIKey, aigemini.WithImageModel(rc.GeminiModel))
			if err != nil {
				logx.WithError(err).Warn("  ⚠️ Gemini image provider unavailable")
				continue
			}
			chain = append(chain, p)
		case "openai":
			if rc.OpenAIAPIKey == "" {
				logx.Warn("  ⚠️ OpenAI image provider unavailable: OPENAI_API_KEY not set")
				continue
			}
			chain = append(chain, aiopenai.NewOpenAIProvider(rc.OpenAIAPIKey, rc.OpenAIModel))
		case "bedrock":
			awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(rc.AWSRegion))
			if err != nil {
				return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
			}
			chain = append(chain, aibedrock.NewBedrockProvider(awsCfg, aibedrock.WithDefaultModel(rc.BedrockModel)))
		default:
			return nil, fmt.Errorf("unknown render provider %q (use gemini, openai or bedrock)", name)
		}
		logx.Infof("  ✅ Image provider %s enabled", name)
	}

	if len(chain) == 0 {
		logx.Warn("  ⚠️ No image provider configured, render jobs will fail")
	}
	return imagegen.NewFallback(chain...), nil
}

func (c *Container) notificationClient(ctx context.Context) (*notifx.Client, error) {
	nc := c.Config.Notifx
	from := (&mail.Address{Name: nc.FromName, Address: nc.FromAddress}).String()

	var provider notifx.EmailSender
	switch nc.Provider {
	case "ses":
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(nc.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
		}
		provider = notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), from)
		logx.Infof("  ✅ SES email provider configured (region: %s)", nc.AWSRegion)
	case "console":
		provider = notifxconsole.NewConsoleProvider()
		logx.Info("  ✅ Console email provider configured")
	default:
		return nil, fmt.Errorf("unknown NOTIFX_PROVIDER: %s (use 'ses' or 'console')", nc.Provider)
	}

	templates := notifx.DefaultTemplates()
	if nc.TemplatesDir != "" {
		n, err := templates.LoadDir(nc.TemplatesDir)
		if err != nil {
			return nil, err
		}
		logx.Infof("  ✅ Loaded %d email templates from %s", n, nc.TemplatesDir)
	}

	return notifx.NewClient(provider, notifx.WithFromAddress(from), notifx.WithTemplates(templates)), nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// HealthCheck pings the backing services concurrently, each bounded by 3s.
func (c *Container) HealthCheck(ctx context.Context) map[string]error {
	names := []string{"redis"}
	pings := []func(context.Context) (struct{}, error){
		func(ctx context.Context) (struct{}, error) { return struct{}{}, c.Redis.Ping(ctx).Err() },
	}
	if c.DB != nil {
		names = append(names, "db")
		pings = append(pings, func(ctx context.Context) (struct{}, error) { return struct{}{}, c.DB.PingContext(ctx) })
	}

	for i, ping := range pings {
		pings[i] = func(ctx context.Context) (struct{}, error) {
			return asyncx.WithTimeout(ctx, 3*time.Second, ping)
		}
	}

	checks := make(map[string]error, len(names))
	for i, r := range asyncx.AllSettled(ctx, pings...) {
		checks[names[i]] = r.Err
	}
	return checks
}

// Cleanup releases every resource, last opened first.
func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")
	if err := c.shutdown.Shutdown(context.Background()); err != nil {
		logx.WithError(err).Warn("Some resources did not close cleanly")
		return
	}
	logx.Info("✅ Cleanup complete")
}
