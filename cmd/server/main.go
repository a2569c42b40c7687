package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"

	"ecoquest/internal/config"
	"ecoquest/internal/database"
	"ecoquest/internal/email"
	"ecoquest/internal/handlers"
	"ecoquest/internal/inflight"
	"ecoquest/internal/realtime"
	"ecoquest/internal/repository"
	"ecoquest/internal/scheduler"
	"ecoquest/internal/security"
	"ecoquest/internal/service"
	"ecoquest/internal/storage"
	"ecoquest/migrations"
)

func main() {
	// Load configuration
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startup := handlers.NewStartupStatus(
		handlers.StepDatabase,
		handlers.StepMigrations,
		handlers.StepBadWords,
		handlers.StepCatalog,
		handlers.StepServices,
		handlers.StepRealtime,
		handlers.StepScheduler,
	)

	// Initialize database with config (supports sqlite, postgres, mysql)
	startup.SetCurrentStep(handlers.StepDatabase)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	log.Printf("Database connection established (type: %s)", cfg.DatabaseType)
	startup.CompleteStep(handlers.StepDatabase)

	// Run migrations
	startup.SetCurrentStep(handlers.StepMigrations)
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")
	startup.CompleteStep(handlers.StepMigrations)

	// Seed bad words filter
	startup.SetCurrentStep(handlers.StepBadWords)
	if cfg.SeedBadWords {
		if err := db.SeedBadWords(ctx, database.BadWordsURL); err != nil {
			log.Printf("Warning: Failed to seed bad words filter: %v", err)
		}
	}
	startup.CompleteStep(handlers.StepBadWords)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	missionRepo := repository.NewMissionRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	leaderboardRepo := repository.NewLeaderboardRepository(db)

	// Seed the lesson catalog
	startup.SetCurrentStep(handlers.StepCatalog)
	if cfg.SeedCatalog {
		catalogService := service.NewCatalogService(db, lessonRepo, missionRepo, badgeRepo)
		if err := catalogService.Seed(ctx); err != nil {
			log.Printf("Warning: Failed to seed lesson catalog: %v", err)
		}
	}
	startup.CompleteStep(handlers.StepCatalog)

	// Realtime hub, fanned out through Redis when configured
	startup.SetCurrentStep(handlers.StepRealtime)
	hub := realtime.NewHub()
	go hub.Run(ctx)
	var events realtime.Publisher = hub
	if cfg.RedisAddr != "" {
		client, err := realtime.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("Warning: Redis unavailable, realtime events stay on this instance: %v", err)
		} else {
			defer client.Close()
			broker := realtime.NewRedisBroker(client, "")
			events = broker
			go func() {
				if err := broker.Forward(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("Realtime fan-out stopped: %v", err)
				}
			}()
		}
	}
	startup.CompleteStep(handlers.StepRealtime)

	// Initialize services
	startup.SetCurrentStep(handlers.StepServices)
	store, localStore := newStorage(ctx, cfg)
	emailService := service.NewEmailService(newEmailSender(ctx, cfg), cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, cfg.EmailDebug)

	levels := service.LevelRules{
		StudentPointsPerLevel:      cfg.StudentPointsPerLevel,
		OrganizationPointsPerLevel: cfg.OrganizationPointsPerLevel,
	}
	profileService := service.NewProfileService(db, profileRepo, db, levels)
	badgeService := service.NewBadgeService(badgeRepo, lessonRepo, activityRepo)
	lessonService := service.NewLessonService(db, lessonRepo, missionRepo, profileRepo, activityRepo, badgeService, events,
		service.LessonRules{
			QuizPassThreshold:     cfg.QuizPassThreshold,
			QuizRequired:          cfg.QuizRequired(),
			CompletionPoints:      cfg.LessonCompletionPoints,
			VideoProgressInterval: cfg.VideoProgressInterval,
		}, levels)
	missionService := service.NewMissionService(db, missionRepo, profileRepo, userRepo, activityRepo, lessonService, badgeService,
		store, emailService, events,
		service.MissionRules{
			MaxVideoUploadBytes: cfg.MaxVideoUploadBytes,
			SignedURLTTL:        cfg.SignedURLTTL,
		}, levels)
	authService := service.NewAuthService(db, userRepo, profileRepo, activityRepo, profileService, emailService, cfg.SessionDuration)
	leaderboardService := service.NewLeaderboardService(leaderboardRepo, profileRepo, levels)
	dashboardService := service.NewDashboardService(profileRepo, missionRepo, badgeRepo, activityRepo, leaderboardService, levels)

	oauthProviders := map[string]handlers.OAuthProvider{
		"google": {
			Name:  "google",
			Label: "Google",
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     google.Endpoint,
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		},
		"facebook": {
			Name:  "facebook",
			Label: "Facebook",
			Config: &oauth2.Config{
				ClientID:     cfg.FacebookClientID,
				ClientSecret: cfg.FacebookClientSecret,
				Endpoint:     facebook.Endpoint,
				Scopes:       []string{"email", "public_profile"},
			},
			UserInfoURL: "https://graph.facebook.com/me?fields=id,name,email",
		},
		"apple": {
			Name:  "apple",
			Label: "Apple",
			Config: &oauth2.Config{
				ClientID:     cfg.AppleClientID,
				ClientSecret: cfg.AppleClientSecret,
				Endpoint: oauth2.Endpoint{
					AuthURL:  "https://appleid.apple.com/auth/authorize",
					TokenURL: "https://appleid.apple.com/auth/token",
				},
				Scopes: []string{"name", "email"},
			},
			AuthParams: map[string]string{
				"response_mode": "query",
			},
		},
	}

	// Initialize handlers
	csrf := security.NewCSRFGenerator(cfg.CSRFSecret)
	limiter := security.NewRateLimiter(ctx, cfg.AuthRateLimit, cfg.AuthRateWindow)
	router := handlers.NewRouter(handlers.Dependencies{
		Middleware:     handlers.NewMiddleware(authService, profileService, csrf, limiter, inflight.NewRegistry()),
		Auth:           handlers.NewAuthHandler(authService, profileService, csrf, oauthProviders, cfg.OAuthRedirectBaseURL, cfg.AppBaseURL),
		Profile:        handlers.NewProfileHandler(profileService, dashboardService),
		Lessons:        handlers.NewLessonHandler(lessonService),
		Missions:       handlers.NewMissionHandler(missionService, cfg.MaxVideoUploadBytes, cfg.MediaTransferTimeout),
		Leaderboards:   handlers.NewLeaderboardHandler(leaderboardService),
		Badges:         handlers.NewBadgeHandler(badgeService),
		Media:          handlers.NewMediaHandler(localStore, cfg.MediaTransferTimeout),
		Realtime:       handlers.NewRealtimeHandler(hub),
		Startup:        startup,
		RequestTimeout: cfg.RequestTimeout,
	})
	startup.CompleteStep(handlers.StepServices)

	// Scheduled maintenance
	startup.SetCurrentStep(handlers.StepScheduler)
	cron := scheduler.New()
	for _, job := range scheduler.DefaultJobs(authService, profileService, cfg.CronStreakSchedule) {
		if err := cron.Add(job); err != nil {
			log.Fatalf("Failed to schedule %s: %v", job.Name, err)
		}
	}
	cron.Start()
	startup.CompleteStep(handlers.StepScheduler)

	// Start server
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()
	startup.MarkReady()

	// Wait for interrupt signal
	<-ctx.Done()
	log.Println("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	<-cron.Stop().Done()
}

// newStorage picks the mission video backend. The local backend is also returned
// on its own so the media route can serve it.
func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, *storage.LocalStorage) {
	if cfg.StorageBackend == "s3" {
		s3Store, err := storage.NewS3Storage(ctx, cfg.AWSRegion, cfg.S3Bucket)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
		log.Printf("Storing mission videos in s3://%s", cfg.S3Bucket)
		return s3Store, nil
	}

	local, err := storage.NewLocalStorage(cfg.MediaDir, cfg.AppBaseURL, security.NewMediaSigner(cfg.MediaSigningSecret))
	if err != nil {
		log.Fatalf("Failed to initialize local storage: %v", err)
	}
	log.Printf("Storing mission videos under %s", cfg.MediaDir)
	return local, local
}

// newEmailSender picks the email provider; a missing configuration disables sending
func newEmailSender(ctx context.Context, cfg *config.Config) email.Sender {
	from := email.FormatAddress(cfg.SESFromName, cfg.SESFromEmail)
	switch cfg.EmailProvider {
	case "resend":
		if cfg.ResendAPIKey == "" || cfg.SESFromEmail == "" {
			log.Println("Resend not configured, email disabled")
			return email.NoopSender{Debug: cfg.EmailDebug}
		}
		return email.NewResendSender(cfg.ResendAPIKey, from)
	case "ses":
		if cfg.SESFromEmail == "" {
			log.Println("SES_FROM_EMAIL not set, email disabled")
			return email.NoopSender{Debug: cfg.EmailDebug}
		}
		sender, err := email.NewSESSender(ctx, cfg.AWSRegion, from, cfg.EmailDebug)
		if err != nil {
			log.Printf("Warning: Failed to initialize SES, email disabled: %v", err)
			return email.NoopSender{Debug: cfg.EmailDebug}
		}
		return sender
	default:
		return email.NoopSender{Debug: cfg.EmailDebug}
	}
}
