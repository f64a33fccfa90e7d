package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/crypto/acme/autocert"
	"google.golang.org/api/option"

	"cloudbill/internal/config"
	"cloudbill/internal/pay"
	"cloudbill/utils"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		errorLog.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		errorLog.Fatal(err)
	}

	addr := flag.String("addr", cfg.Server.Address, "HTTP network address")
	flag.Parse()

	db, err := openDB(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		errorLog.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()

	tokens, err := utils.NewManager(cfg.JWT.Secret)
	if err != nil {
		errorLog.Fatal(err)
	}

	gateway, err := pay.NewClient(pay.Config{
		BaseURL: cfg.QRPay.BaseURL,
		Client:  &http.Client{Timeout: cfg.GatewayTimeout()},
		Logger:  logger.With("component", "qrpay"),
	})
	if err != nil {
		errorLog.Fatal(err)
	}

	deps := appDeps{
		db:       db,
		cfg:      cfg,
		gateway:  gateway,
		tokens:   tokens,
		logger:   logger,
		infoLog:  infoLog,
		errorLog: errorLog,
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			errorLog.Printf("redis unavailable, provisioning runs without a lock: %v", err)
			_ = rdb.Close()
		} else {
			deps.redis = rdb
			defer rdb.Close()
		}
		cancel()
	}

	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := newMessagingClient(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			errorLog.Printf("push notifications disabled: %v", err)
		} else {
			deps.messaging = fcm
		}
	}

	if cfg.S3.Bucket != "" {
		uploader, err := utils.NewS3Uploader(utils.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			errorLog.Printf("receipt archive disabled: %v", err)
		} else {
			deps.uploader = uploader
		}
	}

	app := initializeApp(deps)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})

	srv := &http.Server{
		Addr:         *addr,
		ErrorLog:     errorLog,
		Handler:      c.Handler(app.routes()),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.GatewayTimeout() + 10*time.Second,
	}

	if cfg.Server.AutocertDomain != "" {
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Server.AutocertDomain),
			Cache:      autocert.DirCache(cfg.Server.AutocertCache),
		}
		srv.Addr = ":443"
		srv.TLSConfig = &tls.Config{GetCertificate: m.GetCertificate, MinVersion: tls.VersionTLS12}
		go func() {
			if err := http.ListenAndServe(":80", m.HTTPHandler(nil)); err != nil {
				errorLog.Printf("acme http listener: %v", err)
			}
		}()
		infoLog.Printf("Starting TLS server for %s", cfg.Server.AutocertDomain)
		if err := srv.ListenAndServeTLS("", ""); err != nil {
			errorLog.Fatal(err)
		}
		return
	}

	infoLog.Printf("Starting server on %s", *addr)
	if err := srv.ListenAndServe(); err != nil {
		errorLog.Fatal(err)
	}
}

func openDB(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Printf("Failed to open DB: %v", err)
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		log.Printf("Failed to ping DB: %v", err)
		_ = db.Close()
		return nil, err
	}
	db.SetMaxIdleConns(35)
	db.SetConnMaxIdleTime(5 * time.Minute)
	log.Printf("Successfully connected to %s database", driver)
	return db, nil
}

func newMessagingClient(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	fb, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, err
	}
	return fb.Messaging(ctx)
}
