package main

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/config"
	"github.com/hospital/hms/internal/domain/identity"
	"github.com/hospital/hms/internal/domain/medicalrecord"
	"github.com/hospital/hms/internal/domain/payment"
	"github.com/hospital/hms/internal/domain/pharmacy"
	"github.com/hospital/hms/internal/domain/ward"
	"github.com/hospital/hms/internal/platform/auth"
	"github.com/hospital/hms/internal/platform/db"
	"github.com/hospital/hms/internal/platform/middleware"
	"github.com/hospital/hms/pkg/envelope"
)

const version = "1.0.0"

// newServer builds the echo instance with middleware and every route.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = envelope.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	// Auth middleware
	jwtCfg := auth.JWTConfig{Issuer: cfg.JWTIssuer, SigningKey: cfg.SigningKey()}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.Use(middleware.Audit(logger))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return envelope.OK(c, http.StatusOK, map[string]string{"status": "ok", "version": version}, "")
	})
	e.GET("/health/db", db.HealthHandler(db.NewHealthChecker(pool)))

	api := e.Group("/api/v1")

	// Rate limiting applies to the API only, never to health probes.
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	tx := db.NewTransactor(pool)

	// Identity
	identitySvc := identity.NewService(
		identity.NewUserRepoPG(pool),
		identity.NewPatientRepoPG(pool),
		identity.NewDoctorRepoPG(pool),
		auth.NewTokenIssuer(cfg.JWTIssuer, cfg.SigningKey(), cfg.TokenTTL),
	)
	identity.NewHandler(identitySvc).RegisterRoutes(api)

	// Pharmacy
	pharmacySvc := pharmacy.NewService(tx,
		pharmacy.NewMedicineRepoPG(pool),
		pharmacy.NewPrescriptionRepoPG(pool),
		pharmacy.NewDispensingRepoPG(pool),
	)
	pharmacy.NewHandler(pharmacySvc).RegisterRoutes(api)

	// Medical records
	recordSvc := medicalrecord.NewService(medicalrecord.NewRepoPG(pool))
	medicalrecord.NewHandler(recordSvc).RegisterRoutes(api)

	// Wards
	wardSvc := ward.NewService(tx, ward.NewRoomRepoPG(pool), ward.NewAssignmentRepoPG(pool))
	ward.NewHandler(wardSvc).RegisterRoutes(api)

	// Payments
	var momo payment.MoMoGateway
	if cfg.MoMoEnabled() {
		momo = payment.NewMoMoClient(cfg.MoMo)
	}
	var vnp payment.VNPayGateway
	if cfg.VNPayEnabled() {
		vnp = payment.NewVNPay(cfg.VNPay)
	}
	paymentSvc := payment.NewService(tx, payment.NewRepoPG(pool), momo, vnp)
	payment.NewHandler(paymentSvc, logger.With().Str("component", "payment").Logger()).RegisterRoutes(api)

	return e
}
