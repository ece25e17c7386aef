package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/discord"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/gate"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/handler"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/resolver"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/rolecache"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/token"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/config"
)

func setupHTTP(cfg config.Config) (*gin.Engine, error) {

	// ----------------------------
	// Dependencies
	// ----------------------------

	provider, err := discord.New(discord.Config{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURI:  cfg.DiscordRedirectURI,
		AuthURL:      cfg.DiscordAuthURL,
		TokenURL:     cfg.DiscordTokenURL,
		APIBaseURL:   cfg.DiscordAPIBaseURL,
	})
	if err != nil {
		return nil, err
	}

	roleCache := rolecache.New(cfg.RoleCacheTTL)
	sessionResolver := resolver.New(provider)
	authGate := gate.New(roleCache, provider, cfg.RequiredGuildID)

	callbackFlow := handler.NewCallbackFlow(
		provider,
		roleCache,
		cfg.RequiredGuildID,
		cfg.RequiredRoleID,
		cfg.CookieMaxAge,
	)

	cookieOpts := token.CookieOptions{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}

	authHandler := handler.NewHandler(
		provider,
		sessionResolver,
		authGate,
		callbackFlow,
		cookieOpts,
		cfg.CookieMaxAge,
		cfg.RequiredRoleID,
		cfg.AdminRoleID,
	)

	// ----------------------------
	// Router
	// ----------------------------

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestID())

	authHandler.RegisterRoutes(router)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router, nil
}
