package api

import (
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/lossledger/lossledger/internal/api/handler/v1"
	"github.com/lossledger/lossledger/internal/api/middleware"
	"github.com/lossledger/lossledger/internal/config"
)

// Services carries the already-wired service layer. The payout service in
// particular must be the same instance the drain worker uses, so that both
// dispatch paths share one per-payee lock set.
type Services struct {
	Leaderboard v1.LeaderboardService
	Donations   v1.DonationService
	Payouts     v1.PayoutService
	Gate        v1.GateService
}

type Server struct {
	Config *config.AppConfig
	Router *gin.Engine
}

func NewServer(conf *config.AppConfig, svcs Services) *Server {
	gin.SetMode(conf.Gin.Mode)
	engine := gin.New()

	s := &Server{
		Config: conf,
		Router: engine,
	}

	s.MountMiddlewares()

	leaderboardHandler := v1.NewLeaderboardHandler(svcs.Leaderboard)
	donationHandler := v1.NewDonationHandler(svcs.Donations, svcs.Gate)
	payoutHandler := v1.NewPayoutHandler(svcs.Payouts)
	s.MountHandlers(leaderboardHandler, donationHandler, payoutHandler)

	return s
}

func (s *Server) MountMiddlewares() {
	// Logger and Recovery are needed unless we use gin.Default().
	s.Router.Use(gin.Logger())
	s.Router.Use(gin.Recovery())
	s.Router.Use(requestid.New())
	s.Router.Use(middleware.ConfigCORS(s.Config.API.AllowedCORSDomains))
}

func (s *Server) MountHandlers(leaderboardHandler *v1.LeaderboardHandler, donationHandler *v1.DonationHandler, payoutHandler *v1.PayoutHandler) {
	const basePath = "/api/v1"

	s.Router.GET("/", v1.HandleHealthcheck)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := s.Router.Group(basePath)
	{
		public.POST("/results", leaderboardHandler.HandleRecordResult)
		public.GET("/scores/:playerKey", leaderboardHandler.HandleGetScore)
		public.GET("/scores/:playerKey/events", leaderboardHandler.HandleGetPlayerEvents)
		public.GET("/results", leaderboardHandler.HandleRecentEvents)

		public.POST("/tokens/redeem", donationHandler.HandleRedeemToken)
	}

	operator := s.Router.Group(basePath, middleware.NewAuthenticator(s.Config.API.JWTSigningKey).VerifyJWT())
	{
		operator.POST("/scores/:playerKey/reconcile", leaderboardHandler.HandleReconcilePlayer)
		operator.GET("/integrity/scores", leaderboardHandler.HandleIntegrity)
		operator.GET("/integrity/donations", donationHandler.HandleDonationIntegrity)

		operator.POST("/donations", donationHandler.HandleIngestDonation)
		operator.GET("/donations", donationHandler.HandleRecentDonations)
		operator.GET("/access-requests", donationHandler.HandleRecentAccessRequests)
		operator.GET("/access-requests/lookup", donationHandler.HandleGetAccessRequest)

		operator.GET("/balances/:subjectKey", payoutHandler.HandleGetBalance)
		operator.GET("/intents", payoutHandler.HandleListIntents)
		operator.GET("/intents/status-counts", payoutHandler.HandleStatusCounts)
		operator.POST("/payouts/drain", payoutHandler.HandleDrain)
	}
}
