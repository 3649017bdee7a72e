package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avilenka/devmatch/internal/config"
	authsvc "github.com/avilenka/devmatch/internal/services/auth"
	chatsvc "github.com/avilenka/devmatch/internal/services/chat"
	feedsvc "github.com/avilenka/devmatch/internal/services/feed"
	matchessvc "github.com/avilenka/devmatch/internal/services/matches"
	swipesvc "github.com/avilenka/devmatch/internal/services/swipes"
	"github.com/avilenka/devmatch/internal/transport/http/handlers"
	wstransport "github.com/avilenka/devmatch/internal/transport/ws"
)

type Dependencies struct {
	AuthService   *authsvc.Service
	SwipeService  *swipesvc.Service
	MatchService  *matchessvc.Service
	ChatService   *chatsvc.Service
	FeedService   *feedsvc.Service
	SocketHandler *wstransport.Handler
	Logger        *zap.Logger
	Config        config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	swipeHandler := handlers.NewSwipeHandler(deps.SwipeService)
	rewindHandler := handlers.NewRewindHandler(deps.SwipeService)
	matchesHandler := handlers.NewMatchesHandler(deps.SwipeService, deps.MatchService, deps.Config.Chat.ConversationsLimit)
	feedHandler := handlers.NewFeedHandler(deps.FeedService)
	chatHandler := handlers.NewChatHandler(deps.ChatService, int64(deps.Config.Chat.AttachmentMaxBytes), deps.Config.Chat.ConversationLimit)
	authMW := AuthMiddleware(deps.AuthService, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/v1", func(r chi.Router) {
		if deps.SocketHandler != nil {
			// Socket auth happens inside the handler; the handshake token
			// travels in the query string.
			r.Get("/ws", deps.SocketHandler.Serve)
		}

		r.With(authMW).Post("/swipes", swipeHandler.Handle)
		r.With(authMW).Post("/rewind", rewindHandler.Handle)
		r.With(authMW).Get("/matches/status/{target_id}", matchesHandler.Status)
		r.With(authMW).Get("/interactions", matchesHandler.Interactions)
		r.With(authMW).Get("/recommendations", feedHandler.Recommendations)

		r.Route("/chat", func(r chi.Router) {
			r.Use(authMW)
			r.Post("/send", chatHandler.Send)
			r.Get("/conversation/{user_id}", chatHandler.Conversation)
			r.Get("/conversations", matchesHandler.Conversations)
			r.Patch("/read/{message_id}", chatHandler.MarkRead)
			r.Delete("/message/{message_id}", chatHandler.Delete)
			r.Get("/unread-count", chatHandler.UnreadCount)
			r.Post("/attachment", chatHandler.UploadAttachment)
			r.Get("/attachment-url", chatHandler.AttachmentURL)
		})
	})
}
