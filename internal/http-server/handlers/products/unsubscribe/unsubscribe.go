package unsubscribeProduct

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	resp "github.com/Vicktor007/WisePrice/internal/lib/api/response"
	"github.com/Vicktor007/WisePrice/internal/lib/jwt"
	sl "github.com/Vicktor007/WisePrice/internal/lib/logger"
	"github.com/Vicktor007/WisePrice/internal/storage"
)

type Unsubscriber interface {
	Unsubscribe(ctx context.Context, token string) error
}

func New(
	log *slog.Logger,
	prodOp Unsubscriber,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.products.unsubscribe.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := r.URL.Query().Get("token")
		if token == "" {
			log.Error("Missing token")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Missing token"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := prodOp.Unsubscribe(ctx, token); err != nil {
			switch {
			case errors.Is(err, jwt.ErrInvalidToken):
				log.Error("Invalid unsubscribe token", sl.Err(err))

				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Invalid token"))

			case errors.Is(err, storage.ErrSubscriberNotFound):
				log.Info("Subscription already removed")

				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Subscription not found"))

			default:
				log.Error("Failed to unsubscribe", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Unsubscribed successfully")

		render.JSON(w, r, resp.OK())
	}
}
