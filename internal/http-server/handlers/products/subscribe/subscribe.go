package subscribeProduct

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	validator "github.com/go-playground/validator/v10"

	resp "github.com/Vicktor007/WisePrice/internal/lib/api/response"
	sl "github.com/Vicktor007/WisePrice/internal/lib/logger"
	"github.com/Vicktor007/WisePrice/internal/storage"
)

type Request struct {
	URL   string `json:"url" validate:"required,url"`
	Email string `json:"email" validate:"required,email"`
}

type Subscriber interface {
	Subscribe(ctx context.Context, url, email string) error
}

func New(
	log *slog.Logger,
	prodOp Subscriber,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.products.subscribe.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := prodOp.Subscribe(ctx, req.URL, req.Email); err != nil {
			switch {
			case errors.Is(err, storage.ErrProductNotFound):
				log.Error("Product not found", slog.String("url", req.URL))

				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product is not tracked"))

			case errors.Is(err, storage.ErrAlreadySubscribed):
				log.Info("Already subscribed", slog.String("url", req.URL))

				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("Already subscribed"))

			default:
				log.Error("Failed to subscribe", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Subscribed successfully", slog.String("url", req.URL))

		render.JSON(w, r, resp.OK())
	}
}
