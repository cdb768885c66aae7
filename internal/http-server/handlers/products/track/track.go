package trackProduct

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
	"github.com/Vicktor007/WisePrice/internal/scraper"
	"github.com/Vicktor007/WisePrice/internal/service/products"
)

type Request struct {
	URL   string `json:"url" validate:"required,url"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

type Response struct {
	resp.Response
	ProductID int64 `json:"product_id"`
}

type ProductTracker interface {
	TrackProduct(ctx context.Context, url, email string) (int64, error)
}

func New(
	log *slog.Logger,
	prodOp ProductTracker,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.products.track.New"

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

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		// The first scrape runs synchronously within the request.
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		productID, err := prodOp.TrackProduct(ctx, req.URL, req.Email)
		if err != nil {
			if errors.Is(err, products.ErrNotAmazonURL) {
				log.Error("Rejected non-Amazon URL", slog.String("url", req.URL))

				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Please provide a valid Amazon link"))

				return
			}

			if reason, ok := scraper.AsGone(err); ok {
				log.Error("Listing does not exist",
					slog.String("url", req.URL),
					slog.String("reason", string(reason)),
				)

				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Product listing does not exist"))

				return
			}

			log.Error("Failed to track product", sl.Err(err))

			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, resp.Error("Failed to scrape product"))

			return
		}

		log.Info("Product tracked successfully",
			slog.Int64("product_id", productID),
			slog.String("url", req.URL),
		)

		render.Status(r, http.StatusCreated)
		ResponseOK(w, r, productID)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, id int64) {
	render.JSON(w, r, Response{
		Response:  resp.OK(),
		ProductID: id,
	})
}
