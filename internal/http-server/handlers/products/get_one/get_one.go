package getProduct

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	resp "github.com/Vicktor007/WisePrice/internal/lib/api/response"
	sl "github.com/Vicktor007/WisePrice/internal/lib/logger"
	"github.com/Vicktor007/WisePrice/internal/models"
	"github.com/Vicktor007/WisePrice/internal/storage"
)

type Response struct {
	resp.Response
	Product models.Product `json:"product"`
}

type ProductGetter interface {
	ProductByID(ctx context.Context, productID int64) (models.Product, error)
	ProductByURL(ctx context.Context, url string) (models.Product, error)
}

func New(
	log *slog.Logger,
	prodOp ProductGetter,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.products.get_one.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var (
			product models.Product
			err     error
		)

		switch {
		case r.URL.Query().Get("url") != "":
			product, err = prodOp.ProductByURL(r.Context(), r.URL.Query().Get("url"))

		case r.URL.Query().Get("id") != "":
			productID := parseProductID(r)
			if productID == -1 {
				log.Error("Invalid id")

				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Invalid id"))

				return
			}

			product, err = prodOp.ProductByID(r.Context(), productID)

		default:
			log.Error("Neither url nor id provided")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Provide a url or id query parameter"))

			return
		}

		if err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				log.Error("Product not found")

				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product not found"))

				return
			}

			log.Error("Failed to get product", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		w.Header().Set("Cache-Control", "private, max-age=60")

		log.Info("Product got successfully", slog.Int64("product_id", product.ID))

		ResponseOK(w, r, product)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, product models.Product) {
	render.JSON(w, r, Response{
		Response: resp.OK(),
		Product:  product,
	})
}

func parseProductID(r *http.Request) int64 {
	productIDStr := r.URL.Query().Get("id")

	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID < 0 {
		return -1
	}

	return productID
}
