package cron

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	sl "github.com/Vicktor007/WisePrice/internal/lib/logger"
	"github.com/Vicktor007/WisePrice/internal/models"
)

type Response struct {
	Message         string                  `json:"message"`
	UpdatedProducts []models.Product        `json:"updatedProducts"`
	DeletedProducts []models.DeletedProduct `json:"deletedProducts"`
}

type Reconciler interface {
	Run(ctx context.Context) (models.Report, error)
}

// New runs the reconciliation job synchronously and reports what changed.
// Per-product failures are absorbed into the report; only a failure of the
// run itself produces an error status.
func New(
	log *slog.Logger,
	reconciler Reconciler,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.cron.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		log.Info("Reconciliation run started")

		report, err := reconciler.Run(r.Context())
		if err != nil {
			log.Error("Reconciliation run failed", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, Response{Message: "Failed to update products"})

			return
		}

		log.Info("Reconciliation run finished",
			slog.Int("updated", len(report.UpdatedProducts)),
			slog.Int("deleted", len(report.DeletedProducts)),
		)

		ResponseOK(w, r, report)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, report models.Report) {
	updated := report.UpdatedProducts
	if updated == nil {
		updated = []models.Product{}
	}
	deleted := report.DeletedProducts
	if deleted == nil {
		deleted = []models.DeletedProduct{}
	}

	render.JSON(w, r, Response{
		Message:         "Ok",
		UpdatedProducts: updated,
		DeletedProducts: deleted,
	})
}
