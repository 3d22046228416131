package payments

import (
	"cardstudio/handlers/api/respond"
	"cardstudio/i18n"
	"cardstudio/metrics"
	"cardstudio/middleware"
	"cardstudio/payment"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// HandlePlans lists the paid offers. It is public.
func HandlePlans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, payment.Plans())
	}
}

func HandleCreateIntent(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(w, r)
		if !ok {
			return
		}

		var req payment.IntentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
			return
		}

		intent, err := svc.CreateIntent(r.Context(), userID, req)
		if err != nil {
			plan := "unknown"
			if p, found := payment.FindPlan(req.PlanID); found {
				plan = p.ID
			}
			metrics.PaymentIntents.WithLabelValues(plan, "failed").Inc()

			switch {
			case errors.Is(err, payment.ErrUnknownPlan):
				respond.Error(w, r, http.StatusBadRequest, i18n.MsgUnknownPlan, req.PlanID)
			case errors.Is(err, payment.ErrDisabled):
				respond.Error(w, r, http.StatusServiceUnavailable, i18n.MsgPaymentDisabled)
			default:
				logrus.WithFields(logrus.Fields{"error": err, "userID": userID, "plan": plan}).Error("Failed to create payment intent")
				respond.Error(w, r, http.StatusBadGateway, i18n.MsgPaymentFailed)
			}
			return
		}

		p, _ := payment.FindPlan(req.PlanID)
		metrics.PaymentIntents.WithLabelValues(p.ID, "created").Inc()
		logrus.WithFields(logrus.Fields{"userID": userID, "plan": p.ID, "intentID": intent.ID}).Info("Payment intent created")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, intent)
	}
}
