package api

import (
	"context"
	"net/http"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/metrics"
)

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	logger := h.log(r)

	typ, ev, err := decodeWebhook(r.Body)
	if err != nil {
		h.metrics.WebhookHandled("undefined", metrics.ClassifyError(err))
		h.reject(w, r, err)
		return
	}

	err = h.events[typ](r.Context(), ev)
	h.metrics.WebhookHandled(string(typ), metrics.ClassifyError(err))
	if err != nil {
		h.reject(w, r, err)
		return
	}

	logger.Debugw("api: webhook handled", "event_type", typ)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := rejection(err)
	if status >= http.StatusInternalServerError {
		h.log(r).Errorw("api: webhook failed", "error", err)
	} else {
		h.log(r).Infow("api: webhook rejected", "reason", msg, "error", err)
	}
	writeError(w, status, msg)
}

func (h *Handler) handleAdd(ctx context.Context, ev WebhookEvent) error {
	h.logger.Infow("api: handling add request", "request_id", RequestID(ctx), "applicant", applicantID(ev))
	return nil
}

func (h *Handler) handleRemoved(ctx context.Context, ev WebhookEvent) error {
	h.logger.Infow("api: handling removed request", "request_id", RequestID(ctx), "applicant", applicantID(ev))
	return nil
}

func (h *Handler) handleStatus(ctx context.Context, ev WebhookEvent) error {
	status, err := statusEvent(ev)
	if err != nil {
		return err
	}
	return h.reconciler.HandleStatus(ctx, status)
}

func applicantID(ev WebhookEvent) any {
	if ev.Applicant == nil || ev.Applicant.ID == nil {
		return nil
	}
	return *ev.Applicant.ID
}
