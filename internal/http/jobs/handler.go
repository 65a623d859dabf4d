package jobs

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/debtsync/internal/http/render"
	"github.com/MrJamesThe3rd/debtsync/internal/job"
)

// Presenter converts the result of a finished job of one kind into its
// wire shape.
type Presenter func(result any) any

type Handler struct {
	jobs       *job.Manager
	presenters map[string]Presenter
}

func NewHandler(jobs *job.Manager, presenters map[string]Presenter) *Handler {
	return &Handler{jobs: jobs, presenters: presenters}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.cancel)
}

type statusResponse struct {
	ID           uuid.UUID  `json:"id"`
	Kind         string     `json:"kind"`
	State        job.State  `json:"state"`
	Phase        string     `json:"phase"`
	Percent      int        `json:"percent"`
	CurrentBatch int        `json:"current_batch"`
	TotalBatches int        `json:"total_batches"`
	Error        string     `json:"error,omitempty"`
	Result       any        `json:"result,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func (h *Handler) toResponse(s job.Status) statusResponse {
	result := s.Result
	if present, ok := h.presenters[s.Kind]; ok && result != nil {
		result = present(result)
	}

	return statusResponse{
		ID:           s.ID,
		Kind:         s.Kind,
		State:        s.State,
		Phase:        s.Phase,
		Percent:      s.Percent,
		CurrentBatch: s.CurrentBatch,
		TotalBatches: s.TotalBatches,
		Error:        s.Error,
		Result:       result,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	all := h.jobs.List()

	resp := make([]statusResponse, len(all))
	for i, s := range all {
		resp[i] = h.toResponse(s)
	}

	render.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	s, err := h.jobs.Get(id)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, h.toResponse(s))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	s, err := h.jobs.Cancel(id)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusAccepted, h.toResponse(s))
}
