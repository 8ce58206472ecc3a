package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hordebroker/broker/internal/domain"
	"github.com/hordebroker/broker/internal/registry"
	"github.com/hordebroker/broker/internal/scheduler"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// Server aggregates handler dependencies: the brokering control
// surface and the registry's read-side aggregates (§4.1, §4.4, §6).
type Server struct {
	Broker   *scheduler.Broker
	Registry *registry.Registry
}

// NewServer constructs an HTTP server with its handlers wired.
func NewServer(broker *scheduler.Broker, reg *registry.Registry) *Server {
	return &Server{Broker: broker, Registry: reg}
}

type submitBody struct {
	Prompt      string         `json:"prompt" validate:"required"`
	APIKey      string         `json:"api_key" validate:"required"`
	Models      []string       `json:"models"`
	Servers     []string       `json:"servers"`
	Softprompts []string       `json:"softprompts"`
	Params      map[string]any `json:"params"`
}

func (b submitBody) toParams() domain.Params {
	p := domain.Params{N: 1, Extra: map[string]any{}}
	for k, v := range b.Params {
		switch k {
		case "n":
			p.N = toUint(v, 1)
		case "max_length":
			p.MaxLength = toUint(v, 0)
		case "max_content_length":
			p.MaxContentLength = toUint(v, 0)
		default:
			p.Extra[k] = v
		}
	}
	return p
}

func toUint(v any, def uint) uint {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0
		}
		return uint(n)
	case int:
		if n < 0 {
			return 0
		}
		return uint(n)
	default:
		return def
	}
}

func (s *Server) resolveUser(apiKey string) (*domain.User, error) {
	u := s.Registry.FindUserByAPIKey(apiKey)
	if u == nil {
		return nil, domain.ErrConflict
	}
	return u, nil
}

func (s *Server) submit(mode domain.RequestMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body submitBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, domain.ErrInvalidArgument)
			return
		}
		if err := getValidator().Struct(body); err != nil {
			writeError(w, domain.ErrInvalidArgument)
			return
		}
		user, err := s.resolveUser(body.APIKey)
		if err != nil {
			writeError(w, err)
			return
		}
		wp, err := s.Broker.SubmitPrompt(r.Context(), scheduler.SubmitRequest{
			User:        user,
			Prompt:      body.Prompt,
			Models:      body.Models,
			Servers:     body.Servers,
			Softprompts: body.Softprompts,
			Params:      body.toParams(),
			Mode:        mode,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		if mode == domain.ModeAsync {
			writeJSON(w, http.StatusOK, map[string]any{"id": wp.ID})
			return
		}
		writeJSON(w, http.StatusOK, wp.Generations())
	}
}

// SubmitSync handles POST /generate/sync.
func (s *Server) SubmitSync() http.HandlerFunc { return s.submit(domain.ModeSync) }

// SubmitAsync handles POST /generate/async.
func (s *Server) SubmitAsync() http.HandlerFunc { return s.submit(domain.ModeAsync) }

type statusResponse struct {
	Waiting     int      `json:"waiting"`
	Processing  int      `json:"processing"`
	Finished    int      `json:"finished"`
	Done        bool     `json:"done"`
	Expired     bool     `json:"expired"`
	Generations []string `json:"generations"`
}

// QueryStatus handles GET /generate/prompt/{id}.
func (s *Server) QueryStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		view, err := s.Broker.QueryStatus(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{
			Waiting:     view.Waiting,
			Processing:  view.Processing,
			Finished:    view.Finished,
			Done:        view.Done,
			Expired:     view.Expired,
			Generations: view.Generations,
		})
	}
}

type pollBody struct {
	APIKey            string   `json:"api_key" validate:"required"`
	Name              string   `json:"name" validate:"required"`
	Model             string   `json:"model" validate:"required"`
	MaxLength         int      `json:"max_length"`
	MaxContentLength  int      `json:"max_content_length"`
	PriorityUsernames []string `json:"priority_usernames"`
	Softprompts       []string `json:"softprompts"`
}

// PopWork handles POST /generate/pop.
func (s *Server) PopWork() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body pollBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, domain.ErrInvalidArgument)
			return
		}
		if err := getValidator().Struct(body); err != nil {
			writeError(w, domain.ErrInvalidArgument)
			return
		}
		user, err := s.resolveUser(body.APIKey)
		if err != nil {
			writeError(w, err)
			return
		}
		result, err := s.Broker.PollWork(r.Context(), scheduler.PollRequest{
			User:              user,
			WorkerName:        body.Name,
			Model:             body.Model,
			MaxLength:         body.MaxLength,
			MaxContentLength:  body.MaxContentLength,
			Softprompts:       body.Softprompts,
			PriorityUsernames: body.PriorityUsernames,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		if result.Unit == nil {
			writeJSON(w, http.StatusOK, map[string]any{"id": nil, "skipped": result.Skipped})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":         result.Unit.ProcGenID,
			"prompt":     result.Unit.Prompt,
			"payload":    result.Unit.Payload,
			"softprompt": result.Unit.Softprompt,
		})
	}
}

type submitResultBody struct {
	APIKey     string `json:"api_key" validate:"required"`
	ID         string `json:"id" validate:"required"`
	Generation string `json:"generation"`
}

// SubmitResult handles POST /generate/submit.
func (s *Server) SubmitResult() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body submitResultBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, domain.ErrInvalidArgument)
			return
		}
		if err := getValidator().Struct(body); err != nil {
			writeError(w, domain.ErrInvalidArgument)
			return
		}
		reward, err := s.Broker.SubmitResult(r.Context(), body.APIKey, body.ID, body.Generation)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reward": reward})
	}
}

type workerCard struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Model            string  `json:"model"`
	MaxLength        int     `json:"max_length"`
	MaxContentLength int     `json:"max_content_length"`
	Performance      float64 `json:"performance"`
	UptimeSeconds    int64   `json:"uptime"`
	Contributions    int64   `json:"contributions"`
}

func toWorkerCard(w *domain.Worker) workerCard {
	return workerCard{
		ID:               w.ID,
		Name:             w.Name,
		Model:            w.Model,
		MaxLength:        w.MaxLength,
		MaxContentLength: w.MaxContentLength,
		Performance:      w.Performance(),
		UptimeSeconds:    w.UptimeSeconds,
		Contributions:    w.Contributions,
	}
}

// ListServers handles GET /servers.
func (s *Server) ListServers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		workers := s.Registry.ActiveWorkers(now)
		cards := make([]workerCard, 0, len(workers))
		for _, wk := range workers {
			cards = append(cards, toWorkerCard(wk))
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

// GetServer handles GET /servers/{id}.
func (s *Server) GetServer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		wk := s.Registry.FindWorkerByID(id)
		if wk == nil {
			writeError(w, domain.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, toWorkerCard(wk))
	}
}

// ListModels handles GET /models.
func (s *Server) ListModels() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Registry.GetAvailableModels(time.Now()))
	}
}

// Usage handles GET /usage.
func (s *Server) Usage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Registry.UsageByAlias())
	}
}

// Contributions handles GET /contributions.
func (s *Server) Contributions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Registry.ContributionsByAlias())
	}
}
