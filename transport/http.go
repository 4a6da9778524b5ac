package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"

	api "github.com/omalloc/ember/api/todo"
	"github.com/omalloc/ember/todo"
)

const (
	OperationList   = "/ember.v1.Tasks/List"
	OperationCreate = "/ember.v1.Tasks/Create"
	OperationEdit   = "/ember.v1.Tasks/Edit"
	OperationDelete = "/ember.v1.Tasks/Delete"
	OperationCancel = "/ember.v1.Tasks/CancelDelete"
	OperationToggle = "/ember.v1.Tasks/ToggleComplete"
	OperationSort   = "/ember.v1.Tasks/Sort"
	OperationReload = "/ember.v1.Tasks/Reload"
)

type Option struct {
	Addr    string
	Timeout time.Duration
	Logger  log.Logger
}

type TaskView struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Completed     bool   `json:"completed"`
	PendingDelete bool   `json:"pending_delete"`
}

type Reply struct {
	Tasks   []TaskView `json:"tasks"`
	Outcome string     `json:"outcome,omitempty"`
	Durable bool       `json:"durable"`
	Warning string     `json:"warning,omitempty"`
}

type TextRequest struct {
	Text string `json:"text"`
}

type SortRequest struct {
	Ascending bool `json:"ascending"`
}

type handler struct {
	store api.Manager
}

// NewHTTPServer exposes the task store operations over HTTP/JSON.
func NewHTTPServer(opt Option, store api.Manager) *khttp.Server {
	logger := opt.Logger
	if logger == nil {
		logger = log.GetLogger()
	}

	opts := []khttp.ServerOption{
		khttp.Middleware(
			recovery.Recovery(),
			logging.Server(logger),
		),
	}
	if opt.Addr != "" {
		opts = append(opts, khttp.Address(opt.Addr))
	}
	if opt.Timeout > 0 {
		opts = append(opts, khttp.Timeout(opt.Timeout))
	}
	srv := khttp.NewServer(opts...)

	h := &handler{store: store}
	r := srv.Route("/v1")
	r.GET("/tasks", h.list)
	r.POST("/tasks", h.create)
	r.POST("/tasks/sort", h.sort)
	r.POST("/tasks/reload", h.reload)
	r.PUT("/tasks/{id}", h.edit)
	r.DELETE("/tasks/{id}", h.delete)
	r.POST("/tasks/{id}/restore", h.restore)
	r.POST("/tasks/{id}/toggle", h.toggle)
	return srv
}

func (h *handler) list(ctx khttp.Context) error {
	q := ctx.Query().Get("q")
	return h.serve(ctx, OperationList, q, func() (*Reply, error) {
		return reply(h.store.View(q), "", nil)
	})
}

func (h *handler) create(ctx khttp.Context) error {
	var in TextRequest
	if err := ctx.Bind(&in); err != nil {
		return kerrors.BadRequest("INVALID_BODY", err.Error())
	}
	return h.serve(ctx, OperationCreate, &in, func() (*Reply, error) {
		return result(h.store.Create(in.Text))
	})
}

func (h *handler) edit(ctx khttp.Context) error {
	var in TextRequest
	if err := ctx.Bind(&in); err != nil {
		return kerrors.BadRequest("INVALID_BODY", err.Error())
	}
	id := ctx.Vars().Get("id")
	return h.serve(ctx, OperationEdit, &in, func() (*Reply, error) {
		return result(h.store.Edit(id, in.Text))
	})
}

func (h *handler) delete(ctx khttp.Context) error {
	id := ctx.Vars().Get("id")
	return h.serve(ctx, OperationDelete, id, func() (*Reply, error) {
		return result(h.store.Delete(id))
	})
}

func (h *handler) restore(ctx khttp.Context) error {
	id := ctx.Vars().Get("id")
	return h.serve(ctx, OperationCancel, id, func() (*Reply, error) {
		return result(h.store.CancelDelete(id))
	})
}

func (h *handler) toggle(ctx khttp.Context) error {
	id := ctx.Vars().Get("id")
	return h.serve(ctx, OperationToggle, id, func() (*Reply, error) {
		return result(h.store.ToggleComplete(id))
	})
}

func (h *handler) sort(ctx khttp.Context) error {
	var in SortRequest
	if err := ctx.Bind(&in); err != nil {
		return kerrors.BadRequest("INVALID_BODY", err.Error())
	}
	return h.serve(ctx, OperationSort, &in, func() (*Reply, error) {
		return result(h.store.Sort(in.Ascending))
	})
}

func (h *handler) reload(ctx khttp.Context) error {
	return h.serve(ctx, OperationReload, nil, func() (*Reply, error) {
		h.store.Load()
		return reply(h.store.View(""), "", nil)
	})
}

// serve runs fn through the server middleware chain and writes its reply.
func (h *handler) serve(ctx khttp.Context, operation string, req any, fn func() (*Reply, error)) error {
	khttp.SetOperation(ctx, operation)
	next := ctx.Middleware(func(context.Context, any) (any, error) {
		return fn()
	})
	out, err := next(ctx, req)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

func result(res api.Result, err error) (*Reply, error) {
	return reply(res, res.Outcome.String(), err)
}

// reply builds the response body. A failed write-through is not an HTTP
// error: the change is live in memory and the reply says it is not durable.
func reply(res api.Result, outcome string, err error) (*Reply, error) {
	out := &Reply{
		Tasks:   make([]TaskView, 0, len(res.Tasks)),
		Outcome: outcome,
		Durable: true,
	}
	if err != nil {
		if !errors.Is(err, todo.ErrPersistenceUnavailable) {
			return nil, kerrors.InternalServer("STORE_FAILURE", err.Error())
		}
		out.Durable = false
		out.Warning = err.Error()
	}

	pending := make(map[string]struct{})
	for _, id := range res.Pending {
		pending[id] = struct{}{}
	}
	for _, t := range res.Tasks {
		_, p := pending[t.ID]
		out.Tasks = append(out.Tasks, TaskView{
			ID:            t.ID,
			Text:          t.Text,
			Completed:     t.Completed,
			PendingDelete: p,
		})
	}
	return out, nil
}
