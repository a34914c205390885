package managersvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jortega/taskdesk/internal/domain"
	context_ "github.com/jortega/taskdesk/internal/infra/context"
	"github.com/jortega/taskdesk/internal/infra/logging"
	http_ "github.com/jortega/taskdesk/internal/infra/transport/http"
)

// ErrNoActor is returned when a protected request reaches a handler without
// an authenticated actor in its context.
var ErrNoActor = errors.New("no acting user in request context")

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig
}

// Checkpoint persists the current registry and store snapshots. The transport
// owns the cadence: it checkpoints after every successful mutation.
type Checkpoint func(ctx context.Context) error

// HTTPTransport reduces each inbound request to one Manager call and renders
// the Manager's error taxonomy as HTTP statuses. It also serializes all
// Manager access behind one exclusive lock, since the registry and store are
// not internally synchronized.
type HTTPTransport struct {
	mgr        *Manager
	checkpoint Checkpoint
	mu         sync.Mutex
	log        logging.Logger
	cfg        HTTPTransportConfig
}

// NewHTTPTransport creates a new HTTPTransport. checkpoint may be nil, in
// which case mutations are not persisted (tests use this).
func NewHTTPTransport(mgr *Manager, checkpoint Checkpoint, cfg HTTPTransportConfig) *HTTPTransport {
	return &HTTPTransport{
		mgr:        mgr,
		checkpoint: checkpoint,
		log:        logging.GetLogger("svc.managersvc.http_transport"),
		cfg:        cfg,
	}
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// ServeHTTP implements http.Handler. Login is the only public route; all
// other routes require a valid session token.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	protected := http.NewServeMux()
	protected.HandleFunc("POST /users", ht.HandleRegisterUser)
	protected.HandleFunc("POST /users/{name}/role", ht.HandleSetRole)
	protected.HandleFunc("POST /tasks", ht.HandleCreateTask)
	protected.HandleFunc("GET /tasks", ht.HandleListTasks)
	protected.HandleFunc("GET /tasks/{id}", ht.HandleGetTask)
	protected.HandleFunc("POST /tasks/{id}/assignees", ht.HandleAssign)
	protected.HandleFunc("DELETE /tasks/{id}/assignees/{user}", ht.HandleUnassign)
	protected.HandleFunc("POST /tasks/{id}/state", ht.HandleTransition)
	protected.HandleFunc("POST /tasks/{id}/comments", ht.HandleComment)
	protected.HandleFunc("GET /me/tasks", ht.HandleListOwnTasks)
	protected.HandleFunc("GET /stats/tasks", ht.HandleTaskStats)
	protected.HandleFunc("GET /stats/users", ht.HandleUserStats)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", ht.HandleLogin)
	mux.Handle("/", http_.AuthorizingMiddleware(protected, ht.verifySession, ht.log))
	mux.ServeHTTP(w, r)
}

func (ht *HTTPTransport) verifySession(token string) (string, string, error) {
	name, role, err := ht.mgr.Sessions.Verify(token)
	if err != nil {
		return "", "", fmt.Errorf("verify session: %w", err)
	}

	return name, string(role), nil
}

// statusForError maps the Manager's error taxonomy to HTTP statuses. Every
// error kind is recoverable here; nothing crashes the process.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, ErrInvalidSession),
		errors.Is(err, ErrNoActor):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateUser), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handle wraps a handler body with the shared plumbing: the exclusive Manager
// lock, error rendering, and logging. mutating bodies are followed by a
// persistence checkpoint before the response is committed.
func (ht *HTTPTransport) handle(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	mutating bool,
	body func(ctx context.Context) (any, error),
) {
	ctx := r.Context()
	log := ht.log.With(logging.Group("http", "op", op, "method", r.Method, "url", r.URL.String()))

	ht.mu.Lock()
	defer ht.mu.Unlock()

	payload, err := body(ctx)
	if err == nil && mutating && ht.checkpoint != nil {
		if cpErr := ht.checkpoint(ctx); cpErr != nil {
			err = errors.Join(domain.ErrPersistence, cpErr)
		}
	}

	if err != nil {
		log.ErrorContext(ctx, "request failed", "error", err)
		http.Error(w, http.StatusText(statusForError(err)), statusForError(err))

		return
	}

	log.DebugContext(ctx, "request handled")

	if payload == nil {
		w.WriteHeader(http.StatusNoContent)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.ErrorContext(ctx, "encode response failed", "error", err)
	}
}

// actorName extracts the authenticated actor stamped by the authorizing
// middleware. The Manager re-resolves and re-authorizes it regardless.
func actorName(ctx context.Context) (string, error) {
	actor, ok := context_.ActorFromContext(ctx)
	if !ok || actor.Name == "" {
		return "", ErrNoActor
	}

	return actor.Name, nil
}

// LoginResponse is the payload of a successful login.
type LoginResponse struct {
	Token string      `json:"token"`
	Name  string      `json:"name"`
	Role  domain.Role `json:"role"`
}

// HandleLogin processes login requests.
// Expects form parameters: name, password. Returns a session token.
func (ht *HTTPTransport) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "login", false, func(ctx context.Context) (any, error) {
		if err := r.ParseForm(); err != nil {
			return nil, errors.Join(domain.ErrValidation, err)
		}

		token, user, err := ht.mgr.Login(ctx, r.FormValue("name"), r.FormValue("password"))
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}

		return LoginResponse{Token: token, Name: user.Name, Role: user.Role}, nil
	})
}

// HandleRegisterUser processes user creation requests (admin only).
// Expects form parameters: name, password, role.
func (ht *HTTPTransport) HandleRegisterUser(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "register_user", true, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		if err := r.ParseForm(); err != nil {
			return nil, errors.Join(domain.ErrValidation, err)
		}

		user, err := ht.mgr.RegisterUser(ctx, actor,
			r.FormValue("name"), r.FormValue("password"), domain.Role(r.FormValue("role")))
		if err != nil {
			return nil, fmt.Errorf("register user: %w", err)
		}

		// Never echo the verifier back
		user.PasswordHash = nil

		return user, nil
	})
}

// HandleSetRole processes role change requests (admin only).
// Expects form parameter: role.
func (ht *HTTPTransport) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "set_role", true, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		if err := r.ParseForm(); err != nil {
			return nil, errors.Join(domain.ErrValidation, err)
		}

		target := r.PathValue("name")

		if err := ht.mgr.SetRole(ctx, actor, target, domain.Role(r.FormValue("role"))); err != nil {
			return nil, fmt.Errorf("set role: %w", err)
		}

		return nil, nil
	})
}

// HandleCreateTask processes task creation requests.
// Expects form parameters: title, description (optional).
func (ht *HTTPTransport) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "create_task", true, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		if err := r.ParseForm(); err != nil {
			return nil, errors.Join(domain.ErrValidation, err)
		}

		task, err := ht.mgr.CreateTask(ctx, actor, r.FormValue("title"), r.FormValue("description"))
		if err != nil {
			return nil, fmt.Errorf("create task: %w", err)
		}

		return task, nil
	})
}

// HandleListTasks returns all tasks.
func (ht *HTTPTransport) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "list_tasks", false, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		tasks, err := ht.mgr.ListTasks(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}

		return tasks, nil
	})
}

// HandleGetTask returns one task by ID.
func (ht *HTTPTransport) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "get_task", false, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		task, err := ht.mgr.GetTask(ctx, actor, domain.TaskID(r.PathValue("id")))
		if err != nil {
			return nil, fmt.Errorf("get task: %w", err)
		}

		return task, nil
	})
}

// HandleAssign adds a user to a task's assignee set (supervisor or admin).
// Expects form parameter: user.
func (ht *HTTPTransport) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "assign_task", true, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		if err := r.ParseForm(); err != nil {
			return nil, errors.Join(domain.ErrValidation, err)
		}

		taskID := domain.TaskID(r.PathValue("id"))

		if err := ht.mgr.AssignTask(ctx, actor, taskID, r.FormValue("user")); err != nil {
			return nil, fmt.Errorf("assign task: %w", err)
		}

		return nil, nil
	})
}

// HandleUnassign removes a user from a task's assignee set (supervisor or admin).
func (ht *HTTPTransport) HandleUnassign(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "unassign_task", true, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		taskID := domain.TaskID(r.PathValue("id"))

		if err := ht.mgr.UnassignTask(ctx, actor, taskID, r.PathValue("user")); err != nil {
			return nil, fmt.Errorf("unassign task: %w", err)
		}

		return nil, nil
	})
}

// HandleTransition moves a task along the state graph.
// Expects form parameter: state.
func (ht *HTTPTransport) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "transition_task", true, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		if err := r.ParseForm(); err != nil {
			return nil, errors.Join(domain.ErrValidation, err)
		}

		taskID := domain.TaskID(r.PathValue("id"))

		if err := ht.mgr.TransitionTask(ctx, actor, taskID, domain.TaskState(r.FormValue("state"))); err != nil {
			return nil, fmt.Errorf("transition task: %w", err)
		}

		return nil, nil
	})
}

// HandleComment appends a comment to a task.
// Expects form parameter: text.
func (ht *HTTPTransport) HandleComment(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "comment_task", true, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		if err := r.ParseForm(); err != nil {
			return nil, errors.Join(domain.ErrValidation, err)
		}

		taskID := domain.TaskID(r.PathValue("id"))

		comment, err := ht.mgr.CommentTask(ctx, actor, taskID, r.FormValue("text"))
		if err != nil {
			return nil, fmt.Errorf("comment task: %w", err)
		}

		return comment, nil
	})
}

// HandleListOwnTasks returns the tasks the actor is assigned to.
func (ht *HTTPTransport) HandleListOwnTasks(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "list_own_tasks", false, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		tasks, err := ht.mgr.ListOwnTasks(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("list own tasks: %w", err)
		}

		return tasks, nil
	})
}

// HandleTaskStats returns task counts per state (supervisor or admin).
func (ht *HTTPTransport) HandleTaskStats(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "task_stats", false, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		stats, err := ht.mgr.TaskStats(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("task stats: %w", err)
		}

		return stats, nil
	})
}

// HandleUserStats returns user counts per role (supervisor or admin).
func (ht *HTTPTransport) HandleUserStats(w http.ResponseWriter, r *http.Request) {
	ht.handle(w, r, "user_stats", false, func(ctx context.Context) (any, error) {
		actor, err := actorName(ctx)
		if err != nil {
			return nil, err
		}

		stats, err := ht.mgr.UserStats(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("user stats: %w", err)
		}

		return stats, nil
	})
}
