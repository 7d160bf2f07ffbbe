package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/session"
	"github.com/claude/gymrats/internal/templates"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultSets = 3

// parseExerciseSpec reads "Bench Press:4" as a name and a set count. A
// spec without a count gets defaultSets.
func parseExerciseSpec(spec string) (models.TemplateExercise, error) {
	name, count, found := strings.Cut(spec, ":")
	ex := models.TemplateExercise{Name: strings.TrimSpace(name), Sets: defaultSets}
	if found {
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil {
			return models.TemplateExercise{}, fmt.Errorf("set count in %q: %w", spec, err)
		}
		ex.Sets = n
	}
	return ex, nil
}

// --- Tool definitions ---

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Get the session in progress: state (idle/active), exercises with their sets, elapsed time (MM:SS), running rest timers by exercise id and whether the last save succeeded."),
)

var toolStartSession = mcp.NewTool("start_session",
	mcp.WithDescription("Start a new session from a saved template, or from an inline list of exercises. Fails if a session is already in progress."),
	mcp.WithString("template_id", mcp.Description("ID of a saved template (see list_templates)")),
	mcp.WithString("name", mcp.Description("Session name when no template_id is given")),
	mcp.WithArray("exercises", mcp.Description("Exercises when no template_id is given, each as 'Name:sets' (e.g. 'Bench Press:4'). Sets default to 3."), mcp.Items(map[string]any{"type": "string"})),
)

var toolAddExercise = mcp.NewTool("add_exercise",
	mcp.WithDescription("Append an exercise with blank sets to the current session. Starts a session if none is in progress."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Exercise name")),
	mcp.WithNumber("sets", mcp.Description("Number of sets. Defaults to 3."), mcp.Min(1)),
)

var toolUpdateSet = mcp.NewTool("update_set",
	mcp.WithDescription("Record a value for one set. Values are stored as entered; completed takes true/false."),
	mcp.WithNumber("exercise_index", mcp.Required(), mcp.Description("0-based exercise position")),
	mcp.WithNumber("set_index", mcp.Required(), mcp.Description("0-based set position")),
	mcp.WithString("field", mcp.Required(), mcp.Description("Field to set"), mcp.Enum("weight", "reps", "rpe", "completed")),
	mcp.WithString("value", mcp.Required(), mcp.Description("New value")),
)

var toolToggleRestTimer = mcp.NewTool("toggle_rest_timer",
	mcp.WithDescription("Start the rest countdown for an exercise, or cancel it if it is running."),
	mcp.WithNumber("exercise_index", mcp.Required(), mcp.Description("0-based exercise position")),
	mcp.WithNumber("seconds", mcp.Description("Countdown length. Defaults to the configured rest time.")),
)

var toolFinishSession = mcp.NewTool("finish_session",
	mcp.WithDescription("Finish the session in progress, record it in history and return the sealed session."),
)

var toolCancelSession = mcp.NewTool("cancel_session",
	mcp.WithDescription("Discard the session in progress without recording history."),
)

var toolListTemplates = mcp.NewTool("list_templates",
	mcp.WithDescription("List saved workout templates with their exercises and set counts."),
)

var toolGetHistory = mcp.NewTool("get_history",
	mcp.WithDescription("List finished sessions. With a month, also returns the days of that month with training."),
	mcp.WithString("month", mcp.Description("Month as YYYY-MM. Defaults to all time.")),
)

// --- Tool handlers ---

func (h *handlers) getSession(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := h.b.CurrentSession(ctx)
	if err != nil {
		h.log.Error("mcp get_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(view)
}

func (h *handlers) startSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var start session.StartRequest
	if id := req.GetString("template_id", ""); id != "" {
		start.TemplateID = id
	} else {
		specs := req.GetStringSlice("exercises", nil)
		if len(specs) == 0 {
			return mcp.NewToolResultError("template_id or exercises is required"), nil
		}
		tmpl := &models.Template{Name: req.GetString("name", "Workout")}
		for _, spec := range specs {
			ex, err := parseExerciseSpec(spec)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			tmpl.Exercises = append(tmpl.Exercises, ex)
		}
		start.Template = tmpl
	}

	s, err := h.b.StartSession(ctx, start)
	if err != nil {
		return h.failed("start_session", err), nil
	}
	return jsonResult(s)
}

func (h *handlers) addExercise(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	view, err := h.b.AddExercise(ctx, session.AddExerciseRequest{Name: name, Sets: req.GetInt("sets", defaultSets)})
	if err != nil {
		return h.failed("add_exercise", err), nil
	}
	return jsonResult(view)
}

func (h *handlers) updateSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ex, err := req.RequireInt("exercise_index")
	if err != nil {
		return mcp.NewToolResultError("exercise_index parameter is required"), nil
	}
	set, err := req.RequireInt("set_index")
	if err != nil {
		return mcp.NewToolResultError("set_index parameter is required"), nil
	}
	field, err := req.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError("field parameter is required"), nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError("value parameter is required"), nil
	}

	view, err := h.b.UpdateSet(ctx, ex, set, session.SetUpdate{Field: field, Value: value})
	if err != nil {
		return h.failed("update_set", err), nil
	}
	return jsonResult(view)
}

func (h *handlers) toggleRestTimer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ex, err := req.RequireInt("exercise_index")
	if err != nil {
		return mcp.NewToolResultError("exercise_index parameter is required"), nil
	}
	toggle, err := h.b.ToggleRest(ctx, ex, req.GetInt("seconds", 0))
	if err != nil {
		return h.failed("toggle_rest_timer", err), nil
	}
	return jsonResult(toggle)
}

func (h *handlers) finishSession(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := h.b.FinishSession(ctx)
	if err != nil {
		return h.failed("finish_session", err), nil
	}
	return jsonResult(s)
}

func (h *handlers) cancelSession(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.b.CancelSession(ctx)
	if err != nil {
		return h.failed("cancel_session", err), nil
	}
	return jsonResult(res)
}

func (h *handlers) listTemplates(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := h.b.ListTemplates(ctx)
	if err != nil {
		h.log.Error("mcp list_templates", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(list)
}

func (h *handlers) getHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := h.b.History(ctx, req.GetString("month", ""))
	if err != nil {
		return h.failed("get_history", err), nil
	}
	return jsonResult(report)
}

// failed turns a backend error into a tool error. Rejections the caller can
// fix are not logged.
func (h *handlers) failed(tool string, err error) *mcp.CallToolResult {
	if !userError(err) {
		h.log.Error("mcp "+tool, "error", err)
	}
	return mcp.NewToolResultError(err.Error())
}

func userError(err error) bool {
	for _, target := range []error{
		models.ErrInvalidExercise,
		models.ErrInvalidField,
		models.ErrInvalidTemplate,
		models.ErrNotStarted,
		models.ErrInvalidMonth,
		templates.ErrNotFound,
		templates.ErrNoTemplate,
		session.ErrSessionActive,
		session.ErrNoActiveSession,
		session.ErrInvalidRestDuration,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
