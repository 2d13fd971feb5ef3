package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kilnworks/kiln/internal/definition"
	"github.com/kilnworks/kiln/internal/events"
	"github.com/kilnworks/kiln/internal/gateway"
	"github.com/kilnworks/kiln/internal/generator"
	"github.com/kilnworks/kiln/internal/registry"
	"github.com/kilnworks/kiln/internal/store"
	"github.com/kilnworks/kiln/internal/templates"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine     generator.Engine
	gen        *generator.Generator
	tplStore   *templates.FileStore
	reg        *registry.Registry
	bus        *events.Bus
	ws         *gateway.WSAdapter
	sandboxDir string
	agentsDir  string
	logger     *zap.Logger
}

// NewHandler creates a new API handler. gen may be nil when no database is
// configured; the /db routes then answer 503. bus may be nil; deployment
// events are simply not published.
func NewHandler(
	engine generator.Engine,
	gen *generator.Generator,
	tplStore *templates.FileStore,
	reg *registry.Registry,
	bus *events.Bus,
	ws *gateway.WSAdapter,
	sandboxDir, agentsDir string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:     engine,
		gen:        gen,
		tplStore:   tplStore,
		reg:        reg,
		bus:        bus,
		ws:         ws,
		sandboxDir: sandboxDir,
		agentsDir:  agentsDir,
		logger:     logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api/creator", func(r chi.Router) {
		r.Get("/schema", h.getSchema)
		r.Post("/template", h.createTemplate)
		r.Post("/add-tool", h.addTool)
		r.Post("/validate", h.validateTemplate)
		r.Post("/generate-code", h.generateCode)
		r.Post("/deploy", h.deploy)
		r.Get("/sandbox-agents", h.listSandboxAgents)

		r.Get("/templates", h.listTemplates)
		r.Post("/templates/{id}", h.saveTemplate)
		r.Get("/templates/{id}", h.getTemplate)
		r.Delete("/templates/{id}", h.deleteTemplate)

		r.Route("/db", func(r chi.Router) {
			r.Use(h.requireStore)
			r.Post("/agents", h.saveAgentToDB)
			r.Get("/agents", h.listAgentsFromDB)
			r.Get("/agents/{id}", h.getAgentFromDB)
			r.Delete("/agents/{id}", h.deleteAgentFromDB)
			r.Get("/agents/{id}/tools", h.getAgentTools)
			r.Get("/agents/{id}/capabilities", h.getAgentCapabilities)
			r.Get("/agents/{id}/relationships", h.getAgentRelationships)
			r.Post("/deploy/{id}", h.deployFromDB)
			r.Post("/generate-code/{id}", h.generateCodeFromDB)
		})
	})

	if h.ws != nil {
		r.Get("/ws", h.ws.ServeHTTP)
	}

	return r
}

// requireStore answers 503 on /db routes when no database is configured.
func (h *Handler) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.gen == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "definition store not configured"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	doc, err := generator.SchemaDocument()
	if err != nil {
		h.logger.Error("schema document failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": doc})
}

// agentSpec is the request body for creating a template.
type agentSpec struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Icon         string   `json:"icon,omitempty"`
	Prompt       string   `json:"prompt"`
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var spec agentSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var missing []string
	for field, v := range map[string]string{
		"name": spec.Name, "type": spec.Type,
		"description": spec.Description, "prompt": spec.Prompt,
	} {
		if v == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	tpl, err := h.engine.Render(definition.Definition{
		Name:         spec.Name,
		Type:         definition.AgentType(spec.Type),
		Description:  spec.Description,
		Capabilities: spec.Capabilities,
		Icon:         spec.Icon,
		Prompt:       spec.Prompt,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// addToolRequest pairs an existing template with the tool to append.
type addToolRequest struct {
	Template definition.Template `json:"template"`
	Tool     definition.ToolSpec `json:"tool"`
}

func (h *Handler) addTool(w http.ResponseWriter, r *http.Request) {
	var req addToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	updated, err := h.engine.AppendTool(req.Template, req.Tool)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// validationResult is the structured verdict for a template.
type validationResult struct {
	Valid   bool     `json:"valid"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func (h *Handler) validateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl definition.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeJSON(w, http.StatusOK, validationResult{
			Valid:   false,
			Message: "template is not parseable: " + err.Error(),
			Errors:  []string{err.Error()},
		})
		return
	}
	violations := h.engine.Validate(tpl)
	if len(violations) > 0 {
		writeJSON(w, http.StatusOK, validationResult{
			Valid:   false,
			Message: fmt.Sprintf("template has %d violation(s)", len(violations)),
			Errors:  violations,
		})
		return
	}
	writeJSON(w, http.StatusOK, validationResult{Valid: true, Message: "template is valid"})
}

func (h *Handler) generateCode(w http.ResponseWriter, r *http.Request) {
	var tpl definition.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	code, err := h.engine.Generate(tpl)
	if err != nil {
		h.logger.Error("code generation failed", zap.String("agent", tpl.Agent.Name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

// deployRequest carries the template and deployment options.
type deployRequest struct {
	Template definition.Template `json:"template"`
	Options  deployOptions       `json:"options"`
}

type deployOptions struct {
	Sandbox *bool `json:"sandbox"`
}

// deploymentResult is the structured outcome of a deploy. Failures never
// surface as transport errors.
type deploymentResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	AgentID string `json:"agent_id,omitempty"`
}

func (h *Handler) deploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, deploymentResult{
			Success: false,
			Message: "invalid deploy request: " + err.Error(),
		})
		return
	}
	sandbox := true
	if req.Options.Sandbox != nil {
		sandbox = *req.Options.Sandbox
	}

	result := h.deployTemplate(r, req.Template, sandbox)
	writeJSON(w, http.StatusOK, result)
}

// deployableName restricts agent names to identifier characters. The name
// becomes a file name under the deploy dir, so path separators and dots
// must never pass.
var deployableName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// deployTemplate renders the template, writes the source to the target
// area, and registers the running instance. All failures come back as a
// structured result.
func (h *Handler) deployTemplate(r *http.Request, tpl definition.Template, sandbox bool) deploymentResult {
	name := tpl.Agent.Name
	if name == "" {
		return deploymentResult{Success: false, Message: "template has no agent name"}
	}
	if !deployableName.MatchString(name) {
		return deploymentResult{Success: false, Message: fmt.Sprintf("invalid agent name %q", name)}
	}

	code, err := h.engine.Generate(tpl)
	if err != nil {
		h.publishDeployment(r, name, sandbox, false, err.Error())
		return deploymentResult{Success: false, Message: "code generation failed: " + err.Error()}
	}

	dir := h.agentsDir
	if sandbox {
		dir = h.sandboxDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return deploymentResult{Success: false, Message: "create deploy dir: " + err.Error()}
	}
	if err := os.WriteFile(filepath.Join(dir, name+".go"), []byte(code), 0o644); err != nil {
		return deploymentResult{Success: false, Message: "write agent source: " + err.Error()}
	}

	inst := generator.Instantiate(tpl, sandbox)
	h.reg.Register(inst)
	h.publishDeployment(r, name, sandbox, true, "")

	return deploymentResult{
		Success: true,
		Message: fmt.Sprintf("Agent %s deployed successfully", name),
		AgentID: name,
	}
}

func (h *Handler) publishDeployment(r *http.Request, name string, sandbox, success bool, msg string) {
	err := h.bus.Publish(r.Context(), events.DeploymentEvent{
		AgentName: name,
		Action:    "deployed",
		Sandbox:   sandbox,
		Success:   success,
		Message:   msg,
	})
	if err != nil {
		h.logger.Warn("deployment event publish failed", zap.Error(err))
	}
}

// sandboxAgent is one row of the sandbox listing.
type sandboxAgent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	File    string `json:"file"`
	Sandbox bool   `json:"sandbox"`
}

func (h *Handler) listSandboxAgents(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.sandboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []sandboxAgent{})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	agents := []sandboxAgent{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".go")
		agents = append(agents, sandboxAgent{
			ID:      id,
			Name:    capitalize(id),
			File:    filepath.Join(h.sandboxDir, e.Name()),
			Sandbox: true,
		})
	}
	writeJSON(w, http.StatusOK, agents)
}

// templateSummary is the response shape for template storage operations.
type templateSummary struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Type        string              `json:"type"`
	File        string              `json:"file"`
	Template    definition.Template `json:"template"`
}

func (h *Handler) summarize(id string, tpl definition.Template) templateSummary {
	name := tpl.Agent.Name
	if name == "" {
		name = id
	}
	return templateSummary{
		ID:          id,
		Name:        name,
		Description: tpl.Agent.Description,
		Type:        string(tpl.Agent.Type),
		File:        id + ".json",
		Template:    tpl,
	}
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	all, err := h.tplStore.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ids, err := h.tplStore.IDs()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	out := []templateSummary{}
	for _, id := range ids {
		out = append(out, h.summarize(id, all[id]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) saveTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var tpl definition.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.tplStore.Put(id, tpl); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.summarize(id, tpl))
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tpl, err := h.tplStore.Get(id)
	if err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("template %s not found", id)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.summarize(id, tpl))
}

func (h *Handler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.tplStore.Delete(id); err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("template %s not found", id)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("template %s deleted", id)})
}

// --- Database-backed definitions ---

func (h *Handler) saveAgentToDB(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	def, tools, caps, err := h.gen.SaveDefinition(r.Context(), raw)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                 def.ID,
		"name":               def.Name,
		"type":               def.Type,
		"description":        def.Description,
		"icon":               def.Icon,
		"tools_count":        len(tools),
		"capabilities_count": len(caps),
		"created_at":         def.CreatedAt,
		"updated_at":         def.UpdatedAt,
	})
}

func (h *Handler) listAgentsFromDB(w http.ResponseWriter, r *http.Request) {
	rows, err := h.gen.Store().ListDefinitions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) getAgentFromDB(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	tpl, err := h.gen.LoadDefinition(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *Handler) deleteAgentFromDB(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	hard := r.URL.Query().Get("hard") == "true"
	if err := h.gen.Store().DeleteDefinition(r.Context(), id, hard); err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("agent %d deleted successfully", id),
	})
}

func (h *Handler) getAgentTools(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	if _, err := h.gen.Store().GetDefinition(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	tools, err := h.gen.Store().ToolsForAgent(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if tools == nil {
		tools = []definition.ToolSpec{}
	}
	writeJSON(w, http.StatusOK, tools)
}

func (h *Handler) getAgentCapabilities(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	if _, err := h.gen.Store().GetDefinition(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	caps, err := h.gen.Store().CapabilitiesForAgent(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if caps == nil {
		caps = []definition.Capability{}
	}
	writeJSON(w, http.StatusOK, caps)
}

func (h *Handler) getAgentRelationships(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	rel, err := h.gen.Store().Relationships(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (h *Handler) deployFromDB(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusOK, deploymentResult{
			Success: false,
			Message: fmt.Sprintf("invalid agent id %q", idStr),
		})
		return
	}

	var opts deployOptions
	_ = json.NewDecoder(r.Body).Decode(&opts)
	sandbox := true
	if opts.Sandbox != nil {
		sandbox = *opts.Sandbox
	}

	inst, err := h.gen.Deploy(r.Context(), id, h.reg, sandbox)
	if err != nil {
		h.publishDeployment(r, idStr, sandbox, false, err.Error())
		writeJSON(w, http.StatusOK, deploymentResult{
			Success: false,
			Message: "deploy failed: " + err.Error(),
		})
		return
	}
	h.publishDeployment(r, inst.Name, sandbox, true, "")
	writeJSON(w, http.StatusOK, deploymentResult{
		Success: true,
		Message: fmt.Sprintf("Agent %s deployed successfully", inst.Name),
		AgentID: inst.Name,
	})
}

func (h *Handler) generateCodeFromDB(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	code, err := h.gen.GenerateFromStore(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

// agentID parses the {id} path parameter; a malformed id is a 404-class
// outcome since no such resource can exist.
func (h *Handler) agentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("agent %q not found", idStr),
		})
		return 0, false
	}
	return id, true
}

// writeStoreError maps pipeline errors onto the transport: not-found stays
// distinguishable, schema problems are client errors, duplicates are
// conflicts, everything else is an internal failure.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	var schemaErr *generator.SchemaError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &schemaErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, generator.ErrConfiguration):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("store operation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
