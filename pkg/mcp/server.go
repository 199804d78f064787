// Package mcp exposes the constraint editor over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rmax-ai/rigbind/pkg/engine"
	"github.com/rmax-ai/rigbind/pkg/reports"
	"github.com/rmax-ai/rigbind/pkg/retarget"
	"github.com/rmax-ai/rigbind/pkg/scene"
)

const historyLimit = 50

// Server adapts the constraint editor to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	editor    *engine.Editor
	scenePath string
	history   reports.ReportStore
}

// NewServer creates a new MCP server instance operating on the scene at
// scenePath. history may be nil when no journal is configured.
func NewServer(editor *engine.Editor, scenePath string, history reports.ReportStore) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"rigbind",
			"1.0.0",
		),
		editor:    editor,
		scenePath: scenePath,
		history:   history,
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	// rigbind://scene
	s.mcpServer.AddResource(mcp.NewResource(
		"rigbind://scene",
		"Scene Document",
		mcp.WithResourceDescription("The node hierarchy and constraint components of the open scene"),
		mcp.WithMIMEType("application/yaml"),
	), s.handleReadScene)

	if s.history == nil {
		return
	}
	// rigbind://history
	s.mcpServer.AddResource(mcp.NewResource(
		"rigbind://history",
		"Operation History",
		mcp.WithResourceDescription("Recent copy and reset operations, newest first"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadHistory)
}

// --- Tools ---

func kindOption() mcp.ToolOption {
	return mcp.WithString("kind",
		mcp.Required(),
		mcp.Description("Constraint kind"),
		mcp.Enum("rotation", "parent", "position"),
	)
}

func sceneOption() mcp.ToolOption {
	return mcp.WithString("scene", mcp.Description("Scene file under the served scene's directory, relative to it (defaults to the served scene)"))
}

func (s *Server) registerTools() {
	// copy_constraints
	s.mcpServer.AddTool(mcp.NewTool(
		"copy_constraints",
		mcp.WithDescription("Bind every node under 'to' to the node at the same pre-order position under 'from'. Fails without changes when the node counts differ."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Path of the source root, e.g. 'Mocap/Hips' or '#<id>'")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Path of the target root")),
		kindOption(),
		sceneOption(),
	), s.handleCopy)

	// plan_constraints
	s.mcpServer.AddTool(mcp.NewTool(
		"plan_constraints",
		mcp.WithDescription("Show the node pairs copy_constraints would bind, without changing the scene"),
		mcp.WithString("from", mcp.Required(), mcp.Description("Path of the source root")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Path of the target root")),
		kindOption(),
		sceneOption(),
	), s.handlePlan)

	// reset_constraints
	s.mcpServer.AddTool(mcp.NewTool(
		"reset_constraints",
		mcp.WithDescription("Remove every constraint of the given kind under a root"),
		mcp.WithString("root", mcp.Required(), mcp.Description("Path of the root to clear")),
		kindOption(),
		sceneOption(),
	), s.handleReset)

	// describe_root
	s.mcpServer.AddTool(mcp.NewTool(
		"describe_root",
		mcp.WithDescription("Report the name of a root's topmost ancestor and how many nodes a copy would visit under it"),
		mcp.WithString("root", mcp.Required(), mcp.Description("Path of the root")),
		sceneOption(),
	), s.handleDescribe)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"rigbind-aware",
		mcp.WithPromptDescription("Explains roots, pre-order matching and constraint kinds"),
	), s.handleGetPrompt)
}

// --- Handlers ---

// ErrSceneOutsideDir is returned for a scene argument that does not name a
// scene document in the served scene's directory tree.
var ErrSceneOutsideDir = errors.New("scene must be a .yaml, .yml or .json file under the served scene's directory")

// sceneArg resolves the optional scene argument. Relative paths are taken
// from the served scene's directory, and the result must stay inside it.
func (s *Server) sceneArg(request mcp.CallToolRequest) (string, error) {
	p := mcp.ParseString(request, "scene", "")
	if p == "" {
		return s.scenePath, nil
	}
	dir, err := filepath.Abs(filepath.Dir(s.scenePath))
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrSceneOutsideDir, p)
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml", ".json":
	default:
		return "", fmt.Errorf("%w: %s", ErrSceneOutsideDir, p)
	}
	return p, nil
}

func (s *Server) handleReadScene(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sc, err := s.editor.Load(s.scenePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene: %w", err)
	}
	data, err := scene.Encode(sc, scene.FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scene: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/yaml",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadHistory(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	r := reports.NewHistoryReport(s.history)
	reader, err := r.Generate(ctx, reports.ReportParams{Limit: historyLimit, Format: reports.ReportFormatJSON})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) copyRequest(request mcp.CallToolRequest) (engine.CopyRequest, error) {
	kind, err := retarget.ParseKind(mcp.ParseString(request, "kind", ""))
	if err != nil {
		return engine.CopyRequest{}, err
	}
	path, err := s.sceneArg(request)
	if err != nil {
		return engine.CopyRequest{}, err
	}
	return engine.CopyRequest{
		Scene: path,
		From:  mcp.ParseString(request, "from", ""),
		To:    mcp.ParseString(request, "to", ""),
		Kind:  kind,
	}, nil
}

func (s *Server) handleCopy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := s.copyRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.editor.Copy(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("copy failed (%s): %v", engine.FailureReason(err), err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Copied %s constraints: %d pairs, %d newly bound", req.Kind, res.Pairs, res.Bound)), nil
}

func (s *Server) handlePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := s.copyRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entries, err := s.editor.Plan(req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("plan failed (%s): %v", engine.FailureReason(err), err)), nil
	}

	var b strings.Builder
	for _, row := range reports.PlanRows(entries) {
		fmt.Fprintf(&b, "%d\t%s -> %s\t%s\n", row.Index, row.Source, row.Target, row.Action)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := retarget.ParseKind(mcp.ParseString(request, "kind", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, err := s.sceneArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req := engine.ResetRequest{
		Scene: path,
		Root:  mcp.ParseString(request, "root", ""),
		Kind:  kind,
	}
	res, err := s.editor.Reset(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reset failed (%s): %v", engine.FailureReason(err), err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Removed %d %s constraints under %s", res.Removed, kind, req.Root)), nil
}

func (s *Server) handleDescribe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.sceneArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.editor.Describe(path, mcp.ParseString(request, "root", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("describe failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Root: %s\nNodes: %d", d.RootName, d.NodeCount)), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "rigbind-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are editing a scene with rigbind, which copies constraints from one skeleton onto a structurally identical one.

Concepts:
- Root: a node picked by path ('Avatar/Armature/Hips') or by id ('#<id>').
- Flattening: every node under a root in pre-order (parent, then children in order). Inactive subtrees are skipped unless the server was started with include-inactive.
- Matching: the i-th node under 'from' drives the i-th node under 'to'. Names are ignored, so both hierarchies must have the same shape.
- Kinds: rotation, parent and position constraints are independent of each other.

Call 'plan_constraints' before 'copy_constraints' when unsure. A count mismatch changes nothing; fix the hierarchy and retry.
Copying again is safe: targets that already have a source are skipped. Use 'reset_constraints' to start over.
`

	return mcp.NewGetPromptResult(
		"rigbind-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
