// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Dossier tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/docservice"
	"github.com/starford/dossier/internal/metastore"
	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/rag"
)

const (
	keysURI  = "dossier://metadata-keys"
	guideURI = "dossier://usage"
)

// Server wraps the MCP server with Dossier tools.
type Server struct {
	mcp  *server.MCPServer
	rag  *rag.Pipeline
	meta *metastore.Store
	docs *docservice.Service
}

// New creates a new MCP server with all Dossier tools registered.
func New(pipeline *rag.Pipeline, meta *metastore.Store, docs *docservice.Service) *Server {
	s := &Server{rag: pipeline, meta: meta, docs: docs}

	s.mcp = server.NewMCPServer(
		"Dossier",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Semantic search over the indexed documents. Company, region, market or "+
			"version names in the query restrict the search to matching files. Returns the best "+
			"reranked passages with their source file and page."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question or search text")),
		mcp.WithNumber("limit", mcp.Description("Maximum passages to return (default 5)")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the indexed documents. Returns the answer "+
			"followed by the sources it was built from."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question, in any language")),
	), s.ask)

	s.mcp.AddTool(mcp.NewTool("get_metadata",
		mcp.WithDescription("Get the extracted metadata record (market, document type, region, "+
			"company, version) of a document."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Base file name (e.g. cps.pdf)")),
	), s.getMetadata)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the documents under the watched root, with their index status."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Download a document from an http(s) URL or a base64 data URI into "+
			"the watched root. The watcher indexes it shortly after. "+
			"Read the dossier://usage resource for the accepted formats."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("path", mcp.Description("Target path under the root (default: name from the URL)")),
	), s.importDocument)

	s.mcp.AddResource(
		mcp.NewResource(keysURI, "Metadata keys",
			mcp.WithResourceDescription("Metadata keys kept for each document and usable as query filters."),
			mcp.WithMIMEType("application/json"),
		),
		s.readKeysResource,
	)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Usage guide",
			mcp.WithResourceDescription("How to query and feed the document base."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type passage struct {
	models.Source
	Content string `json:"content"`
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 5)

	ret, err := s.rag.Retrieve(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cands := ret.Candidates
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]passage, len(cands))
	for i, c := range cands {
		out[i] = passage{Source: models.SourceFromCandidate(c), Content: c.Chunk.Content}
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) ask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, sources, err := s.rag.Answer(ctx, question)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(answer))
	if len(sources) > 0 {
		b.WriteString("\n\nSources:")
		for _, src := range sources {
			fmt.Fprintf(&b, "\n- %s, page %d (%s)", src.Source, src.Page+1, src.ID)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) getMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fields, err := s.meta.Get(ctx, filename)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no metadata for %s", filename)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, _ := json.MarshalIndent(fields, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.docs.List(ctx, req.GetString("folder", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no documents"), nil
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = it.Path
		if !it.Indexed {
			lines[i] += " (not indexed)"
		}
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readKeysResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(metastore.Keys())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      keysURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) readGuideResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     UsageGuide,
		},
	}, nil
}
