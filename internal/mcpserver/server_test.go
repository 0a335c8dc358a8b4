package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dossier/internal/chunk"
	"github.com/starford/dossier/internal/docservice"
	"github.com/starford/dossier/internal/extract"
	"github.com/starford/dossier/internal/metastore"
	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/query"
	"github.com/starford/dossier/internal/rag"
	"github.com/starford/dossier/internal/storage"
	"github.com/starford/dossier/internal/testutil"
)

type testEnv struct {
	srv   *Server
	root  string
	store storage.Provider
	meta  *metastore.Store
}

func testServer(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	root, store := testutil.TestRoot(t)
	db := testutil.TestDB(t)
	chunks := []models.Chunk{
		{Source: "cps.pdf", Page: 0, Content: "délai d'exécution de douze mois"},
		{Source: "cps.pdf", Page: 1, Content: "pénalités de retard"},
		{Source: "rc.pdf", Page: 0, Content: "règlement de consultation"},
	}
	chunk.AssignIDs(chunks)
	if err := db.Add(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	meta := metastore.New(db, logger)
	gen := &testutil.Generator{
		Reply:  `{"marche": null, "region": null, "societe": null, "version": null}`,
		Tokens: []string{"Douze", " mois."},
	}
	planner := query.NewPlanner(extract.NewQuery(gen), meta, logger)
	pipeline := rag.New(db, planner, &testutil.Reranker{}, gen, rag.WithLogger(logger))

	srv := New(pipeline, meta, docservice.NewService(store, db))
	return testEnv{srv: srv, root: root, store: store, meta: meta}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_documents":
		result, err = srv.searchDocuments(ctx, req)
	case "ask":
		result, err = srv.ask(ctx, req)
	case "get_metadata":
		result, err = srv.getMetadata(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "import_document":
		result, err = srv.importDocument(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSearchDocuments(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "search_documents", map[string]any{"query": "délai d'exécution", "limit": 2})
	if r.IsError {
		t.Fatalf("search error: %s", resultText(r))
	}
	var got []passage
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("passages = %d, want 2", len(got))
	}
	if got[0].ID != "cps.pdf:0:0" || !strings.Contains(got[0].Content, "délai") {
		t.Errorf("best passage = %+v", got[0])
	}
}

func TestSearchDocumentsMissingQuery(t *testing.T) {
	env := testServer(t)
	r := callTool(t, env.srv, "search_documents", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing query")
	}
}

func TestAsk(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "ask", map[string]any{"question": "Quel est le délai d'exécution ?"})
	text := resultText(r)
	if !strings.HasPrefix(text, "Douze mois.") {
		t.Errorf("answer = %q", text)
	}
	if !strings.Contains(text, "Sources:") || !strings.Contains(text, "cps.pdf, page 1") {
		t.Errorf("sources missing in %q", text)
	}
}

func TestGetMetadata(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "get_metadata", map[string]any{"filename": "cps.pdf"})
	if !r.IsError {
		t.Error("expected error for missing record")
	}

	if _, err := env.meta.Put(context.Background(), "cps.pdf", map[string]string{"Société": "ADI"}); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, env.srv, "get_metadata", map[string]any{"filename": "cps.pdf"})
	var fields map[string]string
	if err := json.Unmarshal([]byte(resultText(r)), &fields); err != nil {
		t.Fatal(err)
	}
	if fields["societe"] != "ADI" {
		t.Errorf("fields = %v", fields)
	}
}

func TestListDocuments(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "list_documents", map[string]any{})
	if text := resultText(r); text != "no documents" {
		t.Errorf("empty root = %q", text)
	}

	_ = env.store.Write("lot1/cps.pdf", []byte("%PDF-1.4"))
	r = callTool(t, env.srv, "list_documents", map[string]any{})
	if text := resultText(r); text != "lot1/cps.pdf (not indexed)" {
		t.Errorf("list = %q", text)
	}
}

func TestReadKeysResource(t *testing.T) {
	env := testServer(t)

	contents, err := env.srv.readKeysResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents = %T", contents[0])
	}
	var keys []string
	if err := json.Unmarshal([]byte(tc.Text), &keys); err != nil {
		t.Fatal(err)
	}
	if len(keys) != len(metastore.Keys()) {
		t.Errorf("keys = %v", keys)
	}
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func TestImportDocumentDataURI(t *testing.T) {
	env := testServer(t)
	pdf := []byte("%PDF-1.4 minimal")

	r := callTool(t, env.srv, "import_document", map[string]any{
		"url":  dataURI("application/pdf", pdf),
		"path": "imports/cps lot 1.pdf",
	})
	if r.IsError {
		t.Fatalf("import error: %s", resultText(r))
	}
	var res importResult
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if res.Path != "imports/cps lot 1.pdf" || res.Size != int64(len(pdf)) {
		t.Errorf("result = %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(env.root, "imports", "cps lot 1.pdf"))
	if err != nil || string(data) != string(pdf) {
		t.Fatalf("file on disk = %q, %v", data, err)
	}

	r = callTool(t, env.srv, "import_document", map[string]any{
		"url":  dataURI("application/pdf", pdf),
		"path": "imports/cps lot 1.pdf",
	})
	if !r.IsError {
		t.Error("expected error when the document exists")
	}
}

func TestImportDocumentRejects(t *testing.T) {
	env := testServer(t)

	cases := map[string]map[string]any{
		"magic mismatch":   {"url": dataURI("application/pdf", []byte("not a pdf"))},
		"unsupported mime": {"url": dataURI("image/png", []byte("\x89PNG"))},
		"unsupported path": {"url": dataURI("application/pdf", []byte("%PDF-1.4")), "path": "notes.txt"},
		"not base64":       {"url": "data:application/pdf,plain"},
		"bad scheme":       {"url": "ftp://example.com/a.pdf"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if r := callTool(t, env.srv, "import_document", args); !r.IsError {
				t.Errorf("expected error, got %q", resultText(r))
			}
		})
	}
}

func TestImportDocumentBlocksLoopback(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer ts.Close()

	r := callTool(t, env.srv, "import_document", map[string]any{"url": ts.URL + "/cps.pdf"})
	if !r.IsError || !strings.Contains(resultText(r), "blocked host") {
		t.Errorf("loopback import = %q", resultText(r))
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"cps.pdf":            "cps.pdf",
		"../../etc/x.pdf":    "x.pdf",
		"Règlement (RC).pdf": "Règlement _RC_.pdf",
		"a;b|c.docx":         "a_b_c.docx",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
