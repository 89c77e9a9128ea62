package opencti

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testOptions() Options {
	return Options{
		Timeout:       2 * time.Second,
		UploadTimeout: 2 * time.Second,
		RetryWait:     time.Millisecond,
		RetryMaxWait:  5 * time.Millisecond,
	}
}

type graphqlCall struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func graphqlServer(t *testing.T, handle func(call graphqlCall) string) (*httptest.Server, *[]graphqlCall) {
	t.Helper()
	var calls []graphqlCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/graphql" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		var call graphqlCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			t.Errorf("decode request: %v", err)
		}
		calls = append(calls, call)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, handle(call))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestTestConnection(t *testing.T) {
	srv, _ := graphqlServer(t, func(graphqlCall) string {
		return `{"data":{"about":{"version":"6.0.5"}}}`
	})
	c := New(srv.URL+"/", "tok", testOptions(), nil)

	version, err := c.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if version != "6.0.5" {
		t.Fatalf("unexpected version %q", version)
	}
}

func TestQuerySurfacesGraphQLErrors(t *testing.T) {
	srv, _ := graphqlServer(t, func(graphqlCall) string {
		return `{"data":null,"errors":[{"message":"ForbiddenAccess"},{"message":"second"}]}`
	})
	c := New(srv.URL, "tok", testOptions(), nil)

	err := c.Query(context.Background(), aboutQuery, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "ForbiddenAccess") || !strings.Contains(err.Error(), "second") {
		t.Fatalf("expected graphql errors, got %v", err)
	}
}

func TestQueryRetriesUnavailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"data":{"about":{"version":"6.0.5"}}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", testOptions(), nil)
	if _, err := c.TestConnection(context.Background()); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestQueryDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", testOptions(), nil)
	if _, err := c.TestConnection(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", hits.Load())
	}
}

func reportEdge(i int) string {
	return fmt.Sprintf(`{"node":{"id":"r%d","name":"Report %d","description":"","report_types":["Threat-Report"],
"objectLabel":[{"id":"l1","value":"apt","color":"#fff"}],
"externalReferences":{"edges":[{"node":{"url":"http://localhost/storage/get/x"}},{"node":{"url":"https://news.example/%d"}}]}}}`, i, i, i)
}

func TestLatestReportsMapsFields(t *testing.T) {
	srv, calls := graphqlServer(t, func(graphqlCall) string {
		return `{"data":{"reports":{"edges":[` + reportEdge(1) + `],"pageInfo":{"hasNextPage":true,"endCursor":"c1"}}}}`
	})
	c := New(srv.URL, "tok", testOptions(), nil)

	reports, err := c.LatestReports(context.Background(), 20)
	if err != nil {
		t.Fatalf("LatestReports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	r := reports[0]
	if r.ID != "r1" || r.Name != "Report 1" || !r.HasLabel("apt") {
		t.Fatalf("unexpected report %#v", r)
	}
	if got := r.SourceURL(); got != "https://news.example/1" {
		t.Fatalf("unexpected source url %q", got)
	}
	if got := r.NormalizedTypes(); len(got) != 1 || got[0] != "threat-report" {
		t.Fatalf("unexpected types %v", got)
	}
	call := (*calls)[0]
	if call.Variables["first"] != float64(20) {
		t.Fatalf("unexpected variables %v", call.Variables)
	}
	if _, ok := call.Variables["after"]; ok {
		t.Fatalf("first page must not send a cursor")
	}
}

func TestAllReportsPagesUntilLimit(t *testing.T) {
	srv, calls := graphqlServer(t, func(call graphqlCall) string {
		switch call.Variables["after"] {
		case nil:
			return `{"data":{"reports":{"edges":[` + reportEdge(1) + `,` + reportEdge(2) + `],"pageInfo":{"hasNextPage":true,"endCursor":"c1"}}}}`
		case "c1":
			return `{"data":{"reports":{"edges":[` + reportEdge(3) + `,` + reportEdge(4) + `],"pageInfo":{"hasNextPage":true,"endCursor":"c2"}}}}`
		default:
			return `{"data":{"reports":{"edges":[` + reportEdge(5) + `],"pageInfo":{"hasNextPage":false,"endCursor":"c3"}}}}`
		}
	})
	c := New(srv.URL, "tok", testOptions(), nil)

	limited, err := c.AllReports(context.Background(), 2, 3)
	if err != nil {
		t.Fatalf("AllReports: %v", err)
	}
	if len(limited) != 3 || limited[2].ID != "r3" {
		t.Fatalf("expected three reports, got %d", len(limited))
	}
	if len(*calls) != 2 {
		t.Fatalf("expected two page requests, got %d", len(*calls))
	}

	all, err := c.AllReports(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("AllReports: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected five reports, got %d", len(all))
	}
}

func TestMutations(t *testing.T) {
	srv, calls := graphqlServer(t, func(call graphqlCall) string {
		if strings.Contains(call.Query, "labelAdd") {
			return `{"data":{"labelAdd":{"id":"label-1"}}}`
		}
		return `{"data":{"stixDomainObjectEdit":{"fieldPatch":{"id":"r1"}}}}`
	})
	c := New(srv.URL, "tok", testOptions(), nil)
	ctx := context.Background()

	if err := c.UpdateDescription(ctx, "r1", "Title: x"); err != nil {
		t.Fatalf("UpdateDescription: %v", err)
	}
	patch := (*calls)[0]
	input := patch.Variables["input"].([]any)[0].(map[string]any)
	if input["key"] != "description" || input["value"].([]any)[0] != "Title: x" {
		t.Fatalf("unexpected field patch %v", input)
	}

	for i := 0; i < 2; i++ {
		id, err := c.EnsureLabel(ctx, "rss-enhanced", "#ff9900")
		if err != nil || id != "label-1" {
			t.Fatalf("EnsureLabel = %q, %v", id, err)
		}
	}
	if len(*calls) != 2 {
		t.Fatalf("label id should be cached, got %d calls", len(*calls))
	}

	if err := c.AddLabel(ctx, "r1", "label-1"); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	rel := (*calls)[2].Variables["input"].(map[string]any)
	if rel["toId"] != "label-1" || rel["relationship_type"] != "object-label" {
		t.Fatalf("unexpected relation input %v", rel)
	}
}

func TestUploadFileMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		var ops graphqlCall
		if err := json.Unmarshal([]byte(r.FormValue("operations")), &ops); err != nil {
			t.Errorf("decode operations: %v", err)
		}
		if !strings.Contains(ops.Query, "importPush") || ops.Variables["id"] != "r1" {
			t.Errorf("unexpected operations %+v", ops)
		}
		if got := r.FormValue("map"); got != `{"0":["variables.file"]}` {
			t.Errorf("unexpected map %q", got)
		}
		file, header, err := r.FormFile("0")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		if header.Filename != "report.pdf" || string(body) != "%PDF-1.4" {
			t.Errorf("unexpected file %s %q", header.Filename, body)
		}
		io.WriteString(w, `{"data":{"stixDomainObjectEdit":{"importPush":{"id":"f1","name":"report.pdf"}}}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", testOptions(), nil)
	if err := c.UploadFile(context.Background(), "r1", "report.pdf", "application/pdf", []byte("%PDF-1.4")); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
}
