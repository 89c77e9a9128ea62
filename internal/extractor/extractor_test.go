package extractor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samvad-hq/report-enhancer/internal/domain"
	"github.com/samvad-hq/report-enhancer/internal/logger"
	"github.com/samvad-hq/report-enhancer/pkg/command"
	"github.com/samvad-hq/report-enhancer/pkg/httpclient"
	"github.com/samvad-hq/report-enhancer/pkg/sites"
)

const paragraphOne = "Security researchers observed a ransomware crew breaching a regional hospital network through an unpatched VPN appliance, moving laterally within hours and encrypting imaging servers before staff noticed anything unusual on the monitoring dashboards."
const paragraphTwo = "The intrusion began with a credential stuffing campaign against the remote access portal. Investigators recovered tooling that matched earlier operations attributed to the same affiliate, including a custom loader and a modified remote monitoring agent."
const paragraphThree = "Hospital administrators said patient care continued on paper records while incident responders rebuilt the domain controllers. The attackers demanded payment in cryptocurrency and threatened to leak stolen records on their extortion site."

var articleHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Ransomware crew hits hospital</title>
<meta property="og:title" content="Ransomware crew hits hospital">
<meta property="og:image" content="/img/top.jpg">
<meta name="author" content="Jane Doe">
<meta name="keywords" content="ransomware, healthcare, malware">
<meta property="article:published_time" content="2024-03-09T17:04:00Z">
</head>
<body>
<nav><a href="/">Home</a> <a href="/news">News</a></nav>
<article>
<h1>Ransomware crew hits hospital</h1>
<p>` + paragraphOne + `</p>
<p><img src="img/inline.png" alt="diagram"></p>
<p>` + paragraphTwo + `</p>
<p>` + paragraphThree + `</p>
</article>
<footer>Copyright</footer>
</body>
</html>`

type fakeResponse struct {
	status int
	body   []byte
}

func (f fakeResponse) Body() []byte        { return f.body }
func (f fakeResponse) StatusCode() int     { return f.status }
func (f fakeResponse) Header() http.Header { return http.Header{} }

type fakeHTTP struct {
	resp    fakeResponse
	err     error
	headers map[string]string
	urls    []string
}

func (f *fakeHTTP) Get(_ context.Context, url string, headers map[string]string) (httpclient.Response, error) {
	f.urls = append(f.urls, url)
	f.headers = headers
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeTechnique struct {
	name  string
	res   *domain.ArticleResult
	err   error
	panic bool
	calls int
}

func (f *fakeTechnique) Name() string { return f.name }

func (f *fakeTechnique) Attempt(context.Context, string) (*domain.ArticleResult, error) {
	f.calls++
	if f.panic {
		panic("boom")
	}
	return f.res, f.err
}

func TestParseBuildsArticle(t *testing.T) {
	res, err := Parse([]byte(articleHTML), "text/html; charset=utf-8", "https://news.example/2024/story")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Title != "Ransomware crew hits hospital" {
		t.Fatalf("title = %q", res.Title)
	}
	if !strings.Contains(res.Text, "unpatched VPN appliance") || !strings.Contains(res.Text, "extortion site") {
		t.Fatalf("text missing paragraphs: %q", res.Text)
	}
	if !strings.Contains(res.Text, "\n\n") {
		t.Fatalf("expected paragraph breaks in text")
	}
	if !res.Valid() {
		t.Fatalf("expected a valid article")
	}
	if len(res.Authors) == 0 || res.Authors[0] != "Jane Doe" {
		t.Fatalf("authors = %#v", res.Authors)
	}
	if got := res.PublishedDay(); got != "2024-03-09" {
		t.Fatalf("published = %q", got)
	}
	if res.TopImage != "https://news.example/img/top.jpg" {
		t.Fatalf("top image = %q", res.TopImage)
	}
	found := false
	for _, img := range res.Images {
		if img == "https://news.example/2024/img/inline.png" {
			found = true
		}
	}
	if !found {
		t.Fatalf("inline image missing: %#v", res.Images)
	}
	if len(res.Keywords) != 3 || res.Keywords[2] != "malware" {
		t.Fatalf("keywords = %#v", res.Keywords)
	}
	if !strings.HasSuffix(res.Summary, "...") {
		t.Fatalf("summary should be truncated: %q", res.Summary)
	}
	if res.HTML != articleHTML {
		t.Fatalf("raw html should be kept")
	}
}

func TestContentTextSeparatesBlocks(t *testing.T) {
	got := contentText("<div><h2>Heading</h2><p>First  <b>bold</b>\n line</p><script>x()</script><ul><li>one</li><li>two</li></ul></div>")
	want := "Heading\n\nFirst bold line\n\none\n\ntwo"
	if got != want {
		t.Fatalf("contentText = %q, want %q", got, want)
	}
}

func TestAuthorsStripsPrefixAndSplits(t *testing.T) {
	got := authors("By Jane Doe and John Roe", []string{"jane doe", "https://x.example/profile", "Ann Lee"})
	want := []string{"Jane Doe", "John Roe", "Ann Lee"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("authors = %#v", got)
	}
}

func TestExtractorLadderStopsAtFirstValid(t *testing.T) {
	longText := strings.Repeat("word ", 40)
	failing := &fakeTechnique{name: "one", err: errors.New("down")}
	short := &fakeTechnique{name: "two", res: &domain.ArticleResult{Text: "too short"}}
	panicking := &fakeTechnique{name: "three", panic: true}
	good := &fakeTechnique{name: "four", res: &domain.ArticleResult{Text: longText}}
	unused := &fakeTechnique{name: "five", res: &domain.ArticleResult{Text: longText}}

	e := New(nil, failing, short, panicking, good, unused)
	res, ok := e.Extract(context.Background(), "https://news.example/a")
	if !ok {
		t.Fatalf("expected success")
	}
	if res.ExtractionMethod != "four" {
		t.Fatalf("method = %q", res.ExtractionMethod)
	}
	if unused.calls != 0 {
		t.Fatalf("ladder should stop after the first valid result")
	}
	if short.res.Error != errTextTooShort || short.res.ExtractionMethod != "two" {
		t.Fatalf("short attempt not annotated: %#v", short.res)
	}
	if res.Error != "" {
		t.Fatalf("successful result must carry no error, got %q", res.Error)
	}
}

func TestExtractorAllFail(t *testing.T) {
	e := New(nil, &fakeTechnique{name: "a", err: errors.New("x")}, &fakeTechnique{name: "b"})
	if res, ok := e.Extract(context.Background(), "https://news.example/a"); ok || res != nil {
		t.Fatalf("expected absence, got %#v", res)
	}
}

func TestDefaultLadderAllTechniquesFail(t *testing.T) {
	standard := &fakeHTTP{resp: fakeResponse{status: http.StatusForbidden, body: []byte(articleHTML)}}
	runner := &fakeRunner{err: errors.New("exit status 8")}
	session := &fakeHTTP{resp: fakeResponse{status: http.StatusServiceUnavailable, body: []byte(articleHTML)}}
	sessions := 0

	e := NewDefault(Options{
		UserAgent: "UA/1",
		TempDir:   t.TempDir(),
		HTTP:      standard,
		Session: func() httpclient.Client {
			sessions++
			return session
		},
		Runner: runner,
		Sleep:  func(context.Context, time.Duration) error { return nil },
		Jitter: func(min, _ time.Duration) time.Duration { return min },
	}, logger.NopLogger{})

	res, ok := e.Extract(context.Background(), "https://news.example/story")
	if ok || res != nil {
		t.Fatalf("expected absence, got %#v ok=%v", res, ok)
	}
	if len(standard.urls) != 1 || standard.urls[0] != "https://news.example/story" {
		t.Fatalf("standard fetch not attempted: %v", standard.urls)
	}
	if runner.cmd.Path != "wget" {
		t.Fatalf("wget not attempted: %#v", runner.cmd)
	}
	if sessions != 1 || len(session.urls) != 2 || session.urls[1] != "https://news.example/story" {
		t.Fatalf("advanced fetch not attempted: sessions=%d urls=%v", sessions, session.urls)
	}
}

func TestExtractorRejectsUnsupportedURL(t *testing.T) {
	tech := &fakeTechnique{name: "a"}
	e := New(nil, tech)
	for _, u := range []string{"", "ftp://files.example/x", "not a url", "https://"} {
		if _, ok := e.Extract(context.Background(), u); ok {
			t.Fatalf("expected %q to be rejected", u)
		}
	}
	if tech.calls != 0 {
		t.Fatalf("techniques must not run for invalid urls")
	}
}

func TestStandardTechniqueHeadersAndValidation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sites.yaml")
	if err := os.WriteFile(file, []byte("sites:\n  - domain: news.example\n    headers:\n      X-Api-Key: k\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg, err := sites.Load(file)
	if err != nil {
		t.Fatalf("sites.Load: %v", err)
	}

	client := &fakeHTTP{resp: fakeResponse{status: http.StatusOK, body: []byte(articleHTML)}}
	tech := &standardTechnique{client: client, userAgent: "UA/1", sites: reg}
	res, err := tech.Attempt(context.Background(), "https://news.example/story")
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("expected valid article")
	}
	if client.headers["User-Agent"] != "UA/1" || client.headers["Referer"] != "https://www.google.com/" {
		t.Fatalf("unexpected headers %#v", client.headers)
	}
	if client.headers["X-Api-Key"] != "k" {
		t.Fatalf("site header not merged: %#v", client.headers)
	}
	if _, ok := client.headers["Accept-Encoding"]; ok {
		t.Fatalf("Accept-Encoding must be left to the transport")
	}

	client.resp = fakeResponse{status: http.StatusOK, body: []byte("<html></html>")}
	if _, err := tech.Attempt(context.Background(), "https://news.example/story"); err == nil {
		t.Fatalf("expected short html error")
	}
	client.resp = fakeResponse{status: http.StatusForbidden, body: []byte(articleHTML)}
	if _, err := tech.Attempt(context.Background(), "https://news.example/story"); err == nil {
		t.Fatalf("expected status error")
	}
}

type fakeRunner struct {
	write []byte
	err   error
	cmd   command.Command
	out   string
}

func (f *fakeRunner) Run(_ context.Context, cmd command.Command) (command.Result, error) {
	f.cmd = cmd
	for i, a := range cmd.Args {
		if a == "-O" && i+1 < len(cmd.Args) {
			f.out = cmd.Args[i+1]
		}
	}
	if f.write != nil {
		if err := os.WriteFile(f.out, f.write, 0o600); err != nil {
			return command.Result{}, err
		}
	}
	if f.err != nil {
		return command.Result{ExitCode: 8, Stderr: []byte("404")}, f.err
	}
	return command.Result{}, nil
}

func TestDirectTechniqueCleansUpTempFile(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{write: []byte(articleHTML)}
	tech := &directTechnique{runner: runner, wget: "wget", userAgent: "UA/1", tempDir: dir}

	res, err := tech.Attempt(context.Background(), "https://news.example/story")
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("expected valid article")
	}
	args := strings.Join(runner.cmd.Args, " ")
	for _, want := range []string{"--user-agent=UA/1", "--timeout=30", "--tries=2", "--quiet"} {
		if !strings.Contains(args, want) {
			t.Fatalf("missing %q in %q", want, args)
		}
	}
	if runner.cmd.Args[len(runner.cmd.Args)-1] != "https://news.example/story" {
		t.Fatalf("url should be the last argument: %q", args)
	}
	if _, err := os.Stat(runner.out); !os.IsNotExist(err) {
		t.Fatalf("temp file should be removed, stat err=%v", err)
	}

	failing := &fakeRunner{write: []byte(articleHTML), err: errors.New("exit 8")}
	tech.runner = failing
	if _, err := tech.Attempt(context.Background(), "https://news.example/story"); err == nil {
		t.Fatalf("expected wget failure")
	}
	if _, err := os.Stat(failing.out); !os.IsNotExist(err) {
		t.Fatalf("temp file should be removed after failure")
	}

	tech.runner = &fakeRunner{write: []byte("tiny")}
	if _, err := tech.Attempt(context.Background(), "https://news.example/story"); err == nil {
		t.Fatalf("expected short output failure")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp dir should be empty, found %d entries", len(entries))
	}
}

func TestAdvancedTechniqueWarmsSession(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			http.SetCookie(w, &http.Cookie{Name: "visited", Value: "1", Path: "/"})
		case "/story":
			if _, err := r.Cookie("visited"); err != nil {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			if r.Header.Get("Referer") != srvURL || r.Header.Get("Sec-Fetch-Site") != "same-origin" || r.Header.Get("Sec-Purpose") != "prefetch" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(articleHTML))
		case "/blocked":
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	var slept []time.Duration
	tech := &advancedTechnique{
		newSession: func() httpclient.Client { return httpclient.NewSession() },
		userAgent:  "UA/1",
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
		jitter: func(min, _ time.Duration) time.Duration { return min },
		log:    logger.NopLogger{},
	}

	res, err := tech.Attempt(context.Background(), srv.URL+"/story")
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("expected valid article")
	}
	if len(slept) != 2 || slept[0] != 2*time.Second || slept[1] != time.Second {
		t.Fatalf("unexpected sleeps %v", slept)
	}

	if _, err := tech.Attempt(context.Background(), srv.URL+"/blocked"); err == nil {
		t.Fatalf("expected status failure")
	}
}

func TestAdvancedTechniqueStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tech := &advancedTechnique{
		newSession: func() httpclient.Client { return &fakeHTTP{err: errors.New("offline")} },
		sleep:      SleepContext,
		jitter:     UniformJitter,
		log:        logger.NopLogger{},
	}
	if _, err := tech.Attempt(ctx, "https://news.example/story"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestUniformJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := UniformJitter(2*time.Second, 4*time.Second)
		if d < 2*time.Second || d > 4*time.Second {
			t.Fatalf("jitter out of range: %v", d)
		}
	}
	if UniformJitter(time.Second, time.Second) != time.Second {
		t.Fatalf("degenerate range should return min")
	}
}

func TestRobotsPolicyBlocksDisallowedPaths(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits++
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	policy := NewRobotsPolicy(httpclient.NewRestyClient(5*time.Second), "UA/1")
	if policy.Allowed(context.Background(), srv.URL+"/private/report") {
		t.Fatalf("expected /private to be disallowed")
	}
	if !policy.Allowed(context.Background(), srv.URL+"/public/report") {
		t.Fatalf("expected /public to be allowed")
	}
	if hits != 1 {
		t.Fatalf("robots.txt should be fetched once per origin, got %d", hits)
	}

	tech := &fakeTechnique{name: "a", res: &domain.ArticleResult{Text: strings.Repeat("x", 200)}}
	e := New(nil, tech).WithRobots(policy)
	if _, ok := e.Extract(context.Background(), srv.URL+"/private/report"); ok || tech.calls != 0 {
		t.Fatalf("disallowed url must skip the ladder")
	}
}

func TestRobotsPolicyAllowsOnFetchError(t *testing.T) {
	policy := NewRobotsPolicy(&fakeHTTP{err: errors.New("offline")}, "UA/1")
	if !policy.Allowed(context.Background(), "https://news.example/x") {
		t.Fatalf("fetch failure should allow")
	}
}
