// Package cdntest provides an in-process deployment CDN for tests.
package cdntest

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
)

// HistoryPath is where the server publishes the deploy history.
const HistoryPath = "/DeployHistory.txt"

// Server serves a deploy history, manifests and packages from memory.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	history  string
	objects  map[string][]byte
	statuses map[string]int
	requests map[string]int
}

// NewServer starts a Server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		objects:  make(map[string][]byte),
		statuses: make(map[string]int),
		requests: make(map[string]int),
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)

	return s
}

// HistoryURL is the absolute deploy history address.
func (s *Server) HistoryURL() string {
	return s.URL + HistoryPath
}

// SetHistory replaces the deploy history text.
func (s *Server) SetHistory(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = text
}

// AddVersion publishes a manifest listing the packages in order and the packages themselves.
func (s *Server) AddVersion(hash string, order []string, packages map[string][]byte) {
	s.SetObject(hash+"-"+release.ManifestFilename, []byte(Manifest(order...)))

	for name, body := range packages {
		s.SetObject(hash+"-"+name, body)
	}
}

// SetObject publishes body under /name.
func (s *Server) SetObject(name string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects["/"+name] = body
}

// Fail makes /name answer with status.
func (s *Server) Fail(name string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses["/"+name] = status
}

// Requests returns how many times /name was requested.
func (s *Server) Requests(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.requests["/"+name]
}

// PackageRequests counts requests for any package of hash.
func (s *Server) PackageRequests(hash string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int

	for path, count := range s.requests {
		if strings.HasPrefix(path, "/"+hash+"-") && strings.HasSuffix(path, release.PackageSuffix) {
			n += count
		}
	}

	return n
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	status := s.statuses[r.URL.Path]
	body, ok := s.objects[r.URL.Path]

	if r.URL.Path == HistoryPath {
		body, ok = []byte(s.history), s.history != ""
	}
	s.mu.Unlock()

	switch {
	case status != 0:
		w.WriteHeader(status)
	case !ok:
		http.NotFound(w, r)
	default:
		_, _ = w.Write(body)
	}
}

// Manifest renders a v0 manifest listing packages in order.
func Manifest(packages ...string) string {
	var b strings.Builder

	b.WriteString(release.ManifestFormat + "\r\n")

	for _, p := range packages {
		b.WriteString(p + "\r\n0123456789abcdef0123456789abcdef\r\n100\r\n200\r\n")
	}

	return b.String()
}

// File is one entry of a package built by Zip.
type File struct {
	Name string
	Body string
}

// Zip builds a deflated package; names ending in "/" become directory entries.
func Zip(t testing.TB, files ...File) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for _, f := range files {
		method := zip.Deflate
		if strings.HasSuffix(f.Name, "/") {
			method = zip.Store
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: method})
		require.NoError(t, err)

		_, err = w.Write([]byte(f.Body))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// HistoryLine renders one deploy history line for variant.
func HistoryLine(v release.Variant, hash, when string) string {
	return v.HistoryMarker() + " " + hash + " at " + when + ", file version: 0, 1, 0, 1, git hash: 0 ...\r\n"
}
