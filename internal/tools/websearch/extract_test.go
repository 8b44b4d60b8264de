package websearch

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateURLForSSRF(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://example.com/page", false},
		{"valid http", "http://example.com", false},
		{"file scheme", "file:///etc/passwd", true},
		{"ftp scheme", "ftp://example.com", true},
		{"localhost", "http://localhost:8080", true},
		{"localhost subdomain", "http://foo.localhost", true},
		{"loopback ip", "http://127.0.0.1/admin", true},
		{"private ip", "http://192.168.1.1", true},
		{"metadata endpoint", "http://169.254.169.254/latest/meta-data/", true},
		{"no hostname", "http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateURLForSSRF(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateURLForSSRF(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestIsPrivateOrReservedIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := isPrivateOrReservedIP(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("isPrivateOrReservedIP(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestExtractReadableContent(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head>
	<title>Test Article</title>
	<meta name="description" content="A short description">
	<script>console.log("noise")</script>
	<style>.hidden { display: none }</style>
</head>
<body>
	<nav>Home | About</nav>
	<article>
		<h1>Test Article</h1>
		<p>` + strings.Repeat("This is the main article body. ", 20) + `</p>
	</article>
	<footer>Copyright</footer>
</body>
</html>`

	e := NewContentExtractor()
	content := e.extractReadableContent(html)

	if !strings.Contains(content, "Title: Test Article") {
		t.Error("content missing title")
	}
	if !strings.Contains(content, "Description: A short description") {
		t.Error("content missing meta description")
	}
	if !strings.Contains(content, "main article body") {
		t.Error("content missing article text")
	}
	if strings.Contains(content, "console.log") {
		t.Error("script content should be stripped")
	}
	if strings.Contains(content, "Home | About") {
		t.Error("nav content should be stripped")
	}
}

func TestExtractFromTestServer(t *testing.T) {
	body := `<html><head><title>Served Page</title></head><body><main><p>` +
		strings.Repeat("Served content paragraph. ", 15) + `</p></main></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
	defer server.Close()

	e := NewContentExtractorForTesting()
	content, err := e.Extract(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(content, "Served Page") {
		t.Error("extracted content missing title")
	}
	if !strings.Contains(content, "Served content paragraph") {
		t.Error("extracted content missing body")
	}
}

func TestExtractRejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	e := NewContentExtractorForTesting()
	if _, err := e.Extract(context.Background(), server.URL); err == nil {
		t.Error("expected error for non-HTML content type")
	}
}

func TestExtractRejectsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	e := NewContentExtractorForTesting()
	if _, err := e.Extract(context.Background(), server.URL); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestExtractBlocksLocalhostByDefault(t *testing.T) {
	e := NewContentExtractor()
	if _, err := e.Extract(context.Background(), "http://127.0.0.1:9/whatever"); err == nil {
		t.Error("default extractor should block loopback URLs")
	}
}

func TestCleanText(t *testing.T) {
	e := NewContentExtractor()

	input := "Hello&nbsp;&amp;&nbsp;welcome\n\n\n\n\nto   the    page"
	got := e.cleanText(input)

	if !strings.Contains(got, "Hello & welcome") {
		t.Errorf("entities not decoded: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("newlines not normalized: %q", got)
	}
	if strings.Contains(got, "   ") {
		t.Errorf("spaces not collapsed: %q", got)
	}
}
