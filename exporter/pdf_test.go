package exporter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-dashboard/config"
	"car-dashboard/utils"
)

func TestPageURL(t *testing.T) {
	tests := []struct {
		base, path, want string
		wantErr          bool
	}{
		{base: "http://localhost:8501", path: "/", want: "http://localhost:8501/"},
		{base: "http://localhost:8501/", path: "/explorer", want: "http://localhost:8501/explorer"},
		{base: "http://127.0.0.1:9000/app/", path: "predictor", want: "http://127.0.0.1:9000/app/predictor"},
		{base: "localhost:8501", path: "/", wantErr: true},
		{base: "", path: "/", wantErr: true},
	}
	for _, tt := range tests {
		got, err := pageURL(tt.base, tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.base)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestOutputFile(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "dashboard-home.pdf"), outputFile("out", Page{Name: "home"}))
	assert.Equal(t, filepath.Join("out", "dashboard-shap-local-3.pdf"), outputFile("out", Page{Name: "shap/local 3"}))
}

func TestFindChromeBinaryPrefersConfigured(t *testing.T) {
	assert.Equal(t, "/custom/chrome", findChromeBinary("/custom/chrome"))
}

func TestAllocatorOptionsAddsExecPath(t *testing.T) {
	base := allocatorOptions("")
	withBin := allocatorOptions("/custom/chrome")
	assert.Len(t, withBin, len(base)+1)
}

func TestExportWritesPDFs(t *testing.T) {
	bin := findChromeBinary(os.Getenv("CHROME_BIN"))
	if bin == "" {
		t.Skip("no Chrome binary available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><h1>" + r.URL.Path + "</h1></body></html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := config.ExportConfig{Dir: dir, ChromeBin: bin, MaxConcurrency: 2, MaxRetries: 1}
	e := New(cfg, srv.URL, utils.NewNopLogger())

	pages := []Page{{Name: "home", Path: "/"}, {Name: "explorer", Path: "/explorer"}, {Name: "home", Path: "/"}}
	results, err := e.Export(context.Background(), pages)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "explorer", results[0].Page)
	assert.Equal(t, "home", results[1].Page)

	for _, r := range results {
		data, err := os.ReadFile(r.File)
		require.NoError(t, err)
		assert.Equal(t, "%PDF", string(data[:4]))
		assert.Equal(t, len(data), r.Bytes)
	}
}
