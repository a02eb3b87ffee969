package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokenctl.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name string
		json string
		env  map[string]string
		want Config
	}{
		{
			name: "defaults",
			want: Config{ServerURL: "http://127.0.0.1:8080", Timeout: 10 * time.Second},
		},
		{
			name: "json overlay",
			json: `{"server_url":"http://api:8080","timeout":"3s"}`,
			want: Config{ServerURL: "http://api:8080", Timeout: 3 * time.Second},
		},
		{
			name: "env wins over json",
			json: `{"server_url":"http://api:8080"}`,
			env:  map[string]string{"TOKENKEEPER_SERVER_URL": "http://env:9090", "TOKENKEEPER_TOKEN": "abc"},
			want: Config{ServerURL: "http://env:9090", Token: "abc", Timeout: 10 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TOKENKEEPER_SERVER_URL", "")
			t.Setenv("TOKENKEEPER_TOKEN", "")
			os.Unsetenv("TOKENKEEPER_SERVER_URL")
			os.Unsetenv("TOKENKEEPER_TOKEN")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.json != "" {
				path = writeTempJSON(t, tt.json)
			}

			got, err := Load(path)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = Load(writeTempJSON(t, "{"))
	require.Error(t, err)

	t.Setenv("TOKENKEEPER_TIMEOUT", "soon")
	_, err = Load("")
	require.Error(t, err)
}
