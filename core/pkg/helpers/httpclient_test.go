package helpers

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHTTPClientWithTLSOptions(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	testcases := []struct {
		name  string
		cfg   func(t *testing.T) config.TLSConfig
		check func(t *testing.T, cli *http.Client, err error)
	}{
		{
			name: "UntrustedServer",
			cfg: func(t *testing.T) config.TLSConfig {
				return config.TLSConfig{}
			},
			check: func(t *testing.T, cli *http.Client, err error) {
				require.NoError(t, err)
				_, err = cli.Get(srv.URL)
				assert.Error(t, err)
			},
		},
		{
			name: "InsecureSkipVerify",
			cfg: func(t *testing.T) config.TLSConfig {
				return config.TLSConfig{InsecureSkipVerify: true}
			},
			check: func(t *testing.T, cli *http.Client, err error) {
				require.NoError(t, err)
				res, err := cli.Get(srv.URL)
				require.NoError(t, err)
				assert.Equal(t, http.StatusNoContent, res.StatusCode)
			},
		},
		{
			name: "TrustedCAFile",
			cfg: func(t *testing.T) config.TLSConfig {
				path := filepath.Join(t.TempDir(), "ca.pem")
				require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}), 0600))
				return config.TLSConfig{CACertificateFile: path}
			},
			check: func(t *testing.T, cli *http.Client, err error) {
				require.NoError(t, err)
				res, err := cli.Get(srv.URL)
				require.NoError(t, err)
				assert.Equal(t, http.StatusNoContent, res.StatusCode)
			},
		},
		{
			name: "MissingCAFile",
			cfg: func(t *testing.T) config.TLSConfig {
				return config.TLSConfig{CACertificateFile: filepath.Join(t.TempDir(), "missing.pem")}
			},
			check: func(t *testing.T, cli *http.Client, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cli, err := BuildHTTPClientWithTLSOptions(&http.Client{}, tc.cfg(t))
			if err == nil {
				cli, err = BuildHTTPClientWithTracerLogger(cli, logrus.NewEntry(logrus.New()))
			}
			tc.check(t, cli, err)
		})
	}
}
