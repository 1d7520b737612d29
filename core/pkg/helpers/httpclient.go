package helpers

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/sirupsen/logrus"
)

func BuildHTTPClientWithTLSOptions(cli *http.Client, cfg config.TLSConfig) (*http.Client, error) {
	caPool, err := x509.SystemCertPool()
	if err != nil || caPool == nil {
		caPool = x509.NewCertPool()
	}

	tlsConfig := &tls.Config{
		RootCAs: caPool,
	}

	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.CACertificateFile != "" {
		cert, err := ReadCertificateFromFile(cfg.CACertificateFile)
		if err != nil {
			return nil, err
		}

		caPool.AddCert(cert)
	}

	cli.Transport = &http.Transport{
		TLSClientConfig: tlsConfig,
	}

	return cli, nil
}

func ReadCertificateFromFile(filePath string) (*x509.Certificate, error) {
	certFileBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	certDERBlock, _ := pem.Decode(certFileBytes)
	if certDERBlock == nil {
		return nil, fmt.Errorf("no PEM block found in %s", filePath)
	}

	return x509.ParseCertificate(certDERBlock.Bytes)
}

func BuildHTTPClientWithTracerLogger(cli *http.Client, logger *logrus.Entry) (*http.Client, error) {
	transport := http.DefaultTransport
	if cli.Transport != nil {
		transport = cli.Transport
	}

	cli.Transport = loggingRoundTripper{
		transport: transport,
		logger:    logger,
	}

	return cli, nil
}

type loggingRoundTripper struct {
	transport http.RoundTripper
	logger    *logrus.Entry
}

func (lrt loggingRoundTripper) RoundTrip(req *http.Request) (res *http.Response, err error) {
	start := time.Now()
	dReq, _ := httputil.DumpRequestOut(req, false)
	res, err = lrt.transport.RoundTrip(req)
	if err != nil {
		lrt.logger.Errorf("%s: %s", req.URL.String(), err)
	} else {
		log := lrt.logger.WithField("response", fmt.Sprintf("%s %d: %s", req.Method, res.StatusCode, time.Since(start)))
		log.Debug(req.URL.String())
		dRes, _ := httputil.DumpResponse(res, false)
		log.Tracef("%s\n%s", dReq, dRes)
	}

	return
}
