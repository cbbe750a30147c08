package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/lectern/internal/lecture"
)

const maxRecordingSize = 100 << 20 // 100 MB

var allowedAudio = map[string]bool{
	"audio/webm": true,
	"audio/ogg":  true,
	"audio/wav":  true,
	"audio/mpeg": true,
	"audio/mp4":  true,
}

func (s *Server) importRecording(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	seconds := int(req.GetFloat("duration_seconds", 0))
	if seconds < 0 {
		return mcp.NewToolResultError("duration_seconds must not be negative"), nil
	}

	var mime string
	var data []byte
	if strings.HasPrefix(rawURL, "data:") {
		mime, data, err = lecture.DecodeDataURI(rawURL)
	} else {
		mime, data, err = s.download(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	mime = normalizeAudioMIME(mime)
	if !allowedAudio[mime] {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported audio type: %q (allowed: webm, ogg, wav, mpeg, mp4)", mime)), nil
	}
	if len(data) > maxRecordingSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxRecordingSize)), nil
	}
	if err := validateMagicBytes(data, mime); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	l, err := s.svc.CreateLecture(ctx, title, mime, data, seconds)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(l), nil
}

func newDownloader() *resty.Client {
	return resty.New().
		SetTimeout(30 * time.Second).
		SetRedirectPolicy(
			resty.FlexibleRedirectPolicy(5),
			resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
				return checkBlockedHost(req.URL.Hostname())
			}),
		)
}

// download fetches an http(s) recording with security checks.
func (s *Server) download(ctx context.Context, rawURL string) (string, []byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", nil, fmt.Errorf("unsupported scheme: %s (only data, http, https)", parsed.Scheme)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return "", nil, err
	}

	resp, err := s.http.R().SetContext(ctx).SetDoNotParseResponse(true).Get(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("download failed: %w", err)
	}
	body := resp.RawBody()
	defer func() { _ = body.Close() }()

	if resp.StatusCode() != http.StatusOK {
		return "", nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode())
	}
	data, err := io.ReadAll(io.LimitReader(body, maxRecordingSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxRecordingSize {
		return "", nil, fmt.Errorf("file too large: exceeds %d bytes", maxRecordingSize)
	}
	return resp.Header().Get("Content-Type"), data, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let the client report DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// normalizeAudioMIME drops parameters and maps common aliases.
func normalizeAudioMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(strings.Split(mime, ";")[0]))
	switch mime {
	case "audio/x-wav", "audio/wave":
		return "audio/wav"
	case "audio/mp3":
		return "audio/mpeg"
	case "video/webm":
		return "audio/webm"
	case "application/ogg":
		return "audio/ogg"
	}
	return mime
}

// validateMagicBytes verifies content matches the declared container.
func validateMagicBytes(data []byte, mime string) error {
	var ok bool
	switch mime {
	case "audio/wav":
		ok = len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
	case "audio/ogg":
		ok = bytes.HasPrefix(data, []byte("OggS"))
	case "audio/webm":
		ok = bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3})
	default:
		ok = len(data) > 0
	}
	if !ok {
		return fmt.Errorf("content does not appear to be %s", mime)
	}
	return nil
}
