package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alikamatu/artisan-app-sub002/internal/api"
	"github.com/alikamatu/artisan-app-sub002/internal/model"
	pkgerrors "github.com/alikamatu/artisan-app-sub002/pkg/errors"
)

type staticTokens struct {
	mu      sync.Mutex
	token   string
	expired bool
}

func (s *staticTokens) GetValidToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *staticTokens) NotifyExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = true
}

func (s *staticTokens) wasExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// uploadServer 模拟平台上传端点：记录请求，文件名含 "fail" 的返回 500。
type uploadServer struct {
	mu           sync.Mutex
	requests     int
	contentTypes []string
	status       int
}

func (u *uploadServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests++
		u.mu.Unlock()

		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/onboarding/upload", r.URL.Path)
		require.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))

		require.NoError(t, r.ParseMultipartForm(32<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		u.mu.Lock()
		u.contentTypes = append(u.contentTypes, header.Header.Get("Content-Type"))
		u.mu.Unlock()

		if u.status != 0 {
			w.WriteHeader(u.status)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"code": "UPLOAD_FAILED", "message": "storage unavailable"},
			})
			return
		}

		if strings.Contains(header.Filename, "fail") {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"code": "UPLOAD_FAILED", "message": "broken file"},
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"url": "https://cdn.example.com/" + filepath.Base(header.Filename)},
		})
	}
}

func (u *uploadServer) requestCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests
}

func newTestPipeline(t *testing.T, srv *httptest.Server, opts Options) (*Pipeline, *staticTokens) {
	t.Helper()
	apiClient, err := api.NewClient(srv.URL, time.Second, 10*time.Second)
	require.NoError(t, err)
	tokens := &staticTokens{token: "h.p.s"}
	return NewPipeline(apiClient, tokens, opts, nil), tokens
}

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rnd := rand.New(rand.NewSource(1))
	for i := range img.Pix {
		img.Pix[i] = uint8(rnd.Intn(256))
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pdfBytes() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< >>\n%%EOF\n")
}

func baseOptions() Options {
	return Options{
		MaxInputBytes:    10 << 20,
		MaxOutputBytes:   5 << 20,
		RawFallbackBytes: 2 << 20,
		TargetBytes:      300 << 10,
		MaxDimension:     800,
		Quality:          70,
		Concurrency:      4,
	}
}

func TestUploadRejectsUnsupportedTypeBeforeNetwork(t *testing.T) {
	server := &uploadServer{}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	pipeline, _ := newTestPipeline(t, srv, baseOptions())
	_, err := pipeline.Upload(context.Background(), &model.File{Name: "notes.txt", Data: []byte("plain text, not an image")})

	require.ErrorIs(t, err, pkgerrors.UnsupportedType)
	assert.Zero(t, server.requestCount(), "validation failures must not hit the network")
}

func TestUploadRejectsOversizeInputBeforeNetwork(t *testing.T) {
	server := &uploadServer{}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	opts := baseOptions()
	opts.MaxInputBytes = 64
	opts.MaxOutputBytes = 64
	pipeline, _ := newTestPipeline(t, srv, opts)

	_, err := pipeline.Upload(context.Background(), &model.File{Name: "big.png", Data: noisePNG(t, 16, 16)})

	require.ErrorIs(t, err, pkgerrors.FileTooLarge)
	assert.Zero(t, server.requestCount())
}

func TestUploadCompressesImageAndProceeds(t *testing.T) {
	server := &uploadServer{}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	opts := baseOptions()
	opts.MaxDimension = 64
	opts.TargetBytes = 64 << 10
	pipeline, _ := newTestPipeline(t, srv, opts)

	raw := noisePNG(t, 600, 600)
	result, err := pipeline.Upload(context.Background(), &model.File{Name: "photo.png", Data: raw})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/photo.jpg", result.URL)
	assert.Equal(t, int64(len(raw)), result.OriginalSizeBytes)
	assert.Less(t, result.FinalSizeBytes, result.OriginalSizeBytes)
	assert.Equal(t, []string{"image/jpeg"}, server.contentTypes)
}

func TestUploadRejectedWhenStillOverOutputCeiling(t *testing.T) {
	server := &uploadServer{}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	// 压缩无法把噪声图压到 64 字节以内，必须在网络调用前拒绝
	opts := baseOptions()
	opts.MaxOutputBytes = 64
	pipeline, _ := newTestPipeline(t, srv, opts)

	_, err := pipeline.Upload(context.Background(), &model.File{Name: "photo.png", Data: noisePNG(t, 400, 400)})

	require.ErrorIs(t, err, pkgerrors.FileTooLarge)
	assert.Zero(t, server.requestCount())
}

func TestUploadPDFSkipsCompression(t *testing.T) {
	server := &uploadServer{}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	pipeline, _ := newTestPipeline(t, srv, baseOptions())

	result, err := pipeline.Upload(context.Background(), &model.File{Name: "license.pdf", Data: pdfBytes()})
	require.NoError(t, err)

	assert.Equal(t, result.OriginalSizeBytes, result.FinalSizeBytes)
	assert.Equal(t, []string{"application/pdf"}, server.contentTypes)
}

func TestUploadCompressionFailureFallsBackToRawCheck(t *testing.T) {
	server := &uploadServer{}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	// PNG 魔数 + 垃圾内容：MIME 嗅探通过但解码失败
	corrupt := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0xab}, 256)...)

	pipeline, _ := newTestPipeline(t, srv, baseOptions())
	result, err := pipeline.Upload(context.Background(), &model.File{Name: "corrupt.png", Data: corrupt})
	require.NoError(t, err)
	assert.Equal(t, result.OriginalSizeBytes, result.FinalSizeBytes)

	// 同样的文件在更严格的回退阈值下要被拒绝
	opts := baseOptions()
	opts.RawFallbackBytes = 16
	strict, _ := newTestPipeline(t, srv, opts)
	_, err = strict.Upload(context.Background(), &model.File{Name: "corrupt.png", Data: corrupt})
	require.ErrorIs(t, err, pkgerrors.FileTooLarge)
}

func TestUpload401MapsToSessionExpired(t *testing.T) {
	server := &uploadServer{status: http.StatusUnauthorized}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	pipeline, tokens := newTestPipeline(t, srv, baseOptions())
	_, err := pipeline.Upload(context.Background(), &model.File{Name: "photo.png", Data: noisePNG(t, 16, 16)})

	require.ErrorIs(t, err, pkgerrors.SessionExpired)
	assert.True(t, tokens.wasExpired())
}

func TestUpload413MapsToPayloadTooLarge(t *testing.T) {
	server := &uploadServer{status: http.StatusRequestEntityTooLarge}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	pipeline, _ := newTestPipeline(t, srv, baseOptions())
	_, err := pipeline.Upload(context.Background(), &model.File{Name: "photo.png", Data: noisePNG(t, 16, 16)})

	require.ErrorIs(t, err, pkgerrors.PayloadTooLarge)
}

func TestUploadServerErrorCarriesMessage(t *testing.T) {
	server := &uploadServer{status: http.StatusInternalServerError}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	pipeline, _ := newTestPipeline(t, srv, baseOptions())
	_, err := pipeline.Upload(context.Background(), &model.File{Name: "photo.png", Data: noisePNG(t, 16, 16)})

	require.ErrorIs(t, err, pkgerrors.UploadFailed)
	var serverErr *pkgerrors.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "storage unavailable", serverErr.Detail)
}

func TestUploadNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // 端口关闭，传输必然失败

	apiClient, err := api.NewClient(url, time.Second, 2*time.Second)
	require.NoError(t, err)
	pipeline := NewPipeline(apiClient, &staticTokens{token: "h.p.s"}, baseOptions(), nil)

	_, err = pipeline.Upload(context.Background(), &model.File{Name: "photo.png", Data: noisePNG(t, 16, 16)})
	require.ErrorIs(t, err, pkgerrors.NetworkFailure)
}

func TestUploadBatchIsolatesFailures(t *testing.T) {
	server := &uploadServer{}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	pipeline, _ := newTestPipeline(t, srv, baseOptions())

	// 用 PDF 跳过压缩，文件名可精确断言
	files := []*model.File{
		{Name: "one.pdf", Data: pdfBytes()},
		{Name: "two-fail.pdf", Data: pdfBytes()},
		{Name: "three.pdf", Data: pdfBytes()},
	}

	batch := pipeline.UploadBatch(context.Background(), files)

	require.Equal(t, 1, batch.FailureCount())
	assert.Equal(t, "two-fail.pdf", batch.Failures[0].Name)
	assert.Equal(t, []string{
		"https://cdn.example.com/one.pdf",
		"https://cdn.example.com/three.pdf",
	}, batch.URLs)
}

func TestUploadBatchAllSucceed(t *testing.T) {
	server := &uploadServer{}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	pipeline, _ := newTestPipeline(t, srv, baseOptions())

	var files []*model.File
	for i := 0; i < 5; i++ {
		files = append(files, &model.File{Name: fmt.Sprintf("doc-%d.pdf", i), Data: pdfBytes()})
	}

	batch := pipeline.UploadBatch(context.Background(), files)
	assert.Zero(t, batch.FailureCount())
	assert.Len(t, batch.URLs, 5)
	assert.Equal(t, 5, server.requestCount())
}
