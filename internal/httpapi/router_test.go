package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/chatcore/internal/ai"
	"github.com/suPer8Hu/chatcore/internal/auth"
	"github.com/suPer8Hu/chatcore/internal/cancel"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/chatctx"
	"github.com/suPer8Hu/chatcore/internal/db"
	"github.com/suPer8Hu/chatcore/internal/files"
	"github.com/suPer8Hu/chatcore/internal/models"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// openAIStub answers streaming chat requests with two deltas.
func openAIStub() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Hel", "lo!"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":2,\"total_tokens\":6}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func newTestRouter(t *testing.T, secret string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gdb, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	disk, err := files.NewDisk(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)
	store := files.NewStore(files.NewRepo(gdb), disk, logger)

	srv := openAIStub()
	t.Cleanup(srv.Close)

	reg := ai.NewRegistry(ai.Deps{
		Builder:  chatctx.NewBuilder(store, logger),
		Defaults: ai.Defaults{Chat: models.ModelRef{Provider: "openai", ID: "gpt-test"}},
		Logger:   logger,
	})
	require.NoError(t, reg.Configure(
		models.ProviderConfig{ID: "openai", APIKey: "sk-test", APIHost: srv.URL},
		models.ProviderConfig{ID: "bare", Type: "ollama", APIHost: srv.URL},
	))

	svc := chat.NewService(chat.NewRepo(gdb), reg, store, cancel.NewMemory(), logger)
	return NewRouter(svc, store, secret, logger)
}

func call(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestPingAndNoRoute(t *testing.T) {
	r := newTestRouter(t, "")

	w, env := call(t, r, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)

	w, env = call(t, r, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, env.Code)
}

func TestChatStreamOverSSE(t *testing.T) {
	r := newTestRouter(t, "")

	_, env := call(t, r, http.MethodPost, "/assistants", map[string]any{"name": "helper"})
	a := decode[models.Assistant](t, env.Data)
	assert.Equal(t, models.DefaultContextCount, a.Settings.ContextCount)

	_, env = call(t, r, http.MethodPost, "/assistants/"+a.ID+"/topics", map[string]any{})
	topic := decode[models.Topic](t, env.Data)
	assert.Equal(t, "New Topic", topic.Name)

	w, _ := call(t, r, http.MethodPost, "/chat/messages/stream", map[string]any{
		"topic_id": topic.ID,
		"message":  "hi",
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	iEst := strings.Index(body, "event: estimate")
	iChunk := strings.Index(body, "event: chunk")
	iDone := strings.Index(body, "event: done")
	require.True(t, iEst >= 0 && iChunk > iEst && iDone > iChunk, body)
	assert.Contains(t, body, `"delta":"Hel"`)
	assert.Contains(t, body, `"total_tokens":6`)

	_, env = call(t, r, http.MethodGet, "/topics/"+topic.ID+"/messages", nil)
	msgs := decode[struct {
		Messages []models.Message `json:"messages"`
	}](t, env.Data).Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello!", msgs[1].Content)
	assert.Equal(t, models.StatusSuccess, msgs[1].Status)
}

func TestChatStream_Validation(t *testing.T) {
	r := newTestRouter(t, "")

	w, env := call(t, r, http.MethodPost, "/chat/messages/stream", map[string]any{"topic_id": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10002, env.Code)

	w, _ = call(t, r, http.MethodPost, "/chat/messages/stream", map[string]any{
		"topic_id": "x", "message": "hi", "file_ids": []string{"missing"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTopicLifecycle(t *testing.T) {
	r := newTestRouter(t, "")

	_, env := call(t, r, http.MethodPost, "/assistants", map[string]any{})
	a := decode[models.Assistant](t, env.Data)
	_, env = call(t, r, http.MethodPost, "/assistants/"+a.ID+"/topics", map[string]any{"name": "Trip"})
	topic := decode[models.Topic](t, env.Data)
	assert.True(t, topic.Named)

	_, env = call(t, r, http.MethodPost, "/topics/"+topic.ID+"/new-context", nil)
	res := decode[struct {
		Message *models.Message `json:"message"`
		Paused  bool            `json:"paused"`
	}](t, env.Data)
	require.NotNil(t, res.Message)
	assert.Equal(t, models.MessageClear, res.Message.Type)
	assert.False(t, res.Paused)

	w, _ := call(t, r, http.MethodPost, "/topics/"+topic.ID+"/clear", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, r, http.MethodDelete, "/assistants/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = call(t, r, http.MethodGet, "/topics/"+topic.ID+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, env.Code)
}

func TestPauseAndEstimate(t *testing.T) {
	r := newTestRouter(t, "")

	_, env := call(t, r, http.MethodPost, "/chat/pause", map[string]any{"surface": "t1"})
	assert.Equal(t, 0, env.Code)
	assert.False(t, decode[struct {
		Streaming bool `json:"streaming"`
	}](t, env.Data).Streaming)

	_, env = call(t, r, http.MethodPost, "/chat/estimate", map[string]any{"text": "hello world"})
	assert.Equal(t, 3, decode[struct {
		Tokens int `json:"tokens"`
	}](t, env.Data).Tokens)
}

func TestFilesRoutes(t *testing.T) {
	r := newTestRouter(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "cat.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\nnot really"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	recs := decode[struct {
		Files []models.FileRecord `json:"files"`
	}](t, env.Data).Files
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "cat.png", rec.Name)
	assert.Equal(t, models.FileImage, rec.Type)
	assert.Equal(t, 1, rec.Count)

	_, env = call(t, r, http.MethodGet, "/files", nil)
	assert.Len(t, decode[struct {
		Files []models.FileRecord `json:"files"`
	}](t, env.Data).Files, 1)

	w, _ = call(t, r, http.MethodGet, "/files/"+rec.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, r, http.MethodDelete, "/files/"+rec.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, r, http.MethodGet, "/files/"+rec.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadFiles_PartialFailureKeepsStoredParts(t *testing.T) {
	r := newTestRouter(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("remember the milk"))
	_, err = mw.CreateFormFile("file", "empty.txt")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	res := decode[struct {
		Files  []models.FileRecord `json:"files"`
		Errors []struct {
			Name  string `json:"name"`
			Error string `json:"error"`
		} `json:"errors"`
	}](t, env.Data)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "notes.txt", res.Files[0].Name)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "empty.txt", res.Errors[0].Name)

	// the stored part is kept, not rolled back with the failed one
	w, _ = call(t, r, http.MethodGet, "/files/"+res.Files[0].ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadFiles_AllPartsFailed(t *testing.T) {
	r := newTestRouter(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_, err := mw.CreateFormFile("file", "empty.txt")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProviderRoutes(t *testing.T) {
	r := newTestRouter(t, "")

	_, env := call(t, r, http.MethodGet, "/providers", nil)
	list := decode[struct {
		Providers []models.ProviderConfig `json:"providers"`
	}](t, env.Data).Providers
	require.Len(t, list, 2)
	assert.Equal(t, "bare", list[0].ID)
	assert.NotContains(t, string(env.Data), "sk-test")

	// no static models to probe with
	w, env := call(t, r, http.MethodPost, "/providers/bare/check", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10003, env.Code)

	w, _ = call(t, r, http.MethodGet, "/providers/missing/models", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthGuardsRoutes(t *testing.T) {
	r := newTestRouter(t, "s3cret")

	w, _ := call(t, r, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, r, http.MethodGet, "/assistants", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := auth.SignJWT("desktop", "s3cret", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/assistants", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
