package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"pdf-qa/internal/config"
	"pdf-qa/internal/models"
	"pdf-qa/internal/parser"
	"pdf-qa/internal/rag"
	"pdf-qa/internal/service"
	"pdf-qa/internal/session"
	"pdf-qa/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	*httptest.Server
	client    *http.Client
	cfg       *config.Config
	store     *session.MemoryStore
	generator *testutil.Generator
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Documents.UploadDir = t.TempDir()
	cfg.Server.ClientURL = "http://client.test"
	for _, m := range mutate {
		m(cfg)
	}

	loader := parser.NewLoader()
	loader.Register(".pdf", parser.ExtractorFunc(func(path string) (string, error) {
		data, err := os.ReadFile(path)
		return string(data), err
	}))
	embedder := &testutil.Embedder{}
	generator := &testutil.Generator{}
	svc := service.NewService(cfg, loader, parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		embedder, rag.NewRAG(embedder, generator, &cfg.RAG))
	store := session.NewMemoryStore()

	srv := httptest.NewServer(NewRouter(cfg, svc, store))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testServer{Server: srv, client: &http.Client{Jar: jar}, cfg: cfg, store: store, generator: generator}
}

type upload struct {
	name    string
	content string
}

func (s *testServer) upload(t *testing.T, files ...upload) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("pdf_files", f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	res, err := s.client.Post(s.URL+"/upload", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	return decode(t, res)
}

func (s *testServer) query(t *testing.T, question string) (int, apiResponse) {
	t.Helper()
	res, err := s.client.PostForm(s.URL+"/query", url.Values{"query": {question}})
	require.NoError(t, err)
	return decode(t, res)
}

func (s *testServer) get(t *testing.T, path string) (int, apiResponse) {
	t.Helper()
	res, err := s.client.Get(s.URL + path)
	require.NoError(t, err)
	return decode(t, res)
}

func (s *testServer) delete(t *testing.T, path string) (int, apiResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, s.URL+path, nil)
	require.NoError(t, err)
	res, err := s.client.Do(req)
	require.NoError(t, err)
	return decode(t, res)
}

func decode(t *testing.T, res *http.Response) (int, apiResponse) {
	t.Helper()
	defer res.Body.Close()
	var body apiResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return res.StatusCode, body
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t)

	res, err := s.client.Get(s.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "PDF Q&A API is running", string(body))

	res, err = s.client.Get(s.URL + "/api/health")
	require.NoError(t, err)
	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&health))
	res.Body.Close()
	assert.Equal(t, true, health["success"])
	assert.Equal(t, "Server is healthy", health["message"])
	assert.Equal(t, "development", health["environment"])
	assert.NotEmpty(t, health["timestamp"])

	status, _ := s.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUploadQueryClear(t *testing.T) {
	s := newTestServer(t)

	status, body := s.upload(t,
		upload{"report.pdf", "The warranty covers parts and labour for two years."},
		upload{"notes.txt", "ignored"},
	)
	require.Equal(t, http.StatusOK, status, body.Message)
	assert.True(t, body.Success)
	assert.Equal(t, "Successfully processed 1 PDF files", body.Message)
	assert.JSONEq(t, `{"filenames":["report.pdf"]}`, string(body.Data))

	status, body = s.query(t, "How long is the warranty?")
	require.Equal(t, http.StatusOK, status, body.Message)
	assert.Equal(t, "Query processed successfully", body.Message)

	status, body = s.query(t, "Does it cover labour?")
	require.Equal(t, http.StatusOK, status, body.Message)
	var data struct {
		Query               string           `json:"query"`
		Answer              string           `json:"answer"`
		ConversationHistory []models.Message `json:"conversation_history"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, "Does it cover labour?", data.Query)
	require.Len(t, data.ConversationHistory, 4)
	assert.Equal(t, models.Message{Role: "user", Content: "How long is the warranty?"}, data.ConversationHistory[0])
	assert.Equal(t, "assistant", data.ConversationHistory[1].Role)
	assert.Equal(t, models.Message{Role: "user", Content: "Does it cover labour?"}, data.ConversationHistory[2])
	assert.Equal(t, models.Message{Role: "assistant", Content: data.Answer}, data.ConversationHistory[3])

	status, body = s.get(t, "/documents")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body.Data), `"filename":"report.pdf"`)

	res, err := s.client.Get(s.URL + "/uploads/report.pdf")
	require.NoError(t, err)
	content, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "The warranty covers parts and labour for two years.", string(content))

	status, _ = s.get(t, "/uploads/notes.txt")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.get(t, "/history?limit=1")
	require.Equal(t, http.StatusOK, status)
	var history struct {
		Count   int           `json:"count"`
		History []models.Turn `json:"history"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &history))
	require.Equal(t, 1, history.Count)
	assert.Equal(t, "Does it cover labour?", history.History[0].Question)

	res, err = s.client.Post(s.URL+"/clear-vector-data", "", nil)
	require.NoError(t, err)
	status, body = decode(t, res)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "All data has been cleared", body.Message)
	assert.Equal(t, "null", string(body.Data))

	status, body = s.query(t, "How long is the warranty?")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Please upload PDF files first", body.Message)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.upload(t,
		upload{"apples.pdf", "alpha apples grow in the orchard"},
		upload{"bananas.pdf", "bravo bananas grow on the plantation"},
	)
	require.Equal(t, http.StatusOK, status)

	status, body := s.delete(t, "/documents/cherries.pdf")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "File not found", body.Message)

	status, body = s.delete(t, "/documents/apples.pdf")
	require.Equal(t, http.StatusOK, status, body.Message)
	assert.Equal(t, "Document deleted", body.Message)
	assert.JSONEq(t, `{"filenames":["bananas.pdf"]}`, string(body.Data))

	status, _ = s.get(t, "/uploads/apples.pdf")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.query(t, "alpha apples orchard")
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(body.Data), "alpha apples grow")

	status, _ = s.delete(t, "/documents/bananas.pdf")
	require.Equal(t, http.StatusOK, status)
	status, body = s.query(t, "bananas?")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Please upload PDF files first", body.Message)
}

func TestConcurrentQueriesKeepEveryTurn(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.upload(t, upload{"a.pdf", "The launch is scheduled for May."})
	require.Equal(t, http.StatusOK, status)

	const n = 8
	var wg sync.WaitGroup
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.client.PostForm(s.URL+"/query", url.Values{"query": {"When is the launch?"}})
			if err != nil {
				codes <- 0
				return
			}
			res.Body.Close()
			codes <- res.StatusCode
		}()
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}

	status, body := s.get(t, "/history")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body.Data), fmt.Sprintf(`"count":%d`, n))
}

func TestSessionLock(t *testing.T) {
	m := NewSessionManager(session.NewMemoryStore(), config.Default().Session)

	unlock := m.Lock("a")
	acquired := make(chan struct{})
	go func() {
		release := m.Lock("a")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(50 * time.Millisecond):
	}
	m.Lock("b")()

	unlock()
	<-acquired
	assert.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.locks) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer(t)

	status, body := s.upload(t)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No files selected", body.Message)

	res, err := s.client.Post(s.URL+"/upload", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	status, body = decode(t, res)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No files selected", body.Message)

	status, body = s.upload(t, upload{"a.txt", "text"}, upload{"b.docx", "doc"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, body.Success)
	assert.Equal(t, "No valid PDF files were found", body.Message)

	status, body = s.upload(t, upload{"blank.pdf", "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No text could be extracted from the uploaded files", body.Message)
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Server.MaxUploadBytes = 1024 })

	status, body := s.upload(t, upload{"big.pdf", strings.Repeat("x", 4096)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "File too large", body.Message)
}

func TestQueryErrors(t *testing.T) {
	s := newTestServer(t)

	status, body := s.query(t, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No query provided", body.Message)

	status, body = s.query(t, "anything?")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Please upload PDF files first", body.Message)
	assert.Zero(t, s.generator.CallCount())
}

func TestQueryModelFailure(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.upload(t, upload{"a.pdf", "some content"})
	require.Equal(t, http.StatusOK, status)

	s.generator.Reply = func(string, []models.Turn) (string, error) { return "", errors.New("model down") }
	status, body := s.query(t, "question?")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", body.Message)
}

func TestSessionsDoNotShareState(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.upload(t, upload{"a.pdf", "some content"})
	require.Equal(t, http.StatusOK, status)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	other := &testServer{Server: s.Server, client: &http.Client{Jar: jar}}
	status, body := other.query(t, "question?")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Please upload PDF files first", body.Message)
}

func TestCors(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/query", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://client.test")
	res, err := s.client.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "http://client.test", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", res.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "http://evil.test")
	res, err = s.client.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocket(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.upload(t, upload{"a.pdf", "The launch is scheduled for May."})
	require.Equal(t, http.StatusOK, status)

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	dialer := websocket.Dialer{Jar: s.client.Jar}
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var res WebSocketResponse
	require.NoError(t, conn.WriteJSON(WebsocketRequest{Type: TypeWebsocketPing}))
	require.NoError(t, conn.ReadJSON(&res))
	assert.Equal(t, TypeWebsocketPong, res.Type)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "query",
		"payload": map[string]string{"query": "When is the launch?"},
	}))
	var answer struct {
		Type    string `json:"type"`
		Payload struct {
			Answer              string           `json:"answer"`
			ConversationHistory []models.Message `json:"conversation_history"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&answer))
	assert.Equal(t, TypeWebsocketAnswer, answer.Type)
	assert.Contains(t, answer.Payload.Answer, "scheduled for May")
	assert.Len(t, answer.Payload.ConversationHistory, 2)

	require.NoError(t, conn.WriteJSON(WebsocketRequest{Type: "dance"}))
	var failure struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, TypeWebsocketError, failure.Type)
	assert.Equal(t, "Unknown message type", failure.Payload["message"])

	// the websocket turn is visible over HTTP
	status, body := s.get(t, "/history")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body.Data), "When is the launch?")
}

func TestErrorStatus(t *testing.T) {
	status, message := errorStatus(service.ErrIndexNotFound)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Error: Vector store not found. Please upload PDFs again.", message)

	status, message = errorStatus(errors.New("disk full"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", message)
}
