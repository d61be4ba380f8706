package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/media"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/transport"
)

// fakeAPI is a minimal Bot API server recording the methods it receives.
type fakeAPI struct {
	mu      sync.Mutex
	methods []string
	forms   []map[string]string
	uploads map[string][]byte
	reply   func(method string) (int, string)
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{uploads: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	method := parts[len(parts)-1]

	form := map[string]string{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		mr, err := r.MultipartReader()
		if err == nil {
			for {
				p, err := mr.NextPart()
				if err != nil {
					break
				}
				b, _ := io.ReadAll(p)
				if p.FileName() != "" {
					f.mu.Lock()
					f.uploads[p.FormName()] = b
					f.mu.Unlock()
					continue
				}
				form[p.FormName()] = string(b)
			}
		}
	} else {
		_ = r.ParseForm()
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
	}

	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.forms = append(f.forms, form)
	reply := f.reply
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if reply != nil {
		if code, body := reply(method); code != 0 {
			fmt.Fprint(w, body)
			return
		}
	}
	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"relay","username":"relay_bot"}}`)
	case "editMessageText", "deleteMessage", "answerCallbackQuery":
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	default:
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":77,"date":0,"chat":{"id":42,"type":"private"}}}`)
	}
}

func (f *fakeAPI) last() (string, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.methods[len(f.methods)-1], f.forms[len(f.forms)-1]
}

func (f *fakeAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI) {
	t.Helper()
	f, srv := newFakeAPI(t)
	log := logger.New(logger.Config{Level: "error", Format: "text", Output: io.Discard})
	b, err := New(Config{Token: "test", SendTimeout: 5 * time.Second, Endpoint: srv.URL + "/bot%s/%s"}, log)
	require.NoError(t, err)
	return b, f
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, logger.NewDefault())
	require.Error(t, err)
}

func TestUsername(t *testing.T) {
	b, _ := newTestBot(t)
	assert.Equal(t, "@relay_bot", b.Username())
}

func TestSendText(t *testing.T) {
	b, f := newTestBot(t)

	ref, err := b.SendText(context.Background(), 42, 9, "hello")
	require.NoError(t, err)
	assert.Equal(t, transport.MessageRef{ChatID: 42, MessageID: 77}, ref)

	method, form := f.last()
	assert.Equal(t, "sendMessage", method)
	assert.Equal(t, "hello", form["text"])
	assert.Equal(t, "9", form["reply_to_message_id"])
}

func TestEditStatusSwallowsNotModified(t *testing.T) {
	b, f := newTestBot(t)
	f.reply = func(method string) (int, string) {
		if method == "editMessageText" {
			return 400, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}`
		}
		return 0, ""
	}

	err := b.EditStatus(context.Background(), transport.MessageRef{ChatID: 42, MessageID: 77}, "same")
	require.NoError(t, err)
}

func TestEditStatusReturnsOtherErrors(t *testing.T) {
	b, f := newTestBot(t)
	f.reply = func(method string) (int, string) {
		if method == "editMessageText" {
			return 400, `{"ok":false,"error_code":400,"description":"Bad Request: message to edit not found"}`
		}
		return 0, ""
	}

	err := b.EditStatus(context.Background(), transport.MessageRef{ChatID: 42, MessageID: 77}, "x")
	require.Error(t, err)
}

func TestSendFileURL(t *testing.T) {
	b, f := newTestBot(t)

	_, err := b.SendFile(context.Background(), 42, 9, transport.File{
		Kind:     media.KindVideo,
		URL:      "https://cdn.example/v.mp4",
		Duration: 12 * time.Second,
	}, "<b>clip</b>", nil)
	require.NoError(t, err)

	method, form := f.last()
	assert.Equal(t, "sendVideo", method)
	assert.Equal(t, "https://cdn.example/v.mp4", form["video"])
	assert.Equal(t, "12", form["duration"])
	assert.Equal(t, "HTML", form["parse_mode"])
}

func TestSendFileReaderReportsProgress(t *testing.T) {
	b, f := newTestBot(t)
	payload := bytes.Repeat([]byte("x"), 64*1024)

	var last int64
	_, err := b.SendFile(context.Background(), 42, 0, transport.File{
		Kind:   media.KindImage,
		Reader: bytes.NewReader(payload),
		Name:   "pic.jpg",
		Size:   int64(len(payload)),
	}, "", func(done, total int64) {
		last = done
		assert.Equal(t, int64(len(payload)), total)
	})
	require.NoError(t, err)

	method, _ := f.last()
	assert.Equal(t, "sendPhoto", method)
	assert.Equal(t, int64(len(payload)), last)
	f.mu.Lock()
	assert.Equal(t, payload, f.uploads["photo"])
	f.mu.Unlock()
}

func TestSendFileWithoutSource(t *testing.T) {
	b, _ := newTestBot(t)
	_, err := b.SendFile(context.Background(), 42, 0, transport.File{Kind: media.KindVideo}, "", nil)
	require.Error(t, err)
}

func TestSendButton(t *testing.T) {
	b, f := newTestBot(t)

	_, err := b.SendButton(context.Background(), 42, 77, "Description available", transport.Button{Text: "📝 Get description", Data: "desc:abc"})
	require.NoError(t, err)

	_, form := f.last()
	var markup tgbotapi.InlineKeyboardMarkup
	require.NoError(t, json.Unmarshal([]byte(form["reply_markup"]), &markup))
	require.Len(t, markup.InlineKeyboard, 1)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "desc:abc", *markup.InlineKeyboard[0][0].CallbackData)
}

func TestAnswerCallbackAlert(t *testing.T) {
	b, f := newTestBot(t)

	require.NoError(t, b.AnswerCallback(context.Background(), "cb1", "expired", true))
	method, form := f.last()
	assert.Equal(t, "answerCallbackQuery", method)
	assert.Equal(t, "true", form["show_alert"])
}

func TestDeleteZeroRefIsNoop(t *testing.T) {
	b, f := newTestBot(t)
	require.NoError(t, b.DeleteMessage(context.Background(), transport.MessageRef{}))
	assert.Equal(t, 0, f.count("deleteMessage"))
}

func TestRetryOnFlood(t *testing.T) {
	calls := 0
	err := retryOnFlood(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1}}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryOnFloodGivesUpOnLongWait(t *testing.T) {
	calls := 0
	err := retryOnFlood(context.Background(), func() error {
		calls++
		return tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 60}}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSendHook(t *testing.T) {
	orig := sendForTest
	t.Cleanup(func() { sendForTest = orig })

	var got tgbotapi.Chattable
	sendForTest = func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
		got = c
		return tgbotapi.Message{MessageID: 5}, nil
	}

	b := &Bot{api: &tgbotapi.BotAPI{Token: "test"}, log: logger.NewDefault()}
	ref, err := b.SendStatus(context.Background(), 1, 2, "⏳ Fetching media info...")
	require.NoError(t, err)
	assert.Equal(t, 5, ref.MessageID)
	msg, ok := got.(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, 2, msg.ReplyToMessageID)
}

func TestAPIErrorShapes(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		notModified bool
		flood       bool
	}{
		{"nil", nil, false, false},
		{"plain", fmt.Errorf("boom"), false, false},
		{"pointer not modified", &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}, true, false},
		{"value not modified", tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}, true, false},
		{"wrapped flood", fmt.Errorf("send: %w", &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}), false, true},
		{"same text but 500", tgbotapi.Error{Code: 500, Message: "message is not modified"}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notModified, isMessageNotModified(tt.err))
			assert.Equal(t, tt.flood, isTooManyRequests(tt.err))
		})
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", MaxTextLength+10)
	out := truncateText(long)
	assert.Len(t, []rune(out), MaxTextLength)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Equal(t, "short", truncateText("short"))
}

func TestToMessageAndCallback(t *testing.T) {
	m, ok := toMessage(tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 3,
		Chat:      &tgbotapi.Chat{ID: 42},
		From:      &tgbotapi.User{ID: 1001, UserName: "ann"},
		Text:      "https://www.instagram.com/p/abc/",
	}})
	require.True(t, ok)
	assert.Equal(t, "1001", m.From)
	assert.Equal(t, "ann", m.Username)

	_, ok = toMessage(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}}})
	assert.False(t, ok, "messages without text are ignored")

	c, ok := toCallback(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: 1001},
		Data: "desc:tok",
		Message: &tgbotapi.Message{
			MessageID:      90,
			Chat:           &tgbotapi.Chat{ID: 42},
			ReplyToMessage: &tgbotapi.Message{MessageID: 80},
		},
	}})
	require.True(t, ok)
	assert.Equal(t, transport.Callback{ID: "cb", ChatID: 42, MessageID: 90, ReplyTo: 80, From: "1001", Data: "desc:tok"}, c)
}

// uploadBytes drains the reader of a reader-backed send and returns its length.
func uploadBytes(t *testing.T, c tgbotapi.Chattable) int {
	t.Helper()
	video, ok := c.(tgbotapi.VideoConfig)
	require.True(t, ok)
	fr, ok := video.File.(tgbotapi.FileReader)
	require.True(t, ok)
	b, err := io.ReadAll(fr.Reader)
	require.NoError(t, err)
	return len(b)
}

func floodOnFirstSend(t *testing.T) *[]int {
	t.Helper()
	orig := sendForTest
	t.Cleanup(func() { sendForTest = orig })

	var sizes []int
	sendForTest = func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
		sizes = append(sizes, uploadBytes(t, c))
		if len(sizes) == 1 {
			return tgbotapi.Message{}, &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1}}
		}
		return tgbotapi.Message{MessageID: 11}, nil
	}
	return &sizes
}

func TestSendFileFloodRetryResendsWholeFile(t *testing.T) {
	sizes := floodOnFirstSend(t)
	b := &Bot{api: &tgbotapi.BotAPI{Token: "test"}, log: logger.NewDefault()}
	payload := bytes.Repeat([]byte("v"), 1000)

	var last int64
	ref, err := b.SendFile(context.Background(), 42, 0, transport.File{
		Kind:   media.KindVideo,
		Reader: bytes.NewReader(payload),
		Size:   int64(len(payload)),
	}, "", func(done, total int64) { last = done })
	require.NoError(t, err)
	assert.Equal(t, 11, ref.MessageID)
	assert.Equal(t, []int{1000, 1000}, *sizes)
	assert.Equal(t, int64(1000), last)
}

func TestSendFileFloodNotRetriedForStream(t *testing.T) {
	sizes := floodOnFirstSend(t)
	b := &Bot{api: &tgbotapi.BotAPI{Token: "test"}, log: logger.NewDefault()}

	_, err := b.SendFile(context.Background(), 42, 0, transport.File{
		Kind:   media.KindVideo,
		Reader: io.MultiReader(strings.NewReader(strings.Repeat("v", 1000))),
	}, "", nil)
	require.Error(t, err)
	assert.True(t, isTooManyRequests(err))
	assert.Equal(t, []int{1000}, *sizes)
}
