package nlu

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aimar/internal/dialog"
)

func testTree() *dialog.Tree {
	return &dialog.Tree{Symptoms: []dialog.Symptom{
		{Name: "Headache", Aliases: []string{"migraine"}},
		{Name: "Chest pain"},
		{Name: "Pain"},
		{Name: "Cough", Aliases: []string{"coughing"}},
	}}
}

func TestKeywordSymptom(t *testing.T) {
	ctx := context.Background()
	kw := NewKeyword()
	tree := testTree()

	tests := []struct {
		in   string
		want string
	}{
		{"I have a terrible headache.", "Headache"},
		{"my migraine is back", "Headache"},
		{"There's a pain in my chest... chest pain!", "Chest pain"},
		{"just pain", "Pain"},
		{"I keep COUGHING at night", "Cough"},
	}
	for _, tt := range tests {
		s, err := kw.ExtractSymptom(ctx, tt.in, tree)
		require.NoError(t, err)
		require.NotNil(t, s, tt.in)
		assert.Equal(t, tt.want, s.Name, tt.in)
	}
}

func TestKeywordSymptomNoMatch(t *testing.T) {
	ctx := context.Background()
	kw := NewKeyword()

	for _, in := range []string{"", " ", "my knee feels odd", "headaches"} {
		s, err := kw.ExtractSymptom(ctx, in, testTree())
		require.NoError(t, err)
		assert.Nil(t, s, in)
	}
}

func TestKeywordFactor(t *testing.T) {
	ctx := context.Background()
	kw := NewKeyword()
	candidates := []string{"dull", "throbbing", "worse at night"}

	f, err := kw.ExtractFactor(ctx, "It's kind of Throbbing.", candidates)
	require.NoError(t, err)
	assert.Equal(t, "throbbing", f)

	f, err = kw.ExtractFactor(ctx, "it gets worse at night", candidates)
	require.NoError(t, err)
	assert.Equal(t, "worse at night", f)

	f, err = kw.ExtractFactor(ctx, "  Like  a hammer! ", candidates)
	require.NoError(t, err)
	assert.Equal(t, "like a hammer", f)

	f, err = kw.ExtractFactor(ctx, " ", candidates)
	require.NoError(t, err)
	assert.Equal(t, "", f)
}

// chatServer replies to every completion request with content.
func chatServer(t *testing.T, content string, calls *int32) *OpenAI {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"model":"gpt-5-nano"`)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-5-nano",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	client := openai.NewClient(
		option.WithAPIKey("sk-test"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	return NewOpenAI(client, "gpt-5-nano")
}

func TestOpenAISymptom(t *testing.T) {
	var calls int32
	o := chatServer(t, "```json\n{\"symptom\": \"chest pain\"}\n```", &calls)

	s, err := o.ExtractSymptom(context.Background(), "my chest hurts", testTree())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "Chest pain", s.Name)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestOpenAISymptomNone(t *testing.T) {
	var calls int32
	o := chatServer(t, `{"symptom": "none"}`, &calls)

	s, err := o.ExtractSymptom(context.Background(), "hello there", testTree())
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = o.ExtractSymptom(context.Background(), "   ", testTree())
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestOpenAISymptomOutsideTree(t *testing.T) {
	var calls int32
	o := chatServer(t, `{"symptom": "Fever"}`, &calls)

	s, err := o.ExtractSymptom(context.Background(), "I'm burning up", testTree())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestOpenAIFactor(t *testing.T) {
	var calls int32
	o := chatServer(t, `{"factor": " Throbbing "}`, &calls)

	f, err := o.ExtractFactor(context.Background(), "it pounds like a drum", []string{"dull", "throbbing"})
	require.NoError(t, err)
	assert.Equal(t, "throbbing", f)
}

func TestOpenAIBadContent(t *testing.T) {
	var calls int32
	o := chatServer(t, "I think it's a headache", &calls)

	_, err := o.ExtractSymptom(context.Background(), "head", testTree())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unmarshal NLU result"))
}
