package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/mindprints/els-calls/internal/callflow"
)

// postCall posts a call webhook with the given form fields and query string.
func postCall(t *testing.T, env *testEnv, query string, form url.Values) callflow.Instruction {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/calls"+query, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var instr callflow.Instruction
	if err := json.Unmarshal(rec.Body.Bytes(), &instr); err != nil {
		t.Fatalf("decoding instruction: %v (body %s)", err, rec.Body.String())
	}
	return instr
}

func TestCallWebhookGreeting(t *testing.T) {
	env := newTestEnv(t)

	instr := postCall(t, env, "", url.Values{
		"from":   {testMIL},
		"callid": {"call1"},
	})

	if !strings.HasSuffix(instr.Play, "/audio/"+callflow.HelloClip) {
		t.Errorf("play = %q", instr.Play)
	}
	if !strings.Contains(instr.Next, "mode=record1") {
		t.Errorf("next = %q", instr.Next)
	}
	if instr.Skippable == nil || *instr.Skippable {
		t.Errorf("skippable = %+v", instr.Skippable)
	}
}

func TestCallWebhookUnknownCaller(t *testing.T) {
	env := newTestEnv(t)

	instr := postCall(t, env, "", url.Values{
		"from":   {"+46700000000"},
		"callid": {"call1"},
	})

	if instr.Connect != testFallback {
		t.Errorf("connect = %q, want fallback", instr.Connect)
	}
}

func TestCallWebhookCarriesModeAndPoll(t *testing.T) {
	env := newTestEnv(t)

	instr := postCall(t, env, "?mode=reply1&poll=3", url.Values{
		"from":   {testMIL},
		"callid": {"call1"},
	})

	// No artifact yet: the waiting loop continues with the next counter.
	if !strings.Contains(instr.Next, "mode=reply1&poll=4") {
		t.Errorf("next = %q", instr.Next)
	}
}

func TestCallWebhookMissingCallID(t *testing.T) {
	env := newTestEnv(t)

	// A missing call id must not break the webhook; the server substitutes
	// a generated one.
	instr := postCall(t, env, "", url.Values{"from": {testMIL}})
	if instr.Play == "" {
		t.Errorf("instruction = %+v, want greeting", instr)
	}
}

func TestRecordingWebhookRunsTurn(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{
		"callid": {"call1"},
		"wav":    {"https://provider.example.com/rec/abc.wav"},
	}
	req := httptest.NewRequest(http.MethodPost, "/recordings?turn=2", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	select {
	case got := <-env.pipeline.requests:
		if got.CallID != "call1" || got.Turn != 2 {
			t.Errorf("turn request = %+v", got)
		}
		if got.AudioURL != "https://provider.example.com/rec/abc.wav" {
			t.Errorf("audio url = %q", got.AudioURL)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never received the turn")
	}
}

func TestRecordingWebhookValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
		form  url.Values
	}{
		{"missing turn", "", url.Values{"callid": {"c1"}, "wav": {"https://x/r.wav"}}},
		{"zero turn", "?turn=0", url.Values{"callid": {"c1"}, "wav": {"https://x/r.wav"}}},
		{"missing callid", "?turn=1", url.Values{"wav": {"https://x/r.wav"}}},
		{"traversal callid", "?turn=1", url.Values{"callid": {"../etc"}, "wav": {"https://x/r.wav"}}},
		{"missing recording url", "?turn=1", url.Values{"callid": {"c1"}}},
		{"non-http recording url", "?turn=1", url.Values{"callid": {"c1"}, "wav": {"file:///etc/passwd"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/recordings"+tt.query, strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			rec := httptest.NewRecorder()
			env.server.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRecordingWebhookWithoutPipeline(t *testing.T) {
	env := newTestEnv(t)
	env.server.pipeline = nil

	form := url.Values{
		"callid": {"call1"},
		"wav":    {"https://provider.example.com/rec/abc.wav"},
	}
	req := httptest.NewRequest(http.MethodPost, "/recordings?turn=1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	// Acknowledged and dropped; the provider must never see an error.
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
