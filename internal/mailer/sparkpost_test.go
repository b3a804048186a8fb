package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brightpath/email-tracking/internal/config"
)

func TestSparkPostTimeout(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{5, 5 * time.Second},
		{120, 120 * time.Second},
	}
	for _, tt := range tests {
		got := sparkpostTimeout(config.SparkPostConfig{TimeoutSeconds: tt.seconds})
		if got != tt.want {
			t.Errorf("timeout_seconds=%d gave %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestSparkPostSend(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"total_accepted_recipients":1,"id":"msg-42"}}`))
	}))
	t.Cleanup(srv.Close)

	tr := NewSparkPostTransport(config.SparkPostConfig{
		APIKey: "key-1", BaseURL: srv.URL, TimeoutSeconds: 5,
	})
	res, err := tr.Send(context.Background(), &Message{
		To:        "student@example.com",
		FromEmail: "no-reply@brightpath.io",
		FromName:  "BrightPath",
		Subject:   "Welcome",
		HTML:      "<p>hi</p>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success || res.MessageID != "msg-42" {
		t.Errorf("unexpected result: %+v", res)
	}
	if gotAuth != "key-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	// The HTML already carries our tracking rewrites; provider-side
	// tracking would double-wrap every link.
	opts, _ := gotBody["options"].(map[string]interface{})
	if opts["open_tracking"] != false || opts["click_tracking"] != false {
		t.Errorf("provider tracking not disabled: %v", opts)
	}
}

func TestSparkPostSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"invalid recipient","code":"1902"}]}`))
	}))
	t.Cleanup(srv.Close)

	tr := NewSparkPostTransport(config.SparkPostConfig{APIKey: "key-1", BaseURL: srv.URL})
	res, err := tr.Send(context.Background(), &Message{To: "nope", Subject: "x", HTML: "y"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Success {
		t.Error("rejected transmission reported as success")
	}
	if res.Reason != "invalid recipient" {
		t.Errorf("reason = %q", res.Reason)
	}
}
