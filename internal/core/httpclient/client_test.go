package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOutbound_InjectsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("User-Agent", "viewport-test")
	c := NewOutbound(time.Second, h)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "overridden")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	_ = resp.Body.Close()

	if got.Get("Authorization") != "Bearer secret" {
		t.Fatalf("Authorization=%q", got.Get("Authorization"))
	}
	if got.Get("User-Agent") != "viewport-test" {
		t.Fatalf("User-Agent=%q", got.Get("User-Agent"))
	}
	if req.Header.Get("User-Agent") != "overridden" {
		t.Fatal("caller request must not be mutated")
	}
}

func TestNewOutbound_DefaultTimeout(t *testing.T) {
	if c := NewOutbound(0, nil); c.Timeout != 30*time.Second {
		t.Fatalf("timeout=%s", c.Timeout)
	}
	if _, ok := NewOutbound(time.Second, nil).Transport.(*http.Transport); !ok {
		t.Fatal("no headers must keep the bare transport")
	}
}
