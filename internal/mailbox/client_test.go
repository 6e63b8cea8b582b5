package mailbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientList(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/api/mails" {
			t.Errorf("path = %q, want /api/mails", got)
		}
		if got := r.URL.Query().Get("email"); got != "abc123@mailto.plus" {
			t.Errorf("email = %q", got)
		}
		if got := r.URL.Query().Get("first_id"); got != "0" {
			t.Errorf("first_id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		// out of order on purpose; the client must sort newest first
		_, _ = w.Write([]byte(`{"mail_list":[
			{"mail_id":3,"subject":"mid","from":"a@b.c","text":"t3"},
			{"mail_id":"7","subject":"new","from":"a@b.c","text":"t7"},
			{"mail_id":1,"subject":"old","from":"a@b.c","text":"t1"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msgs, err := c.List(context.Background(), "abc123@mailto.plus")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	wantIDs := []uint64{7, 3, 1}
	for i, want := range wantIDs {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %d, want %d", i, msgs[i].ID, want)
		}
	}
	if msgs[0].Subject != "new" {
		t.Errorf("newest subject = %q, want new", msgs[0].Subject)
	}
}

func TestClientListUpstreamErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"mail_list":`))
			},
		},
		{
			name: "non-numeric id",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"mail_list":[{"mail_id":"abc","subject":"x","from":"y"}]}`))
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c := NewClient(srv.URL)
			_, err := c.List(context.Background(), "x@mailto.plus")
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("err = %v, want ErrUpstream", err)
			}
		})
	}
}

func TestClientListEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"mail_list":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msgs, err := c.List(context.Background(), "x@mailto.plus")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("len = %d, want 0", len(msgs))
	}
}
