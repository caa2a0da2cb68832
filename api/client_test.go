package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestStatusError(t *testing.T) {
	cases := []struct {
		name string
		err  StatusError
		want string
	}{
		{"status und message", StatusError{Status: "400 Bad Request", ErrorMessage: "kaputt"}, "400 Bad Request: kaputt"},
		{"nur status", StatusError{Status: "404 Not Found"}, "404 Not Found"},
		{"nur message", StatusError{ErrorMessage: "kaputt"}, "kaputt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Errorf("Error() = %q, erwartet %q", got, tc.want)
			}
		})
	}
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(base, srv.Client())
}

func TestClientPredict(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/predict" || r.Method != http.MethodPost {
			t.Errorf("unerwarteter Aufruf: %s %s", r.Method, r.URL.Path)
		}
		var req PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Context) != 1 || len(req.Targets) != 2 {
			t.Errorf("Request kam nicht vollstaendig an: %+v", req)
		}
		json.NewEncoder(w).Encode(PredictResponse{
			Predictions: []Prediction{{Mean: 1.5, Std: 0.25}, {Mean: -0.5, Std: 0.5}},
		})
	})

	resp, err := client.Predict(context.Background(), &PredictRequest{
		Context: []Observation{{Features: []float64{1, 2}, Value: 0.5}},
		Targets: [][]float64{{3, 4}, {5, 6}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Predictions) != 2 || resp.Predictions[0].Mean != 1.5 {
		t.Errorf("unerwartete Antwort: %+v", resp)
	}
}

func TestClientErrorDecoding(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "capacity exceeded"})
	})

	_, err := client.Predict(context.Background(), &PredictRequest{})
	statusErr, ok := err.(StatusError)
	if !ok {
		t.Fatalf("erwartet StatusError, bekam %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusBadRequest || statusErr.ErrorMessage != "capacity exceeded" {
		t.Errorf("unerwarteter Fehler: %+v", statusErr)
	}
}

func TestClientSessionRoutes(t *testing.T) {
	var observed, deleted string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/sessions":
			json.NewEncoder(w).Encode(SessionResponse{ID: "s-1", Capacity: 100})
		case r.Method == http.MethodPost && r.URL.Path == "/api/sessions/s-1/observe":
			observed = r.URL.Path
			json.NewEncoder(w).Encode(SessionResponse{ID: "s-1", Capacity: 100, Count: 1})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/sessions/s-1":
			deleted = r.URL.Path
		default:
			t.Errorf("unerwarteter Aufruf: %s %s", r.Method, r.URL.Path)
		}
	})

	ctx := context.Background()
	sess, err := client.CreateSession(ctx, &CreateSessionRequest{Capacity: 100})
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != "s-1" {
		t.Fatalf("unerwartete Session: %+v", sess)
	}

	if _, err := client.Observe(ctx, sess.ID, &ObserveRequest{
		Observations: []Observation{{Features: []float64{1}, Value: 2}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := client.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}

	if observed == "" || deleted == "" {
		t.Error("Session-Routen wurden nicht alle aufgerufen")
	}
}
