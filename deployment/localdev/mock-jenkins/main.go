package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"
)

type mockBuild struct {
	Number   int
	Result   string
	Building bool
	Console  string
	Cases    []mockCase
}

type mockCase struct {
	ClassName    string  `json:"className"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	Duration     float64 `json:"duration"`
	ErrorDetails string  `json:"errorDetails,omitempty"`
}

const baseURL = "http://localhost:8080"

var jobs = map[string][]mockBuild{
	"rhosp-ci": {
		{
			Number: 42,
			Result: "FAILURE",
			Console: "Started by timer\n+ openstack server list\nTraceback (most recent call last):\n" +
				"ConnectionRefusedError: [Errno 111] Connection refused\nFinished: FAILURE\n",
		},
		{
			Number: 43,
			Result: "UNSTABLE",
			Console: "Started by timer\n+ tempest run\nFinished: UNSTABLE\n",
			Cases: []mockCase{
				{ClassName: "tempest.api.network.PortsTest", Name: "test_create_port", Status: "PASSED", Duration: 1.2},
				{ClassName: "tempest.api.network.PortsTest", Name: "test_delete_port", Status: "FAILED", Duration: 3.4,
					ErrorDetails: "ConnectionRefusedError: [Errno 111] Connection refused"},
			},
		},
		{Number: 44, Building: true, Console: "Started by timer\n"},
	},
	"rhosp-17-deploy": {
		{
			Number: 7,
			Result: "FAILURE",
			Console: "TASK [tripleo-deploy : run overcloud deploy]\n" +
				"fatal: [undercloud]: FAILED! => {\"changed\": true}\nPLAY RECAP\nundercloud : ok=12 failed=1\n",
		},
	},
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/json", func(w http.ResponseWriter, _ *http.Request) {
		list := make([]map[string]string, 0, len(jobs))
		for name := range jobs {
			list = append(list, map[string]string{"name": name, "url": baseURL + "/job/" + name + "/"})
		}
		writeJSON(w, map[string]any{"jobs": list})
	})

	mux.HandleFunc("GET /job/{job}/api/json", func(w http.ResponseWriter, r *http.Request) {
		builds, ok := jobs[r.PathValue("job")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		list := make([]map[string]any, 0, len(builds))
		for i := len(builds) - 1; i >= 0; i-- {
			list = append(list, map[string]any{"number": builds[i].Number, "url": buildURL(r.PathValue("job"), builds[i].Number)})
		}
		writeJSON(w, map[string]any{"builds": list})
	})

	mux.HandleFunc("GET /job/{job}/{number}/api/json", func(w http.ResponseWriter, r *http.Request) {
		b, ok := lookup(r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		payload := map[string]any{
			"number":    b.Number,
			"building":  b.Building,
			"timestamp": time.Now().Add(-time.Hour).UnixMilli(),
			"duration":  int64(95_000),
			"url":       buildURL(r.PathValue("job"), b.Number),
			"result":    nil,
		}
		if !b.Building {
			payload["result"] = b.Result
		}
		writeJSON(w, payload)
	})

	mux.HandleFunc("GET /job/{job}/{number}/consoleText", func(w http.ResponseWriter, r *http.Request) {
		b, ok := lookup(r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(b.Console))
	})

	mux.HandleFunc("GET /job/{job}/{number}/testReport/api/json", func(w http.ResponseWriter, r *http.Request) {
		b, ok := lookup(r)
		if !ok || b.Building || len(b.Cases) == 0 {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"suites": []map[string]any{{"name": "tempest", "cases": b.Cases}}})
	})

	logger := log.New(log.Writer(), "jenkins-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func lookup(r *http.Request) (mockBuild, bool) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		return mockBuild{}, false
	}
	for _, b := range jobs[r.PathValue("job")] {
		if b.Number == number {
			return b, true
		}
	}
	return mockBuild{}, false
}

func buildURL(job string, number int) string {
	return baseURL + "/job/" + job + "/" + strconv.Itoa(number) + "/"
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
