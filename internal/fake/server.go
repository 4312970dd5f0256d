package fake

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"
)

// Handler serves generated documents by index: GET /docs/{index} returns the same
// document for the same seed and index, GET /broken/{index} returns a truncated body.
func Handler(seed int64) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/docs/{index:[0-9]+}", handleDoc(seed)).Methods(http.MethodGet)
	router.HandleFunc("/broken/{index}", handleBroken()).Methods(http.MethodGet)
	router.Use(logMiddleware)
	return router
}

func handleDoc(seed int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.ParseInt(mux.Vars(r)["index"], 10, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		bs := New(seed + index).Document()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bs)
	}
}

func handleBroken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"index": "` + mux.Vars(r)["index"]))
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := negroni.NewResponseWriter(w)
		next.ServeHTTP(ww, r)
		slog.Debug("served", "method", r.Method, "uri", r.RequestURI, "status", ww.Status())
	})
}
