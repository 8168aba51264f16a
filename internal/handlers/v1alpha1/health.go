package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func RegisterHealthRoute(router chi.Router) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
