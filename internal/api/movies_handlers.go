package api

import (
	"fmt"
	"net/http"
	"strings"

	"cineshelf/internal/storage"
)

// Movies lists the catalog. ?featured=true narrows to featured entries.
func (h *Handler) Movies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	filter := storage.MovieFilter{
		FeaturedOnly: r.URL.Query().Get("featured") == "true",
	}
	h.metrics.ObserveCatalogLookup("list")
	writeJSON(w, http.StatusOK, h.store.ListMovies(filter))
}

// MovieSubresource routes /movies/title/{title}, /movies/genre/{name}, and
// /movies/director/{name}.
func (h *Handler) MovieSubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/movies/"), "/")
	segments := strings.SplitN(rest, "/", 2)
	if len(segments) != 2 || segments[1] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	value := segments[1]
	switch segments[0] {
	case "title":
		h.metrics.ObserveCatalogLookup("title")
		movie, ok := h.store.FindMovieByTitle(value)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no movie titled %q", value))
			return
		}
		writeJSON(w, http.StatusOK, movie)
	case "genre":
		h.metrics.ObserveCatalogLookup("genre")
		movies := h.store.ListMoviesByGenre(value)
		if len(movies) == 0 {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no movies in genre %q", value))
			return
		}
		writeJSON(w, http.StatusOK, movies)
	case "director":
		h.metrics.ObserveCatalogLookup("director")
		movies := h.store.ListMoviesByDirector(value)
		if len(movies) == 0 {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no movies directed by %q", value))
			return
		}
		writeJSON(w, http.StatusOK, movies)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// DirectorByName serves /directors/{name}.
func (h *Handler) DirectorByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/directors/"), "/")
	if name == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.metrics.ObserveCatalogLookup("director")
	director, ok := h.store.GetDirector(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no director named %q", name))
		return
	}
	writeJSON(w, http.StatusOK, director)
}
