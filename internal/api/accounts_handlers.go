package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"cineshelf/internal/accounts"
	"cineshelf/internal/models"
	"cineshelf/internal/storage"
)

const birthDateLayout = "2006-01-02"

// accountResponse is the public shape of an account. The credential hash
// never appears here.
type accountResponse struct {
	ID          string    `json:"id"`
	LoginName   string    `json:"loginName"`
	DisplayName string    `json:"displayName,omitempty"`
	Email       string    `json:"email"`
	BirthDate   *string   `json:"birthDate,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	Favorites   []string  `json:"favorites"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newAccountResponse(account models.Account) accountResponse {
	resp := accountResponse{
		ID:          account.ID,
		LoginName:   account.LoginName,
		DisplayName: account.DisplayName,
		Email:       account.Email,
		Roles:       account.Roles,
		Favorites:   account.Favorites,
		CreatedAt:   account.CreatedAt,
		UpdatedAt:   account.UpdatedAt,
	}
	if resp.Favorites == nil {
		resp.Favorites = []string{}
	}
	if account.BirthDate != nil {
		birthDate := account.BirthDate.Format(birthDateLayout)
		resp.BirthDate = &birthDate
	}
	return resp
}

type createAccountRequest struct {
	LoginName   string `json:"loginName"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	BirthDate   string `json:"birthDate"`
}

type updateAccountRequest struct {
	DisplayName *string `json:"displayName"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	BirthDate   *string `json:"birthDate"`
}

func parseBirthDate(value string) (*time.Time, *storage.ValidationError) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(birthDateLayout, value)
	if err != nil {
		validation := &storage.ValidationError{Fields: map[string]string{
			"birthDate": "must be a date in YYYY-MM-DD format",
		}}
		return nil, validation
	}
	return &parsed, nil
}

// Accounts handles the /users collection: registration and the admin-only
// listing.
func (h *Handler) Accounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createAccount(w, r)
	case http.MethodGet:
		principal, ok := h.requirePrincipal(w, r)
		if !ok {
			return
		}
		if !principal.HasRole(accounts.RoleAdmin) {
			writeError(w, http.StatusForbidden, "operation not permitted")
			return
		}
		all := h.store.ListAccounts()
		responses := make([]accountResponse, 0, len(all))
		for _, account := range all {
			responses = append(responses, newAccountResponse(account))
		}
		writeJSON(w, http.StatusOK, responses)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	if !h.allowSelfSignup {
		principal, ok := h.requirePrincipal(w, r)
		if !ok {
			return
		}
		if !principal.HasRole(accounts.RoleAdmin) {
			writeError(w, http.StatusForbidden, "operation not permitted")
			return
		}
	}
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	birthDate, validation := parseBirthDate(req.BirthDate)
	if validation != nil {
		writeValidationError(w, validation)
		return
	}
	account, err := h.accounts.Create(storage.CreateAccountParams{
		LoginName:   req.LoginName,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
		BirthDate:   birthDate,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.metrics.ObserveAccountEvent("created")
	writeJSON(w, http.StatusCreated, newAccountResponse(account))
}

// AccountByLogin routes /users/{loginName} and the favorites subresources.
func (h *Handler) AccountByLogin(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users/"), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	segments := strings.Split(rest, "/")
	principal, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	loginName := segments[0]

	switch {
	case len(segments) == 1:
		h.accountResource(w, r, principal, loginName)
	case len(segments) == 2 && segments[1] == "favorites":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.listFavorites(w, r, principal, loginName)
	case len(segments) == 3 && segments[1] == "favorites":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.addFavorite(w, r, principal, loginName, segments[2])
	case len(segments) == 3 && segments[1] == "movies":
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.removeFavorite(w, r, principal, loginName, segments[2])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) accountResource(w http.ResponseWriter, r *http.Request, principal models.Account, loginName string) {
	switch r.Method {
	case http.MethodGet:
		account, err := h.accounts.Get(principal, loginName)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAccountResponse(account))
	case http.MethodPut:
		var req updateAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		update := storage.AccountUpdate{
			DisplayName: req.DisplayName,
			Email:       req.Email,
			Password:    req.Password,
		}
		if req.BirthDate != nil {
			birthDate, validation := parseBirthDate(*req.BirthDate)
			if validation != nil {
				writeValidationError(w, validation)
				return
			}
			update.BirthDate = birthDate
		}
		account, err := h.accounts.Update(principal, loginName, update)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		h.metrics.ObserveAccountEvent("updated")
		writeJSON(w, http.StatusOK, newAccountResponse(account))
	case http.MethodDelete:
		if err := h.accounts.Delete(principal, loginName); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		h.metrics.ObserveAccountEvent("deleted")
		writeText(w, http.StatusOK, fmt.Sprintf("%s was deleted.", loginName))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) addFavorite(w http.ResponseWriter, r *http.Request, principal models.Account, loginName, movieID string) {
	account, err := h.accounts.AddFavorite(principal, loginName, movieID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.metrics.ObserveFavoriteEvent("added")
	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

func (h *Handler) removeFavorite(w http.ResponseWriter, r *http.Request, principal models.Account, loginName, movieID string) {
	account, err := h.accounts.RemoveFavorite(principal, loginName, movieID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.metrics.ObserveFavoriteEvent("removed")
	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

func (h *Handler) listFavorites(w http.ResponseWriter, r *http.Request, principal models.Account, loginName string) {
	movies, err := h.accounts.ListFavorites(r.Context(), principal, loginName)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}
