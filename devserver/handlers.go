package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/habedi/fintrack/client"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var errEmailTaken = errors.New("email already registered")

type ctxKey struct{}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("devserver: failed to write response")
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type authPayload struct {
	Success      bool        `json:"success"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         client.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &in); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Name == "" || in.Email == "" || in.Password == "" {
		writeFailure(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	id, err := s.AddUser(in.Name, in.Email, in.Password)
	if errors.Is(err, errEmailTaken) {
		writeFailure(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "could not create account")
		return
	}
	access, refresh := s.IssueSession(id)
	writeJSON(w, http.StatusCreated, authPayload{
		Success:      true,
		AccessToken:  access,
		RefreshToken: refresh,
		User:         client.User{ID: id, Name: in.Name, Email: in.Email},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &in); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[in.Email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(in.Password)) != nil {
		writeFailure(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	access, refresh := s.IssueSession(acc.user.ID)
	writeJSON(w, http.StatusOK, authPayload{Success: true, AccessToken: access, RefreshToken: refresh, User: acc.user})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decode(r, &in); err != nil || in.RefreshToken == "" {
		writeFailure(w, http.StatusBadRequest, "refresh token required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.refresh[in.RefreshToken]
	if !ok {
		// The backend answers an unknown refresh token with 200 and success=false.
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "invalid refresh token"})
		return
	}
	out := map[string]any{"success": true, "accessToken": s.issueAccessLocked(userID)}
	if s.opts.RotateRefresh {
		delete(s.refresh, in.RefreshToken)
		out["refreshToken"] = s.issueRefreshLocked(userID)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || token == "" {
			writeFailure(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		s.mu.Lock()
		grant, ok := s.access[token]
		if ok && !grant.expires.IsZero() && !s.now().Before(grant.expires) {
			delete(s.access, token)
			ok = false
		}
		s.mu.Unlock()
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "access token expired or invalid")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, grant.userID)))
	})
}

// ledgerFor returns the caller's data. The caller must hold s.mu.
func (s *Server) ledgerFor(r *http.Request) *ledger {
	id, _ := r.Context().Value(ctxKey{}).(string)
	l, ok := s.data[id]
	if !ok {
		l = &ledger{}
		s.data[id] = l
	}
	return l
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]client.Expense{}, s.ledgerFor(r).expenses...)
	s.mu.Unlock()
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var e client.Expense
	if err := decode(r, &e); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid expense")
		return
	}
	e.ID = uuid.NewString()
	s.mu.Lock()
	l := s.ledgerFor(r)
	l.expenses = append(l.expenses, e)
	s.mu.Unlock()
	writeData(w, http.StatusCreated, e)
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]client.Income{}, s.ledgerFor(r).incomes...)
	s.mu.Unlock()
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleAddIncome(w http.ResponseWriter, r *http.Request) {
	var in client.Income
	if err := decode(r, &in); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid income")
		return
	}
	in.ID = uuid.NewString()
	s.mu.Lock()
	l := s.ledgerFor(r)
	l.incomes = append(l.incomes, in)
	s.mu.Unlock()
	writeData(w, http.StatusCreated, in)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]client.Goal{}, s.ledgerFor(r).goals...)
	s.mu.Unlock()
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]client.Bookmark{}, s.ledgerFor(r).bookmarks...)
	s.mu.Unlock()
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum := client.Summary{ByCategory: map[string]float64{}}
	s.mu.Lock()
	l := s.ledgerFor(r)
	for _, in := range l.incomes {
		sum.TotalIncome += in.Amount
	}
	for _, e := range l.expenses {
		sum.TotalExpense += e.Amount
		cat := e.Category
		if cat == "" {
			cat = "other"
		}
		sum.ByCategory[cat] += e.Amount
	}
	s.mu.Unlock()
	sum.Balance = math.Round((sum.TotalIncome-sum.TotalExpense)*100) / 100
	writeData(w, http.StatusOK, sum)
}
