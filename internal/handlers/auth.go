package handlers

import (
	"errors"
	"net/http"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/handlers/render"
	"github.com/ruangsim/examledger/internal/handlers/userctx"
	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/service/auth"
)

type tokenPairResponse struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token"`
}

func handleRegister(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Email       string `json:"email" validate:"required,email"`
		Password    string `json:"password" validate:"required,min=6"`
		DisplayName string `json:"display_name" validate:"required,min=2,max=100"`
		School      string `json:"school" validate:"required,min=2,max=200"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		_, pair, err := authService.Register(r.Context(), auth.RegisterParams{
			Email:       data.Email,
			Password:    data.Password,
			DisplayName: data.DisplayName,
			School:      data.School,
		})

		switch {
		case err == nil:
			render.JSON(w, tokenPairResponse{Access: pair.Access.Value, Refresh: pair.Refresh.Value})
		case errors.Is(err, apperrors.ErrAccountAlreadyExists):
			render.ServiceError(w, "Email already registered", http.StatusConflict)
		default:
			l.Error("Failed to register", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		_, pair, err := authService.Login(r.Context(), data.Email, data.Password)

		switch {
		case err == nil:
			render.JSON(w, tokenPairResponse{Access: pair.Access.Value, Refresh: pair.Refresh.Value})
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Wrong email or password", http.StatusUnauthorized)
		default:
			l.Error("Failed to login", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleTokenRefresh(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Refresh string `json:"refresh_token" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Refresh(r.Context(), data.Refresh)

		switch {
		case err == nil:
			render.JSON(w, tokenPairResponse{Access: pair.Access.Value, Refresh: pair.Refresh.Value})
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound),
			errors.Is(err, apperrors.ErrRefreshTokenIsUsed),
			errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
		default:
			l.Error("Failed to refresh tokens", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogout(authService authService) http.Handler {
	type request struct {
		Refresh string `json:"refresh_token"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := userctx.Session(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		var data request
		_ = decodeOptional(r, &data)

		authService.Logout(r.Context(), sess.ID, data.Refresh)
		render.JSON(w, response{Message: "Logged out"})
	})
}
