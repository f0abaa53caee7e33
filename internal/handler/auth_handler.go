/*
Package handler provides the HTTP surface of the chat server: account endpoints, the chat
REST API, attachment presigning and the connection endpoint.
*/
package handler

import (
	"net/http"

	"marketchat/internal/app/user"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/req"
	"marketchat/internal/pkg/resp"
)

// TokenPair is returned by signup and login.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	User         user.User `json:"user"`
}

func issuePair(deps *AppDeps, u user.User) (TokenPair, error) {
	access, err := deps.Tokens.Issue(u.Email, u.ID, u.Roles, deps.Config.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := deps.Tokens.IssueRefresh(u.Email, u.ID, deps.Config.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer", User: u}, nil
}

// HandlePowChallenge issues a new proof-of-work nonce.
func HandlePowChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"nonce":      deps.PoW.GenerateNonce(),
			"difficulty": deps.PoW.Difficulty(),
		})
	}
}

type PowVerifyInput struct {
	Nonce   string `json:"nonce"`
	Counter string `json:"counter"`
}

// HandlePowVerify exchanges a solved challenge for a single-use proof token.
func HandlePowVerify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PowVerifyInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		token, err := deps.PoW.ValidateProof(input.Nonce, input.Counter)
		if err != nil {
			logx.Info("PoW verification failed", "reason", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"powToken": token})
	}
}

// HandleSignup creates an account and signs the caller in.
func HandleSignup(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.PoW.ConsumeProofToken(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		var input user.SignupInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, err := deps.Accounts.Register(r.Context(), input)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		pair, err := issuePair(deps, u)
		if err != nil {
			logx.Error(err, "failed to generate tokens after signup", "user_id", u.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("Account created.", "user_id", u.ID)
		resp.RespondCreated(w, r, pair)
	}
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin verifies credentials and issues an access and a refresh token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, err := deps.Accounts.Authenticate(r.Context(), input.Email, input.Password)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		pair, err := issuePair(deps, u)
		if err != nil {
			logx.Error(err, "login: token generation failed", "user_id", u.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, pair)
	}
}

type RefreshInput struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleRefresh exchanges a refresh token for a new access token. Roles are reloaded from
// the account so that role changes and withdrawals take effect.
func HandleRefresh(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RefreshInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		p, err := deps.Verifier.VerifyRefresh(input.RefreshToken)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		u, err := deps.Accounts.Profile(r.Context(), p.UserID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrTokenInvalid))
			return
		}

		access, err := deps.Tokens.Issue(u.Email, u.ID, u.Roles, deps.Config.AccessTokenTTL)
		if err != nil {
			logx.Error(err, "refresh: token generation failed", "user_id", u.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"accessToken": access,
			"tokenType":   "Bearer",
		})
	}
}

type LogoutInput struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// HandleLogout revokes the presented access token and, when given, the refresh token.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input LogoutInput
		if customErr := req.BindOptionalJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		deps.Revocations.Revoke(p.Token, p.ExpiresAt)

		if input.RefreshToken != "" {
			expiry, err := deps.Tokens.ExpiryOf(input.RefreshToken)
			if err != nil {
				logx.Warn("logout: refresh token ignored", "subject", p.Subject, "error", err.Error())
			} else {
				deps.Revocations.Revoke(input.RefreshToken, expiry)
			}
		}

		logx.Info("Signed out.", "subject", p.Subject)
		resp.RespondSuccess(w, r, nil)
	}
}
