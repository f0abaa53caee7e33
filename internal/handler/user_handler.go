package handler

import (
	"net/http"

	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/req"
	"marketchat/internal/pkg/resp"
)

// HandleGetMe returns the profile of the authenticated principal.
func HandleGetMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		u, err := deps.Accounts.Profile(r.Context(), p.UserID)
		if err != nil {
			logx.Warn("get_me: account not found", "user_id", p.UserID)
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": u})
	}
}

type WithdrawalInput struct {
	Password string `json:"password"`
}

// HandleWithdrawal withdraws the account of the principal and revokes the presented token.
func HandleWithdrawal(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input WithdrawalInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Accounts.Withdraw(r.Context(), p.UserID, input.Password); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		deps.Revocations.Revoke(p.Token, p.ExpiresAt)
		resp.RespondSuccess(w, r, map[string]any{"withdrawn": true})
	}
}
