package handler

import (
	"net/http"

	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/req"
	"marketchat/internal/pkg/resp"
)

// HandleSendNotification pushes an operational notification to one recipient. The route is
// restricted to ROLE_ADMIN by the router.
func HandleSendNotification(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input envelope.Notification
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		result, err := deps.Notifier.Notify(r.Context(), input)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		logx.Info("Notification accepted.",
			"recipient_id", input.RecipientID,
			"local_pushes", result.LocalPushes,
			"published", result.Published,
		)

		resp.RespondSuccess(w, r, map[string]any{
			"localPushes": result.LocalPushes,
			"published":   result.Published,
		})
	}
}
