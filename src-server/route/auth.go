package route

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"confdesk/src-server/authz"
	"confdesk/src-server/jwt"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "confdesk"

func Auth(muxer *http.ServeMux, as *utils.AppState) {
	type LoginReqBody struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
		TOTPCode string `json:"totp_code"`
	}
	type LoginResBody struct {
		Token     string            `json:"token"`
		ExpiresAt time.Time         `json:"expires_at"`
		Member    *model.TeamMember `json:"member"`
	}

	// login
	muxer.Handle("POST /auth/login", PublicRateLimit(as, func(w http.ResponseWriter, r *http.Request) {
		var reqBody LoginReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}

		member, err := model.GetTeamMemberByEmail(r.Context(), as.BunDB, reqBody.Email)
		switch {
		case errors.Is(err, model.ErrNotFound):
			writeMessage(w, http.StatusUnauthorized, "wrong email or password")
			return
		case err != nil:
			writeError(w, r, err)
			return
		case !member.CheckPassword(reqBody.Password) || !member.Active:
			writeMessage(w, http.StatusUnauthorized, "wrong email or password")
			return
		}
		if member.HasTOTP() {
			if reqBody.TOTPCode == "" {
				writeMessage(w, http.StatusUnauthorized, "totp code required")
				return
			}
			if !totp.Validate(strings.TrimSpace(reqBody.TOTPCode), member.TOTPSecret) {
				writeMessage(w, http.StatusUnauthorized, "wrong totp code")
				return
			}
		}

		now := time.Now()
		token, err := jwt.Encode(jwt.Payload{
			MemberID: member.ID,
			Name:     member.Name,
			Role:     string(member.Role),
			IssuedAt: now.Unix(),
		}, as.Config.GetJWTSecret(), as.Config.GetJWTExpire())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := model.TouchLastLogin(r.Context(), as.BunDB, member, now); err != nil {
			slog.Warn("can't record last login", "member_id", member.ID, "error", err)
		}
		writeJSON(w, http.StatusOK, LoginResBody{
			Token:     token,
			ExpiresAt: now.Add(as.Config.GetJWTExpire()).UTC(),
			Member:    member,
		})
	}))

	muxer.HandleFunc("GET /auth/me", AuthMiddleware(as, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, memberFrom(r))
	}))

	type TOTPResBody struct {
		Secret string `json:"secret"`
		URL    string `json:"url"`
	}

	// new secret, kept pending until a code is verified
	muxer.HandleFunc("POST /auth/totp", AuthMiddleware(as, func(w http.ResponseWriter, r *http.Request) {
		member := memberFrom(r)
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      totpIssuer,
			AccountName: member.Email,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		member.PendingTOTPSecret = key.Secret()
		if err := member.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, TOTPResBody{Secret: key.Secret(), URL: key.URL()})
	}))

	type TOTPVerifyReqBody struct {
		Code string `json:"code" validate:"required,len=6,numeric"`
	}

	muxer.HandleFunc("POST /auth/totp/verify", AuthMiddleware(as, func(w http.ResponseWriter, r *http.Request) {
		var reqBody TOTPVerifyReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		member := memberFrom(r)
		if member.PendingTOTPSecret == "" {
			writeMessage(w, http.StatusConflict, "no pending totp secret, request one first")
			return
		}
		if !totp.Validate(reqBody.Code, member.PendingTOTPSecret) {
			writeMessage(w, http.StatusBadRequest, "wrong totp code")
			return
		}
		member.TOTPSecret = member.PendingTOTPSecret
		member.PendingTOTPSecret = ""
		if err := member.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, member)
	}))
}

func TeamMembers(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /team-members", Protected(as, "team", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		members, err := model.ListTeamMembers(r.Context(), as.BunDB, model.Role(r.URL.Query().Get("role")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, members)
	}))

	type CreateReqBody struct {
		Email    string     `json:"email" validate:"required,email"`
		Name     string     `json:"name" validate:"required"`
		Role     model.Role `json:"role" validate:"required,oneof=owner admin coordinator reviewer viewer"`
		Password string     `json:"password" validate:"required,min=8"`
	}

	muxer.HandleFunc("POST /team-members", Protected(as, "team", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody CreateReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		// only owners hand out ownership
		if reqBody.Role == model.ROLE_OWNER && memberFrom(r).Role != model.ROLE_OWNER {
			writeMessage(w, http.StatusForbidden, "only an owner can add another owner")
			return
		}
		member := &model.TeamMember{
			ID:     uuid.NewString(),
			Email:  reqBody.Email,
			Name:   reqBody.Name,
			Role:   reqBody.Role,
			Active: true,
		}
		if err := member.SetPassword(reqBody.Password); err != nil {
			writeError(w, r, err)
			return
		}
		if err := member.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, member)
	}))

	type UpdateReqBody struct {
		Name     *string     `json:"name" validate:"omitnil,min=1"`
		Role     *model.Role `json:"role" validate:"omitnil,oneof=owner admin coordinator reviewer viewer"`
		Active   *bool       `json:"active"`
		Password *string     `json:"password" validate:"omitnil,min=8"`
	}

	muxer.HandleFunc("PATCH /team-members/{id}", Protected(as, "team", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody UpdateReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		if reqBody.Role != nil && *reqBody.Role == model.ROLE_OWNER && memberFrom(r).Role != model.ROLE_OWNER {
			writeMessage(w, http.StatusForbidden, "only an owner can promote to owner")
			return
		}
		member, err := model.UpdateTeamMember(r.Context(), as.BunDB, r.PathValue("id"), model.TeamMemberUpdate{
			Name:     reqBody.Name,
			Role:     reqBody.Role,
			Active:   reqBody.Active,
			Password: reqBody.Password,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, member)
	}))

	muxer.HandleFunc("DELETE /team-members/{id}", Protected(as, "team", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if err := model.DeleteTeamMember(r.Context(), as.BunDB, r.PathValue("id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}
