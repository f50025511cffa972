package route

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"confdesk/src-server/authz"
	"confdesk/src-server/certificate"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/google/uuid"
)

func Certificates(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /events/{id}/certificate-templates", Protected(as, "certificate", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		templates, err := model.ListCertificateTemplates(r.Context(), as.BunDB, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, templates)
	}))

	muxer.HandleFunc("POST /events/{id}/certificate-templates", Protected(as, "certificate", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		template := new(model.CertificateTemplate)
		if !readJSON(w, r, template) {
			return
		}
		template.ID = uuid.NewString()
		template.EventID = event.ID
		if err := template.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, template)
	}))

	muxer.HandleFunc("GET /events/{id}/certificate-templates/{tid}", Protected(as, "certificate", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		template, err := model.GetCertificateTemplate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, template)
	}))

	muxer.HandleFunc("PUT /events/{id}/certificate-templates/{tid}", Protected(as, "certificate", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		template, err := model.GetCertificateTemplate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		id, eventID, createdAt := template.ID, template.EventID, template.CreatedAt
		if !readJSON(w, r, template) {
			return
		}
		template.ID, template.EventID, template.CreatedAt = id, eventID, createdAt
		if err := template.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, template)
	}))

	muxer.HandleFunc("DELETE /events/{id}/certificate-templates/{tid}", Protected(as, "certificate", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if err := model.DeleteCertificateTemplate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	type IssueReqBody struct {
		TemplateID      string   `json:"template_id" validate:"required"`
		RegistrationIDs []string `json:"registration_ids"`
		OnlyCheckedIn   bool     `json:"only_checked_in"`
	}
	type IssueResBody struct {
		Issued       int                 `json:"issued"`
		Skipped      int                 `json:"skipped"`
		Certificates []model.Certificate `json:"certificates"`
	}

	muxer.HandleFunc("POST /events/{id}/certificates/issue", Protected(as, "certificate", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody IssueReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		result, err := certificate.IssueAttendance(r.Context(), as.BunDB, r.PathValue("id"), reqBody.TemplateID, reqBody.RegistrationIDs, reqBody.OnlyCheckedIn, time.Now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, IssueResBody{Issued: len(result.Issued), Skipped: result.Skipped, Certificates: result.Issued})
	}))

	type IssueFacultyReqBody struct {
		TemplateID string   `json:"template_id" validate:"required"`
		FacultyIDs []string `json:"faculty_ids"`
	}

	muxer.HandleFunc("POST /events/{id}/certificates/issue-faculty", Protected(as, "certificate", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody IssueFacultyReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		result, err := certificate.IssueFaculty(r.Context(), as.BunDB, r.PathValue("id"), reqBody.TemplateID, reqBody.FacultyIDs, time.Now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, IssueResBody{Issued: len(result.Issued), Skipped: result.Skipped, Certificates: result.Issued})
	}))

	muxer.HandleFunc("GET /events/{id}/certificates", Protected(as, "certificate", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		opts := listOptions(r)
		certificates, total, err := model.ListCertificates(r.Context(), as.BunDB, r.PathValue("id"), r.URL.Query().Get("template_id"), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeList(w, certificates, total, opts)
	}))

	muxer.HandleFunc("POST /events/{id}/certificates/{cid}/revoke", Protected(as, "certificate", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		cert, err := model.RevokeCertificate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("cid"), time.Now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cert)
	}))

	// {file} is "<certificate id>.pdf"
	muxer.HandleFunc("GET /events/{id}/certificates/{file}", Protected(as, "certificate", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		certID, isPDF := strings.CutSuffix(r.PathValue("file"), ".pdf")
		if !isPDF {
			writeMessage(w, http.StatusNotFound, "certificate documents end in .pdf")
			return
		}
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		cert, err := model.GetCertificate(r.Context(), as.BunDB, event.ID, certID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		template, err := model.GetCertificateTemplate(r.Context(), as.BunDB, event.ID, cert.TemplateID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		recipient, err := certificate.RecipientVariables(r.Context(), as.BunDB, cert)
		if err != nil {
			writeError(w, r, err)
			return
		}
		renderer := &certificate.Renderer{
			BaseURL:  as.Config.GetPublicBaseURL(),
			Location: as.Config.GetLocation(),
		}
		var buf bytes.Buffer
		if err := renderer.Render(&buf, event, template, cert, recipient); err != nil {
			writeError(w, r, err)
			return
		}
		writeDocument(w, r, "application/pdf", cert.CertificateNumber+".pdf", buf.Bytes())
	}))

	muxer.HandleFunc("GET /public/certificates/{number}", func(w http.ResponseWriter, r *http.Request) {
		verification, err := certificate.Verify(r.Context(), as.BunDB, strings.ToUpper(strings.TrimSpace(r.PathValue("number"))))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, verification)
	})
}
