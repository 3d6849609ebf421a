package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/ironcert/certificate"
	"github.com/jmcleod/ironcert/internal/metrics"
	"github.com/jmcleod/ironcert/storage"
)

const maxRequestBody = 1 << 20

// decodeJSON reads a JSON request body into v. Numbers decode as
// json.Number so payload values keep their textual form.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, param)
	}
	return id, nil
}

func queryID(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, key)
	}
	return id, nil
}

// CreateTemplate handles POST /templates.
func (a *API) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		mapError(w, err)
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	rec := &storage.TemplateRecord{
		Title:        req.Title,
		Body:         req.Body,
		TemplateCSS:  req.TemplateCSS,
		PageSize:     req.PageSize,
		Orientation:  req.Orientation,
		Font:         req.Font,
		CustomWidth:  req.CustomWidth,
		CustomHeight: req.CustomHeight,
		CustomFont:   req.CustomFont,
		CreatedAt:    a.now().UTC(),
	}
	id, err := a.templates.PutTemplate(r.Context(), rec)
	if err != nil {
		mapError(w, err)
		return
	}
	rec.ID = id

	a.audit.log(AuditTemplateCreated, r, slog.Int64("template_id", id))
	writeJSON(w, http.StatusCreated, templateResponse(rec))
}

// GetTemplate handles GET /templates/{templateID}.
func (a *API) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "templateID")
	if err != nil {
		mapError(w, err)
		return
	}
	rec, err := a.templates.GetTemplate(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templateResponse(rec))
}

// IssueCertificate handles POST /certificates.
func (a *API) IssueCertificate(w http.ResponseWriter, r *http.Request) {
	var req IssueCertificateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.issueFailed(w, r, err)
		return
	}

	var opts []certificate.IssueOption
	if req.Prefix != "" {
		opts = append(opts, certificate.WithPrefix(req.Prefix))
	}
	if req.RandomLength != 0 {
		opts = append(opts, certificate.WithRandomLength(req.RandomLength))
	}
	if req.FixedLength != nil {
		opts = append(opts, certificate.WithFixedLength(*req.FixedLength))
	}
	if req.Expiry != "" {
		opts = append(opts, certificate.WithExpiry(req.Expiry))
	}
	if req.Comment != "" {
		opts = append(opts, certificate.WithComment(req.Comment))
	}
	if req.Client != "" || req.ClientID != 0 {
		opts = append(opts, certificate.WithClient(req.Client, req.ClientID))
	}

	cert, err := a.issuer.Issue(r.Context(), req.UserID, req.TemplateID, req.Payload, opts...)
	if err != nil {
		a.issueFailed(w, r, err)
		return
	}

	metrics.CertificatesIssuedTotal.Inc()
	a.audit.logEvent(AuditCertIssued, r, cert.UniqueID,
		slog.Int64("certificate_id", cert.ID),
		slog.Int64("template_id", cert.TemplateID),
		slog.Int64("user_id", cert.UserID),
	)
	writeJSON(w, http.StatusCreated, a.certificateResponse(cert))
}

func (a *API) issueFailed(w http.ResponseWriter, r *http.Request, err error) {
	reason := failureReason(err)
	metrics.IssueFailuresTotal.WithLabelValues(reason).Inc()
	a.audit.logFailure(AuditCertIssueFailed, r, reason, slog.String("error", err.Error()))
	mapError(w, err)
}

// ListCertificates handles GET /certificates. The client, client_id and
// user_id query parameters are all required; expired=true restricts the
// result to certificates whose expiry has passed.
func (a *API) ListCertificates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID, err := queryID(r, "client_id")
	if err != nil {
		mapError(w, err)
		return
	}
	userID, err := queryID(r, "user_id")
	if err != nil {
		mapError(w, err)
		return
	}
	expiredOnly := false
	if v := q.Get("expired"); v != "" {
		expiredOnly, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid expired")
			return
		}
	}

	certs, err := a.loader.ListIssued(r.Context(), q.Get("client"), clientID, userID, expiredOnly)
	if err != nil {
		mapError(w, err)
		return
	}

	page, pgMeta := paginate(r, certs)
	result := make([]CertificateResponse, 0, len(page))
	for _, c := range page {
		result = append(result, a.certificateResponse(c))
	}
	writeJSON(w, http.StatusOK, ListCertificatesResponse{Certificates: result, PaginationMeta: pgMeta})
}

// GetCertificate handles GET /certificates/{certificateID}.
func (a *API) GetCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "certificateID")
	if err != nil {
		mapError(w, err)
		return
	}
	cert, err := a.loader.Load(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.certificateResponse(cert))
}

// SetCertificateState handles PUT /certificates/{certificateID}/state.
func (a *API) SetCertificateState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "certificateID")
	if err != nil {
		mapError(w, err)
		return
	}
	var req SetStateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		mapError(w, err)
		return
	}
	if req.State == nil {
		writeError(w, http.StatusBadRequest, "state is required")
		return
	}
	if err := a.loader.SetState(r.Context(), id, *req.State); err != nil {
		mapError(w, err)
		return
	}
	cert, err := a.loader.Load(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditCertStateChanged, r, cert.UniqueID,
		slog.Int64("certificate_id", cert.ID),
		slog.Int("state", cert.State),
	)
	writeJSON(w, http.StatusOK, a.certificateResponse(cert))
}

// VerifyCertificate handles GET /verify/{uniqueID}. Unusable certificates
// answer 404 (unknown) or 410 (inactive or expired) with the outcome in the
// body.
func (a *API) VerifyCertificate(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uniqueID")
	res, err := a.validator.Validate(r.Context(), uid)
	if err != nil {
		mapError(w, err)
		return
	}
	metrics.ValidationsTotal.WithLabelValues(res.Outcome.String()).Inc()

	resp := VerifyResponse{
		UniqueID: uid,
		Valid:    res.Valid(),
		Outcome:  res.Outcome.String(),
	}
	if !res.Valid() {
		a.audit.logFailure(AuditCertValidationFailed, r, res.Outcome.String(),
			slog.String("unique_certificate_id", uid))
		writeJSON(w, statusFor(res.Outcome.Err()), resp)
		return
	}

	a.audit.logEvent(AuditCertValidated, r, uid)
	cr := a.certificateResponse(res.Certificate)
	resp.Certificate = &cr
	writeJSON(w, http.StatusOK, resp)
}

// DownloadCertificate handles GET /verify/{uniqueID}/download. The caller
// identified by X-User-ID must own the certificate.
func (a *API) DownloadCertificate(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uniqueID")
	userID := userIDFromContext(r.Context())

	exp, err := a.exporter.Export(r.Context(), uid, userID)
	if err != nil {
		status := statusFor(err)
		metrics.DownloadsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
		a.audit.logFailure(AuditCertDownloadFailed, r, err.Error(),
			slog.String("unique_certificate_id", uid),
			slog.Int64("user_id", userID),
		)
		mapError(w, err)
		return
	}

	metrics.DownloadsTotal.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	a.audit.logEvent(AuditCertDownloaded, r, uid, slog.Int64("user_id", userID))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.Content)))
	w.WriteHeader(http.StatusOK)
	w.Write(exp.Content)
}

func (a *API) certificateResponse(c *certificate.Certificate) CertificateResponse {
	view := a.publicBaseURL + BasePath + "/verify/" + url.PathEscape(c.UniqueID)
	return CertificateResponse{
		ID:            c.ID,
		UniqueID:      c.UniqueID,
		TemplateID:    c.TemplateID,
		UserID:        c.UserID,
		Client:        c.Client,
		ClientID:      c.ClientID,
		GeneratedBody: c.GeneratedBody,
		State:         c.State,
		IssuedOn:      c.IssuedOn,
		ExpiredOn:     c.ExpiredOn,
		Comment:       c.Comment,
		Fingerprint:   certificate.Fingerprint(c),
		ViewURL:       view,
		DownloadURL:   view + "/download",
	}
}

func templateResponse(rec *storage.TemplateRecord) TemplateResponse {
	page := certificate.PageSettings(rec)
	return TemplateResponse{
		ID:           rec.ID,
		Title:        rec.Title,
		Body:         rec.Body,
		TemplateCSS:  rec.TemplateCSS,
		PageSize:     page.PageSize,
		Orientation:  page.Orientation,
		Font:         page.Font,
		CustomWidth:  rec.CustomWidth,
		CustomHeight: rec.CustomHeight,
		CustomFont:   rec.CustomFont,
		CreatedAt:    rec.CreatedAt,
	}
}
