package dicomweb

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marleyhealth/scheduling/internal/config"
	"github.com/marleyhealth/scheduling/internal/workitem"
)

// DICOM status codes embedded in every response body.
var statusCodes = map[string]string{
	"Success":               "0000H",
	"ProcessingFailure":     "0110H",
	"InvalidArgumentValue":  "0106H",
	"InvalidAttributeValue": "0107H",
	"MissingAttribute":      "0120H",
	"NoSuchObjectInstance":  "0112H",
	"UPSAlreadyClaimed":     "C301H",
	"UPSNotYetClaimed":      "C302H",
	"UPSAlreadyInProgress":  "C303H",
	"UPSAlreadyCompleted":   "C304H",
}

const (
	serviceVersion = "1.0.0"
	organization   = "Marley Health"
)

type Handler struct {
	svc *workitem.Service
	cfg config.Config
	now func() time.Time
}

func NewHandler(svc *workitem.Service, cfg config.Config) *Handler {
	return &Handler{svc: svc, cfg: cfg, now: time.Now}
}

// Routes returns the /dicom-web subtree.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/echo", h.echo)
	r.Get("/conformance", h.conformance)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/workitems", h.listWorkitems)
		r.Post("/workitems", h.listWorkitems)
		r.Route("/workitems/{uid}", func(r chi.Router) {
			r.Post("/claim", h.claim)
			r.Post("/cancelrequest", h.cancelRequest)
			r.Post("/workitemevent", h.workitemEvent)
			r.Put("/", h.updateWorkitem)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDicom(w, http.StatusNotFound, dicomError("NoSuchObjectInstance", "UPS task not found"))
	})

	return r
}

// authenticate checks the shared AE token when one is configured. The AE
// title header is always required on worklist routes.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if aeTitle(r) == "" {
			writeDicom(w, http.StatusUnauthorized, dicomError("MissingAttribute", "Missing AE credentials"))
			return
		}
		if h.cfg.ModalityAEToken != "" && r.Header.Get("X-AE-TOKEN") != h.cfg.ModalityAEToken {
			writeDicom(w, http.StatusUnauthorized, dicomError("ProcessingFailure", "Unauthorized DICOMWeb AE"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func aeTitle(r *http.Request) string {
	return r.Header.Get("X-AE-TITLE")
}

func (h *Handler) listWorkitems(w http.ResponseWriter, r *http.Request) {
	filters := make(map[string]string)

	if r.Method == http.MethodGet {
		for key, vals := range r.URL.Query() {
			if len(vals) > 0 {
				filters[key] = vals[0]
			}
		}
	} else {
		body, _ := io.ReadAll(r.Body)
		if len(body) > 0 {
			if err := json.Unmarshal(body, &filters); err != nil {
				writeDicom(w, http.StatusBadRequest, dicomError("InvalidAttributeValue", "Invalid JSON body"))
				return
			}
		}
	}

	result, err := h.svc.List(r.Context(), filters)
	if err != nil {
		h.logExchange(r, "UPS RS", "", filters, nil, "0110H", err.Error())
		writeDicom(w, http.StatusBadRequest, dicomError("ProcessingFailure", "UPS-RS failed: "+err.Error()))
		return
	}

	h.logExchange(r, "UPS RS", "", filters, result, "0000H", "Worklist served")
	writeDicom(w, http.StatusOK, result)
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if err := workitem.ValidateUID(uid); err != nil {
		writeDicom(w, http.StatusBadRequest, dicomError("InvalidArgumentValue", "Invalid UPS UID format"))
		return
	}

	body := decodeBody(r)
	item, err := h.svc.Claim(r.Context(), uid, body, aeTitle(r))
	if err != nil {
		status, codeKey := dicomStatus(err)
		h.logExchange(r, "UPS Claim", uid, body, nil, statusCodes[codeKey], err.Error())
		writeDicom(w, status, dicomError(codeKey, "Claim failed: "+err.Error()))
		return
	}

	result := map[string]any{"Status": "Claimed", "UPSInstanceUID": item.UPSInstanceUID}
	h.logExchange(r, "UPS Claim", uid, body, result, "0000H", "Claim accepted")
	writeDicom(w, http.StatusOK, result)
}

func (h *Handler) cancelRequest(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if err := workitem.ValidateUID(uid); err != nil {
		writeDicom(w, http.StatusBadRequest, dicomError("InvalidArgumentValue", "Invalid UPS UID format"))
		return
	}

	item, err := h.svc.Cancel(r.Context(), uid, aeTitle(r))
	if err != nil {
		status, codeKey := dicomStatus(err)
		h.logExchange(r, "UPS Cancel", uid, nil, nil, statusCodes[codeKey], err.Error())
		writeDicom(w, status, dicomError(codeKey, "Cancel failed: "+err.Error()))
		return
	}

	result := map[string]any{"Status": "Cancelled", "UPSInstanceUID": item.UPSInstanceUID}
	h.logExchange(r, "UPS Cancel", uid, nil, result, "0000H", "Cancelled")
	writeDicom(w, http.StatusOK, result)
}

func (h *Handler) workitemEvent(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if err := workitem.ValidateUID(uid); err != nil {
		writeDicom(w, http.StatusBadRequest, dicomError("InvalidArgumentValue", "Invalid UPS UID format"))
		return
	}

	body := decodeBody(r)
	item, err := h.svc.HandleEvent(r.Context(), uid, body, aeTitle(r))
	if err != nil {
		status, codeKey := dicomStatus(err)
		h.logExchange(r, "UPS WorkitemEvent", uid, body, nil, statusCodes[codeKey], err.Error())
		writeDicom(w, status, dicomError(codeKey, "Workitem event failed: "+err.Error()))
		return
	}

	result := map[string]any{"Status": string(item.Status), "UPSInstanceUID": item.UPSInstanceUID}
	h.logExchange(r, "UPS WorkitemEvent", uid, body, result, "0000H", "Workitem updated")
	writeDicom(w, http.StatusOK, result)
}

func (h *Handler) updateWorkitem(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if err := workitem.ValidateUID(uid); err != nil {
		writeDicom(w, http.StatusBadRequest, dicomError("InvalidArgumentValue", "Invalid UPS UID format"))
		return
	}

	body := decodeBody(r)
	item, err := h.svc.UpdateFromModality(r.Context(), uid, body)
	if err != nil {
		status, codeKey := dicomStatus(err)
		h.logExchange(r, "UPS Update", uid, body, nil, statusCodes[codeKey], err.Error())
		writeDicom(w, status, dicomError(codeKey, "Update failed: "+err.Error()))
		return
	}

	result := map[string]any{"Status": "Updated", "UPSInstanceUID": item.UPSInstanceUID}
	h.logExchange(r, "UPS Update", uid, body, result, "0000H", "Updated")
	writeDicom(w, http.StatusOK, result)
}

func (h *Handler) echo(w http.ResponseWriter, r *http.Request) {
	result := map[string]any{
		"status":    "success",
		"message":   "Marley DICOMWeb service is online.",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	h.logExchange(r, "Verification", "", nil, result, "0000H", "DICOMWeb verification successful")
	writeDicom(w, http.StatusOK, result)
}

func (h *Handler) conformance(w http.ResponseWriter, r *http.Request) {
	result := map[string]any{
		"service":      "DICOMWeb UPS-RS",
		"version":      serviceVersion,
		"organization": organization,
		"supported_endpoints": []string{
			"GET /dicom-web/workitems",
			"POST /dicom-web/workitems",
			"PUT /dicom-web/workitems/{uid}",
			"POST /dicom-web/workitems/{uid}/claim",
			"POST /dicom-web/workitems/{uid}/cancelrequest",
			"POST /dicom-web/workitems/{uid}/workitemevent",
		},
		"formats":        []string{"application/dicom+json"},
		"authentication": "Header-based: X-AE-TITLE + X-AE-TOKEN",
		"note": "Only UPS-RS is supported at this endpoint. If the UPS SOP Instance UID " +
			"is not available, the accession number or study instance UID can be used " +
			"for workitem updates.",
	}
	h.logExchange(r, "Conformance", "", nil, result, "0000H", "Conformance served")
	writeDicom(w, http.StatusOK, result)
}

// decodeBody reads a JSON object body; malformed or empty bodies degrade to
// an empty map since some modalities send claim requests with no dataset.
func decodeBody(r *http.Request) map[string]any {
	body := make(map[string]any)
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		return body
	}
	if err := json.Unmarshal(data, &body); err != nil {
		log.Printf("malformed dicom-web body on %s: %v", r.URL.Path, err)
	}
	return body
}

// dicomStatus maps service errors to an HTTP status and a DICOM code key.
func dicomStatus(err error) (int, string) {
	switch {
	case errors.Is(err, workitem.ErrWorkItemNotFound):
		return http.StatusNotFound, "NoSuchObjectInstance"
	case errors.Is(err, workitem.ErrAlreadyClaimed):
		return http.StatusConflict, "UPSAlreadyClaimed"
	case errors.Is(err, workitem.ErrAlreadyCompleted):
		return http.StatusConflict, "UPSAlreadyCompleted"
	case errors.Is(err, workitem.ErrCancelled):
		return http.StatusConflict, "UPSAlreadyInProgress"
	case errors.Is(err, workitem.ErrInvalidEventStatus):
		return http.StatusBadRequest, "InvalidAttributeValue"
	case errors.Is(err, workitem.ErrInvalidUID):
		return http.StatusBadRequest, "InvalidArgumentValue"
	default:
		return http.StatusBadRequest, "ProcessingFailure"
	}
}

func dicomError(codeKey, message string) map[string]any {
	code, ok := statusCodes[codeKey]
	if !ok {
		code = statusCodes["ProcessingFailure"]
	}
	return map[string]any{"Status": code, "ErrorComment": message}
}

func writeDicom(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode dicom-web response: %v", err)
	}
}

func (h *Handler) logExchange(r *http.Request, kind, reference string, request, response any, statusCode, statusText string) {
	msg := workitem.ModalityMessage{
		AETitle:    aeTitleOrUnknown(r),
		Type:       kind,
		Reference:  reference,
		StatusCode: statusCode,
		StatusText: statusText,
	}
	if request != nil {
		msg.RequestPayload, _ = json.Marshal(request)
	}
	if response != nil {
		msg.ResponsePayload, _ = json.Marshal(response)
	}
	h.svc.LogExchange(r.Context(), msg)
}

func aeTitleOrUnknown(r *http.Request) string {
	if ae := aeTitle(r); ae != "" {
		return ae
	}
	return "Unknown"
}
